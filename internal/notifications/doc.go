// Package notifications delivers pipeline outcomes to operators.
//
// Two transports are available: ntfy pushes for humans and a CloudEvents
// webhook for machines. Either, both or neither may be configured; with
// neither, NewService returns a no-op. Pipeline code depends only on the
// Service interface and never fails because a notification did.
package notifications
