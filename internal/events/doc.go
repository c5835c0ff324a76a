// Package events is the append-only audit trail of pipeline transitions.
//
// Rows are written through Append, which accepts any Execer so the caller can
// place the insert inside the same transaction as the submission update it
// describes. Reads are served by Log, ordered by insertion sequence, for the
// CLI and notification consumers. Events are never updated; the only delete
// path is submission cancellation.
package events
