// Package api is the submission lifecycle layer shared by the CLI and the
// HTTP server. It wraps the submission store, event log, work queue and object
// store behind owner-scoped operations and translates internal models into
// transport-friendly DTOs.
//
// # Operations
//
// Create: CREATED submission with its raw audio key and, when the storage
// backend signs URLs, a presigned PUT ticket.
//
// CreateCoverUpload: presigned PUT for {owner}/{id}/cover{ext} in the public
// bucket; only image/* content types are accepted.
//
// AddFile: Create plus a direct upload of a local file and MarkUploaded.
//
// MarkUploaded / Reprocess: store transition followed by an enqueue.
// MarkUploaded only moves CREATED submissions and only accepts cover keys under
// the submission's own prefix; Reprocess is the only way to restart a run.
//
// Cancel: deletes the row and its events, then purges every object the
// submission may own concurrently. Storage errors during the purge are logged
// and ignored.
//
// Get, List, Feed, Events, EventsBetween: read views.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Moderation details are passed through as json.RawMessage to avoid
// double-encoding. A submission owned by someone else is reported exactly
// like a missing one.
package api
