// Package submissions persists audio story submissions in SQLite and owns the
// rules for moving them through their lifecycle.
//
// The Store manages the database connection and schema, the lifecycle
// transitions driven from outside the pipeline (create, mark uploaded,
// reprocess, cancel), and CommitStep, which the pipeline uses to persist a
// step's derived fields together with its audit events in one transaction.
// The step counter is guarded in SQL so it can never move backwards outside
// of Reprocess.
//
// Schema changes bump the version in schema.go; operators recreate the
// database to adopt the new schema.
package submissions
