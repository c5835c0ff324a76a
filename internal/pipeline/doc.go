// Package pipeline advances a submission through the fixed processing steps:
// normalize, transcribe, moderate, tag, anonymize and publish.
//
// The submission's persisted step counter is the only resume state. Advance
// walks an ordered step table, skips every step at or below the counter, and
// commits each completed step together with its audit event in one
// transaction, so a crash between steps resumes at the next one without
// repeating work or events.
//
// Failure policy differs by step. Audio transforms degrade down to a plain
// copy, transcription and tagging fall back to defaults, moderation fails
// closed into quarantine, and storage failures abort the run.
package pipeline
