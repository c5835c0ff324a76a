// Package services defines shared utilities consumed by the pipeline steps and
// the external provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp submission IDs, step names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (storage vs provider vs validation) without string matching.
//
// Provider clients live in subpackages (llm, transcribe, moderation).
package services
