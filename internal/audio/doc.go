// Package audio wraps ffmpeg and ffprobe for the two signal transforms the
// pipeline applies: loudness normalization and pitch shifting.
//
// Both transforms degrade instead of failing. The configured filter is tried
// first, then a plain re-encode, and finally a byte copy of the input. The
// returned Outcome names the level that produced the output so callers can
// record degraded results. Only a failed copy is reported as an error.
package audio
