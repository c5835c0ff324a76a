// Package textutil provides accent-insensitive folding and rune-safe clipping
// for transcript and metadata text.
package textutil
