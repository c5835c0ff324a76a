package metadata

import (
	"math"
	"strconv"
	"strings"

	"winivox/internal/textutil"
)

// Limits applied to generated metadata.
const (
	MaxSummaryChars    = 220
	MaxTitleChars      = 80
	MaxTags            = 6
	MinTags            = 3
	MaxTranscriptChars = 4000
	fallbackSnippet    = 200
	NeutralScore       = 50
)

// Only short transcripts are checked for "empty audio" wording; a long story
// may quote those words.
const shortTranscriptChars = 120

// Fixed fallback text.
const (
	DefaultTitle = "Historia anonima"
	// DefaultSummary replaces an empty summary from the provider.
	DefaultSummary = "historia anonima"
	// SilentSummary is used when the transcript carries no usable speech.
	SilentSummary = "historia anonima en audio"
	// GenericSummary replaces summaries that describe the audio as empty or
	// unintelligible.
	GenericSummary = "Una historia anonima contada en primera persona."
)

var defaultTags = []string{"historia anonima", "relato personal", "voz en primera persona"}

// DefaultTags returns the fallback tag set.
func DefaultTags() []string {
	out := make([]string, len(defaultTags))
	copy(out, defaultTags)
	return out
}

// emptyAudioPhrases mark text that talks about the recording instead of the story.
var emptyAudioPhrases = []string{
	"audio vacio",
	"audio esta vacio",
	"transcript vacio",
	"transcripcion vacia",
	"transcript esta vacio",
	"incomprensible",
	"inaudible",
	"no se entiende",
	"no hay contenido",
	"sin contenido",
	"no contiene audio",
	"sin audio",
}

// failedSpeechMarkers mark transcripts produced from silence or noise.
var failedSpeechMarkers = []string{
	"[inaudible]",
	"[silencio]",
	"[musica]",
	"[ruido]",
	"subtitulos realizados por",
}

// CleanTags lowercases, strips leading '#', collapses whitespace, dedupes and
// caps tags. Fewer than MinTags survivors yields the default set.
func CleanTags(tags []string) []string {
	cleaned := make([]string, 0, MaxTags)
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		value := strings.TrimLeft(strings.TrimSpace(textutil.Lower(tag)), "#")
		value = strings.Join(strings.Fields(value), " ")
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		cleaned = append(cleaned, value)
		if len(cleaned) >= MaxTags {
			break
		}
	}
	if len(cleaned) < MinTags {
		return DefaultTags()
	}
	return cleaned
}

// CleanSummary trims and clips summary, substituting generic text when it is
// empty or describes the audio as empty.
func CleanSummary(summary string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return DefaultSummary
	}
	if describesEmptyAudio(summary) {
		return GenericSummary
	}
	return strings.TrimSpace(textutil.Clip(summary, MaxSummaryChars))
}

// CleanTitle trims and clips title, substituting DefaultTitle when absent.
func CleanTitle(title string) string {
	title = strings.Trim(strings.TrimSpace(title), "\"'")
	if title == "" || describesEmptyAudio(title) {
		return DefaultTitle
	}
	return strings.TrimSpace(textutil.Clip(title, MaxTitleChars))
}

// ClampScore coerces a decoded JSON value to an integer in [0,100]. Values
// that cannot be read as numbers yield NeutralScore.
func ClampScore(raw any) int {
	var score float64
	switch v := raw.(type) {
	case float64:
		score = v
	case int:
		score = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return NeutralScore
		}
		score = parsed
	default:
		return NeutralScore
	}
	switch {
	case math.IsNaN(score):
		return NeutralScore
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return int(math.Round(score))
	}
}

// UsableTranscript reports whether transcript holds speech worth summarizing.
func UsableTranscript(transcript string) bool {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return false
	}
	folded := textutil.Fold(text)
	for _, marker := range failedSpeechMarkers {
		if strings.HasPrefix(folded, marker) {
			return false
		}
	}
	if len([]rune(folded)) > shortTranscriptChars {
		return true
	}
	return !describesEmptyAudio(text)
}

func describesEmptyAudio(text string) bool {
	return textutil.ContainsAnyFolded(text, emptyAudioPhrases)
}
