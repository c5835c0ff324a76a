package api

import (
	"encoding/json"
	"time"

	"winivox/internal/events"
	"winivox/internal/submissions"
)

// FromSubmission converts a stored submission to its API representation.
func FromSubmission(sub *submissions.Submission) Submission {
	if sub == nil {
		return Submission{}
	}
	dto := Submission{
		ID:                sub.ID,
		OwnerID:           sub.OwnerID,
		Status:            string(sub.Status),
		Step:              int(sub.Step),
		StepName:          sub.Step.String(),
		AnonymizationMode: string(sub.Mode),
		RawAudioKey:       sub.RawAudioKey,
		PublicAudioKey:    sub.PublicAudioKey,
		TranscriptPreview: sub.TranscriptPreview,
		Title:             sub.Title,
		Summary:           sub.Summary,
		Tags:              sub.Tags,
		ViralityScore:     sub.ViralityScore,
		HighPotential:     sub.HighPotential(),
		Description:       sub.Description,
		SuggestedTags:     sub.SuggestedTags,
		CoverImageKey:     sub.CoverImageKey,
		CreatedAt:         FormatTime(sub.CreatedAt),
		UpdatedAt:         FormatTime(sub.UpdatedAt),
	}
	if sub.PublishedAt != nil {
		dto.PublishedAt = FormatTime(*sub.PublishedAt)
	}
	if sub.Verdict != "" {
		mod := &Moderation{Verdict: sub.Verdict}
		if raw := sub.ModerationJSON; raw != "" && json.Valid([]byte(raw)) {
			mod.Details = json.RawMessage(raw)
		}
		dto.Moderation = mod
	}
	return dto
}

// FromSubmissions converts a slice of submissions.
func FromSubmissions(list []*submissions.Submission) []Submission {
	out := make([]Submission, 0, len(list))
	for _, sub := range list {
		if sub == nil {
			continue
		}
		out = append(out, FromSubmission(sub))
	}
	return out
}

// FromFeedEntry converts a published submission to a feed item. URLs are
// filled in by the caller when the storage backend signs them.
func FromFeedEntry(sub *submissions.Submission) FeedItem {
	if sub == nil {
		return FeedItem{}
	}
	item := FeedItem{
		ID:            sub.ID,
		Title:         sub.Title,
		Summary:       sub.Summary,
		Tags:          sub.Tags,
		ViralityScore: sub.ViralityScore,
		HighPotential: sub.HighPotential(),
		AudioKey:      sub.PublicAudioKey,
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if sub.PublishedAt != nil {
		item.PublishedAt = FormatTime(*sub.PublishedAt)
	}
	return item
}

// FromEvent converts a logged event.
func FromEvent(evt events.Event) Event {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:           evt.ID,
		Seq:          evt.Seq,
		Name:         evt.Name,
		Version:      evt.Version,
		SubmissionID: evt.SubmissionID,
		Timestamp:    FormatTime(evt.Timestamp),
		Payload:      payload,
	}
}

// FromEvents converts a slice of events.
func FromEvents(list []events.Event) []Event {
	out := make([]Event, 0, len(list))
	for _, evt := range list {
		out = append(out, FromEvent(evt))
	}
	return out
}

// MergeStats produces a string-keyed representation of submission counts.
// Every known status is present.
func MergeStats(stats map[submissions.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range submissions.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
