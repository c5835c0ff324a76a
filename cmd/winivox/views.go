package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"winivox/internal/api"
	"winivox/internal/submissions"
)

const titleWidth = 40

func renderSubmissionTable(items []api.Submission, colorize bool) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			shortID(item.ID),
			item.OwnerID,
			renderStatus(item.Status, colorize),
			item.StepName,
			item.AnonymizationMode,
			truncate(item.Title, titleWidth),
			scoreLabel(item.ViralityScore),
			item.CreatedAt,
		})
	}
	return renderTable(
		[]string{"ID", "Owner", "Status", "Step", "Mode", "Title", "Score", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderSubmission(sub api.Submission, colorize bool) string {
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(&b, "%-14s %s\n", label+":", value)
	}
	line("ID", sub.ID)
	line("Owner", sub.OwnerID)
	line("Status", renderStatus(sub.Status, colorize))
	line("Step", fmt.Sprintf("%d (%s)", sub.Step, sub.StepName))
	line("Mode", sub.AnonymizationMode)
	line("Raw audio", sub.RawAudioKey)
	line("Public audio", sub.PublicAudioKey)
	line("Title", sub.Title)
	line("Summary", sub.Summary)
	line("Tags", strings.Join(sub.Tags, ", "))
	if sub.ViralityScore != nil {
		line("Virality", fmt.Sprintf("%d (high potential: %s)", *sub.ViralityScore, yesNo(sub.HighPotential)))
	}
	if sub.Moderation != nil {
		line("Moderation", sub.Moderation.Verdict)
		if reason := moderationReason(sub.Moderation.Details); reason != "" {
			line("Reason", reason)
		}
	}
	line("Transcript", truncate(sub.TranscriptPreview, 200))
	line("Description", sub.Description)
	line("Created", sub.CreatedAt)
	line("Updated", sub.UpdatedAt)
	line("Published", sub.PublishedAt)
	return b.String()
}

func moderationReason(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

func renderEvents(list []api.Event, withSubmission bool) string {
	headers := []string{"Seq", "Time", "Event", "Payload"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}
	if withSubmission {
		headers = []string{"Seq", "Time", "Submission", "Event", "Payload"}
		aligns = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}
	}
	rows := make([][]string, 0, len(list))
	for _, evt := range list {
		row := []string{strconv.FormatInt(evt.Seq, 10), evt.Timestamp}
		if withSubmission {
			row = append(row, shortID(evt.SubmissionID))
		}
		row = append(row, evt.Name, payloadSummary(evt.Payload))
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func renderFeed(items []api.FeedItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		highlight := ""
		if item.HighPotential {
			highlight = "*"
		}
		rows = append(rows, []string{
			shortID(item.ID),
			truncate(item.Title, titleWidth),
			strings.Join(item.Tags, ", "),
			scoreLabel(item.ViralityScore) + highlight,
			item.PublishedAt,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Tags", "Score", "Published"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// payloadSummary renders a payload as sorted key=value pairs.
func payloadSummary(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := payload[key]
		switch v := value.(type) {
		case string:
			parts = append(parts, key+"="+truncate(v, 60))
		case map[string]any, []any:
			data, _ := json.Marshal(v)
			parts = append(parts, key+"="+truncate(string(data), 60))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}

func scoreLabel(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func statusOrder() []string {
	statuses := submissions.AllStatuses()
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
