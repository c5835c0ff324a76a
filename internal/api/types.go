package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Submission describes a submission in a transport-friendly format.
type Submission struct {
	ID                string      `json:"id"`
	OwnerID           string      `json:"ownerId"`
	Status            string      `json:"status"`
	Step              int         `json:"processingStep"`
	StepName          string      `json:"processingStepName"`
	AnonymizationMode string      `json:"anonymizationMode"`
	RawAudioKey       string      `json:"rawAudioKey,omitempty"`
	PublicAudioKey    string      `json:"publicAudioKey,omitempty"`
	TranscriptPreview string      `json:"transcriptPreview,omitempty"`
	Title             string      `json:"title,omitempty"`
	Summary           string      `json:"summary,omitempty"`
	Tags              []string    `json:"tags,omitempty"`
	ViralityScore     *int        `json:"viralityScore,omitempty"`
	HighPotential     bool        `json:"highPotential"`
	Moderation        *Moderation `json:"moderation,omitempty"`
	Description       string      `json:"description,omitempty"`
	SuggestedTags     []string    `json:"suggestedTags,omitempty"`
	CoverImageKey     string      `json:"coverImageKey,omitempty"`
	CreatedAt         string      `json:"createdAt,omitempty"`
	UpdatedAt         string      `json:"updatedAt,omitempty"`
	PublishedAt       string      `json:"publishedAt,omitempty"`
}

// Moderation carries the stored verdict and its classifier details.
type Moderation struct {
	Verdict string          `json:"verdict"`
	Details json.RawMessage `json:"details,omitempty"`
}

// UploadTicket is returned by Create. UploadURL is empty when the storage
// backend cannot sign URLs; callers then upload through AddFile.
type UploadTicket struct {
	Submission   Submission `json:"submission"`
	ObjectKey    string     `json:"objectKey"`
	UploadURL    string     `json:"uploadUrl,omitempty"`
	UploadMethod string     `json:"uploadMethod,omitempty"`
	ExpiresAt    string     `json:"expiresAt,omitempty"`
}

// CoverTicket is returned by CreateCoverUpload. Pass ObjectKey as the cover
// image key when completing the upload.
type CoverTicket struct {
	ObjectKey    string `json:"objectKey"`
	UploadURL    string `json:"uploadUrl,omitempty"`
	UploadMethod string `json:"uploadMethod,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// FeedItem is one published story.
type FeedItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	ViralityScore *int     `json:"viralityScore,omitempty"`
	HighPotential bool     `json:"highPotential"`
	AudioKey      string   `json:"audioKey"`
	AudioURL      string   `json:"audioUrl,omitempty"`
	CoverURL      string   `json:"coverUrl,omitempty"`
	PublishedAt   string   `json:"publishedAt,omitempty"`
}

// Event is one audit fact.
type Event struct {
	ID           string         `json:"id"`
	Seq          int64          `json:"seq"`
	Name         string         `json:"name"`
	Version      int            `json:"version"`
	SubmissionID string         `json:"submissionId,omitempty"`
	Timestamp    string         `json:"timestamp"`
	Payload      map[string]any `json:"payload"`
}

// SubmissionListResponse wraps a collection of submissions.
type SubmissionListResponse struct {
	Items []Submission `json:"items"`
}

// SubmissionResponse wraps a single submission.
type SubmissionResponse struct {
	Item Submission `json:"item"`
}

// FeedResponse wraps the published feed.
type FeedResponse struct {
	Items []FeedItem `json:"items"`
}

// EventListResponse wraps a collection of events.
type EventListResponse struct {
	Events []Event `json:"events"`
}

// StatsResponse provides submission counts keyed by status.
type StatsResponse struct {
	Counts     map[string]int `json:"counts"`
	QueueDepth int            `json:"queueDepth"`
}
