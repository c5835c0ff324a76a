package submissions

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a submission.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusUploaded    Status = "UPLOADED"
	StatusProcessing  Status = "PROCESSING"
	StatusRejected    Status = "REJECTED"
	StatusQuarantined Status = "QUARANTINED"
	StatusApproved    Status = "APPROVED"
)

var allStatuses = []Status{
	StatusCreated,
	StatusUploaded,
	StatusProcessing,
	StatusRejected,
	StatusQuarantined,
	StatusApproved,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Halted reports whether the pipeline stopped on a moderation verdict.
// Only Reprocess moves a submission out of a halted status.
func (s Status) Halted() bool {
	return s == StatusRejected || s == StatusQuarantined
}

// Step is the watermark of the highest completed pipeline step.
type Step int

const (
	StepNone Step = iota
	StepNormalized
	StepTranscribed
	StepModerated
	StepTagged
	StepAnonymized
	StepPublished
)

var stepNames = [...]string{"none", "normalized", "transcribed", "moderated", "tagged", "anonymized", "published"}

func (s Step) String() string {
	if s < StepNone || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Mode selects how strongly the published voice is disguised.
type Mode string

const (
	ModeOff    Mode = "OFF"
	ModeSoft   Mode = "SOFT"
	ModeMedium Mode = "MEDIUM"
	ModeStrong Mode = "STRONG"
)

// DefaultMode applies when a submission never chose one.
const DefaultMode = ModeSoft

var modeSemitones = map[Mode]int{
	ModeOff:    0,
	ModeSoft:   2,
	ModeMedium: 3,
	ModeStrong: 4,
}

// ParseMode validates an anonymization mode name.
func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := modeSemitones[mode]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
	return mode, nil
}

// Semitones returns the pitch delta for the mode. Unknown modes fall back to
// the default mode's delta.
func (m Mode) Semitones() int {
	if n, ok := modeSemitones[m]; ok {
		return n
	}
	return modeSemitones[DefaultMode]
}

// HighPotentialScore is the virality threshold for highlighting a story.
const HighPotentialScore = 85

// Submission is one audio story tracked through the pipeline.
type Submission struct {
	ID                string
	OwnerID           string
	Status            Status
	Step              Step
	Mode              Mode
	RawAudioKey       string
	PublicAudioKey    string
	TranscriptPreview string
	Title             string
	Summary           string
	Tags              []string
	ViralityScore     *int
	Verdict           string
	ModerationJSON    string
	Description       string
	SuggestedTags     []string
	CoverImageKey     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PublishedAt       *time.Time
}

// HighPotential reports whether the virality score crosses the highlight threshold.
func (s *Submission) HighPotential() bool {
	return s != nil && s.ViralityScore != nil && *s.ViralityScore >= HighPotentialScore
}

// Done reports whether step has already been committed for this submission.
func (s *Submission) Done(step Step) bool {
	return s.Step >= step
}

// clearDerived resets every field the pipeline writes.
func (s *Submission) clearDerived() {
	s.Step = StepNone
	s.PublicAudioKey = ""
	s.TranscriptPreview = ""
	s.Title = ""
	s.Summary = ""
	s.Tags = nil
	s.ViralityScore = nil
	s.Verdict = ""
	s.ModerationJSON = ""
	s.PublishedAt = nil
}

// UploadDetails carries what the uploader supplies when marking audio uploaded.
type UploadDetails struct {
	Mode          Mode
	Description   string
	SuggestedTags []string
	CoverImageKey string
}

// Filter narrows List results.
type Filter struct {
	OwnerID  string
	Statuses []Status
	Limit    int
}
