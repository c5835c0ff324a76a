package submissions

import "errors"

var (
	// ErrNotFound is returned by mutations addressed to a missing submission.
	ErrNotFound = errors.New("submission not found")
	// ErrNoAudio marks a submission without a raw audio reference.
	ErrNoAudio = errors.New("submission has no audio")
	// ErrInvalidMode rejects anonymization modes outside OFF/SOFT/MEDIUM/STRONG.
	ErrInvalidMode = errors.New("invalid anonymization mode")
	// ErrStepRegression is returned when a commit would move the step counter backwards.
	ErrStepRegression = errors.New("processing step cannot move backwards")
	// ErrInvalidTransition rejects upload completion for a submission past CREATED.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidCoverKey rejects cover keys outside the submission's own prefix.
	ErrInvalidCoverKey = errors.New("cover image key outside submission prefix")
)
