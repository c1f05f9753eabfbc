package domain

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors. These are returned before anything is written.
var (
	ErrEmptyURL     = errors.New("url is required")
	ErrInvalidURL   = errors.New("url must be a valid absolute URL")
	ErrSelfSend     = errors.New("cannot send a link to yourself")
	ErrUserNotFound = errors.New("user not found")
	ErrLinkNotFound = errors.New("link not found")
	ErrSlugTaken    = errors.New("user slug already exists")

	ErrUnknownPlatform = errors.New("unknown platform")
)

var (
	// ErrRateLimited matches any *RateLimitError via errors.Is.
	ErrRateLimited = errors.New("daily submission limit reached")

	// ErrSubmissionFailed wraps persistence failures while finalizing a submission.
	ErrSubmissionFailed = errors.New("failed to submit link")
)

// RateLimitError reports a denied submission and when the sender may try again.
type RateLimitError struct {
	NextEligibleAt time.Time
	CountToday     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (%d today), next submission allowed at %s",
		ErrRateLimited, e.CountToday, e.NextEligibleAt.Format(time.RFC3339))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsValidation reports whether err is a caller mistake rather than an infrastructure failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyURL) ||
		errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrSelfSend) ||
		errors.Is(err, ErrUnknownPlatform)
}
