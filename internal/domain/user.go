package domain

import "time"

// User is a mailbox participant. Users are selected by slug, not authenticated.
type User struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`

	// LastSubmittedAt is advisory only; quota checks recount from link history.
	LastSubmittedAt *time.Time `json:"last_submitted_at"`
}
