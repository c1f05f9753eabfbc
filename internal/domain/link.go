package domain

import (
	"strings"
	"time"
)

// Platform is the coarse category a shared URL is filed under.
type Platform string

const (
	PlatformYouTube  Platform = "YouTube"
	PlatformTweet    Platform = "Tweet"
	PlatformSubstack Platform = "Substack"
	PlatformArticle  Platform = "Article"
	PlatformBook     Platform = "Book"
	// PlatformLink is the generic fallback for anything unrecognised.
	PlatformLink Platform = "Link"
)

// Platforms returns every category in display order.
func Platforms() []Platform {
	return []Platform{
		PlatformYouTube,
		PlatformTweet,
		PlatformSubstack,
		PlatformArticle,
		PlatformBook,
		PlatformLink,
	}
}

// ParsePlatform maps a stored value back onto the enumeration.
// Unknown values fall back to PlatformLink.
func ParsePlatform(s string) Platform {
	for _, p := range Platforms() {
		if string(p) == s {
			return p
		}
	}
	return PlatformLink
}

// LookupPlatform matches s against the enumeration, ignoring case.
// Unlike ParsePlatform it reports unknown values instead of defaulting.
func LookupPlatform(s string) (Platform, bool) {
	for _, p := range Platforms() {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return "", false
}

// Link is a URL one user sent to another.
type Link struct {
	// ID is assigned by the repository on insert.
	ID string `json:"id"`

	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`

	// URL is the submitted absolute URL.
	URL string `json:"url"`

	// Title and Thumbnail come from metadata enrichment and are nil when it was unavailable.
	Title     *string `json:"title"`
	Thumbnail *string `json:"thumbnail"`

	PlatformTag Platform `json:"platform_tag"`
	CustomTags  []string `json:"custom_tags"`
	Note        *string  `json:"note"`

	// CreatedAt is set by the repository and is what the daily quota counts against.
	CreatedAt time.Time `json:"created_at"`

	// Watched flips to true once; WatchedAt is set at that moment and never again.
	Watched   bool       `json:"watched"`
	WatchedAt *time.Time `json:"watched_at"`
}

// MarkWatched applies the one-way unwatched -> watched transition.
// It reports whether the link changed.
func (l *Link) MarkWatched(at time.Time) bool {
	if l.Watched {
		return false
	}
	l.Watched = true
	l.WatchedAt = &at
	return true
}

// LinkWithSender is a Link joined with the public fields of its sender,
// which is how inbox and archive listings are presented.
type LinkWithSender struct {
	Link
	Sender User `json:"sender"`
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
