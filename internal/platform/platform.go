// Package platform files arbitrary URLs under a fixed set of categories.
package platform

import (
	"net/url"
	"strings"

	"linkdrop/internal/domain"
)

// Classify returns the platform category for rawURL.
// It never fails: unparsable or unrecognised URLs are domain.PlatformLink.
func Classify(rawURL string) domain.Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return domain.PlatformLink
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return domain.PlatformLink
	}
	path := strings.ToLower(u.Path)

	switch {
	case strings.Contains(host, "youtube.com"), strings.Contains(host, "youtu.be"):
		return domain.PlatformYouTube
	case strings.Contains(host, "twitter.com"), strings.Contains(host, "x.com"):
		return domain.PlatformTweet
	case strings.Contains(host, "substack.com"):
		return domain.PlatformSubstack
	case strings.Contains(host, "medium.com"):
		return domain.PlatformArticle
	case strings.Contains(host, "amazon.com") &&
		(strings.Contains(path, "/dp/") || strings.Contains(path, "/book")):
		return domain.PlatformBook
	case strings.Contains(host, "goodreads.com"):
		return domain.PlatformBook
	}
	return domain.PlatformLink
}

// DomainTag returns a short label for the URL's site, e.g. "nytimes" for
// https://www.nytimes.com/... It returns "" when the URL cannot be parsed.
func DomainTag(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}
