// Package submission finalizes link submissions between users and manages
// the recipient's inbox and archive.
package submission

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"linkdrop/internal/domain"
	"linkdrop/internal/platform"
	"linkdrop/internal/quota"
	"linkdrop/internal/scraper"
	"linkdrop/internal/storage"
)

// Store is the persistence the service needs.
type Store interface {
	quota.Counter
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUserBySlug(ctx context.Context, slug string) (domain.User, error)
	InsertLink(ctx context.Context, link storage.NewLink) (domain.Link, error)
	ListInbox(ctx context.Context, recipientID string) ([]domain.LinkWithSender, error)
	ListArchive(ctx context.Context, recipientID string) ([]domain.LinkWithSender, error)
	UpdateWatched(ctx context.Context, linkID string) error
}

// Gatekeeper decides whether a sender may submit now.
type Gatekeeper interface {
	Check(ctx context.Context, senderID string) quota.Eligibility
}

// MetadataResolver enriches a URL. It never fails.
type MetadataResolver interface {
	Resolve(ctx context.Context, rawURL string) scraper.Metadata
}

// Request is a link submission from one user to another, both identified by slug.
type Request struct {
	Sender    string
	Recipient string
	URL       string
	Note      string
	Tags      []string
}

// Service wires the gatekeeper, classifier and resolver in front of the store.
type Service struct {
	store    Store
	gate     Gatekeeper
	resolver MetadataResolver
	log      logrus.FieldLogger
}

func NewService(store Store, gate Gatekeeper, resolver MetadataResolver, logger logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		resolver: resolver,
		log:      logger.WithField("component", "submission"),
	}
}

// Users lists every selectable user.
func (s *Service) Users(ctx context.Context) ([]domain.User, error) {
	return s.store.ListUsers(ctx)
}

// Eligibility reports the quota state of the user with the given slug.
func (s *Service) Eligibility(ctx context.Context, slug string) (quota.Eligibility, error) {
	u, err := s.store.GetUserBySlug(ctx, slug)
	if err != nil {
		return quota.Eligibility{}, err
	}
	return s.gate.Check(ctx, u.ID), nil
}

// Submit validates req, enforces the daily quota and stores the link.
//
// Validation errors and *domain.RateLimitError are returned before anything
// is written. Metadata enrichment never fails a submission; a storage
// failure is returned wrapped in domain.ErrSubmissionFailed.
func (s *Service) Submit(ctx context.Context, req Request) (domain.Link, error) {
	rawURL, err := ValidateURL(req.URL)
	if err != nil {
		return domain.Link{}, err
	}

	sender, err := s.store.GetUserBySlug(ctx, strings.TrimSpace(req.Sender))
	if err != nil {
		return domain.Link{}, fmt.Errorf("sender: %w", err)
	}
	recipient, err := s.store.GetUserBySlug(ctx, strings.TrimSpace(req.Recipient))
	if err != nil {
		return domain.Link{}, fmt.Errorf("recipient: %w", err)
	}
	if sender.ID == recipient.ID {
		return domain.Link{}, domain.ErrSelfSend
	}

	log := s.log.WithFields(logrus.Fields{
		"sender":    sender.Slug,
		"recipient": recipient.Slug,
		"url":       rawURL,
	})

	eligibility := s.gate.Check(ctx, sender.ID)
	if !eligibility.Allowed {
		log.WithField("count_today", eligibility.CountToday).Info("Submission rejected by daily limit")
		next := time.Time{}
		if eligibility.NextEligibleAt != nil {
			next = *eligibility.NextEligibleAt
		}
		return domain.Link{}, &domain.RateLimitError{
			NextEligibleAt: next,
			CountToday:     eligibility.CountToday,
		}
	}

	tag := platform.Classify(rawURL)
	md := s.resolver.Resolve(ctx, rawURL)
	if err := ctx.Err(); err != nil {
		return domain.Link{}, err
	}

	link, err := s.store.InsertLink(ctx, storage.NewLink{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		URL:         rawURL,
		Title:       domain.StringPtr(md.Title),
		Thumbnail:   domain.StringPtr(md.Thumbnail),
		PlatformTag: tag,
		CustomTags:  NormalizeTags(req.Tags),
		Note:        domain.StringPtr(strings.TrimSpace(req.Note)),
	})
	if err != nil {
		log.WithError(err).Error("Failed to store submission")
		return domain.Link{}, fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
	}

	log.WithFields(logrus.Fields{
		"link_id":      link.ID,
		"platform_tag": link.PlatformTag,
	}).Info("Link submitted")
	return link, nil
}

// Inbox lists the unwatched links sent to the user with the given slug.
func (s *Service) Inbox(ctx context.Context, slug string) ([]domain.LinkWithSender, error) {
	u, err := s.store.GetUserBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.store.ListInbox(ctx, u.ID)
}

// ArchiveFilter narrows an archive listing. The zero value matches everything.
type ArchiveFilter struct {
	// Platform keeps only links with this tag when set.
	Platform domain.Platform
	// Query is matched case-insensitively against title, URL and custom tags.
	Query string
}

// NewArchiveFilter builds a filter from user input. An empty platform means
// any platform; an unrecognised one is rejected with domain.ErrUnknownPlatform.
func NewArchiveFilter(platformName, query string) (ArchiveFilter, error) {
	f := ArchiveFilter{Query: strings.TrimSpace(query)}
	if platformName = strings.TrimSpace(platformName); platformName != "" {
		p, ok := domain.LookupPlatform(platformName)
		if !ok {
			return ArchiveFilter{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlatform, platformName)
		}
		f.Platform = p
	}
	return f, nil
}

// Match reports whether link passes the filter.
func (f ArchiveFilter) Match(link domain.Link) bool {
	if f.Platform != "" && link.PlatformTag != f.Platform {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	title := ""
	if link.Title != nil {
		title = *link.Title
	}
	return strings.Contains(strings.ToLower(title), q) ||
		strings.Contains(strings.ToLower(link.URL), q) ||
		strings.Contains(strings.ToLower(strings.Join(link.CustomTags, " ")), q)
}

// Archive lists the watched links sent to the user with the given slug that match filter.
func (s *Service) Archive(ctx context.Context, slug string, filter ArchiveFilter) ([]domain.LinkWithSender, error) {
	u, err := s.store.GetUserBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	links, err := s.store.ListArchive(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if filter == (ArchiveFilter{}) {
		return links, nil
	}
	matched := make([]domain.LinkWithSender, 0, len(links))
	for _, l := range links {
		if filter.Match(l.Link) {
			matched = append(matched, l)
		}
	}
	return matched, nil
}

// MarkWatched moves a link from the inbox to the archive. There is no undo.
func (s *Service) MarkWatched(ctx context.Context, linkID string) error {
	if err := s.store.UpdateWatched(ctx, linkID); err != nil {
		if !errors.Is(err, domain.ErrLinkNotFound) {
			s.log.WithError(err).WithField("link_id", linkID).Error("Failed to mark link watched")
		}
		return err
	}
	return nil
}

// ValidateURL trims rawURL and checks that it is an absolute URL with a host.
func ValidateURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", domain.ErrEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidURL, rawURL)
	}
	return rawURL, nil
}

// NormalizeTags trims tags and drops blanks, keeping the original order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
