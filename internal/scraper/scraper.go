package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotApplicable is returned by a Strategy that does not handle the given URL.
var ErrNotApplicable = errors.New("strategy not applicable to url")

// Metadata is the best-effort enrichment for a URL. Empty fields mean "unavailable".
type Metadata struct {
	Title     string
	Thumbnail string
}

// Strategy is one way of obtaining Metadata for a URL.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Fetch returns metadata for rawURL, ErrNotApplicable if the strategy
	// does not handle it, or any other error when the source failed.
	Fetch(ctx context.Context, rawURL string) (Metadata, error)
}

// Resolver applies strategies in order and commits to the first success.
type Resolver struct {
	strategies []Strategy
	timeout    time.Duration
	log        logrus.FieldLogger
}

// NewResolver creates a Resolver over the given strategies. Each attempt is
// bounded by timeout; zero disables the per-attempt deadline.
func NewResolver(logger logrus.FieldLogger, timeout time.Duration, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: strategies,
		timeout:    timeout,
		log:        logger.WithField("component", "metadata_resolver"),
	}
}

// Resolve never fails. When every strategy is exhausted the zero Metadata is returned.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) Metadata {
	log := r.log.WithField("url", rawURL)

	for _, s := range r.strategies {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Debug("Metadata resolution abandoned")
			return Metadata{}
		}

		md, err := r.attempt(ctx, s, rawURL)
		if err == nil {
			log.WithFields(logrus.Fields{
				"strategy":      s.Name(),
				"has_title":     md.Title != "",
				"has_thumbnail": md.Thumbnail != "",
			}).Debug("Metadata resolved")
			return md
		}
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		log.WithError(err).WithField("strategy", s.Name()).Warn("Metadata strategy failed, trying next")
	}

	log.Info("No metadata available")
	return Metadata{}
}

func (r *Resolver) attempt(ctx context.Context, s Strategy, rawURL string) (Metadata, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return s.Fetch(ctx, rawURL)
}
