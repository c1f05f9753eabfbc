package scraper

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures the standard strategy chain.
type Options struct {
	Timeout         time.Duration
	RequestsPerSec  float64
	YouTubeOEmbed   string
	JSONLinkURL     string
	MicrolinkURL    string
	BrowserFallback bool

	// Client overrides the HTTP client, mainly for tests.
	Client HTTPDoer
}

// New builds the resolver used by submissions: the video provider first, then
// the primary and secondary Open Graph services, then optionally a headless browser.
func New(logger logrus.FieldLogger, opts Options) *Resolver {
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(opts.Timeout)
	}
	fetcher := NewFetcher(client, opts.RequestsPerSec)

	strategies := []Strategy{
		NewYouTubeStrategy(fetcher, opts.YouTubeOEmbed, logger),
		NewJSONLinkStrategy(fetcher, opts.JSONLinkURL, logger),
		NewMicrolinkStrategy(fetcher, opts.MicrolinkURL, logger),
	}
	if opts.BrowserFallback {
		strategies = append(strategies, NewBrowserStrategy(logger))
	}

	return NewResolver(logger, opts.Timeout, strategies...)
}

// Strategies returns the names of the configured strategies in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return names
}
