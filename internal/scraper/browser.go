package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// BrowserStrategy renders the page in a headless browser and reads its Open
// Graph tags directly. It is the last resort in the chain and needs a local
// Chromium; it is only registered when explicitly enabled.
type BrowserStrategy struct {
	log logrus.FieldLogger
}

func NewBrowserStrategy(logger logrus.FieldLogger) *BrowserStrategy {
	return &BrowserStrategy{
		log: logger.WithField("strategy", "browser"),
	}
}

func (s *BrowserStrategy) Name() string { return "browser" }

var (
	titleSelectors = []string{`meta[property="og:title"]`, `meta[name="twitter:title"]`}
	imageSelectors = []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`}
)

// Fetch launches a browser per call. The caller's context bounds the whole attempt.
func (s *BrowserStrategy) Fetch(ctx context.Context, rawURL string) (md Metadata, err error) {
	log := s.log.WithField("url", rawURL)

	path, exists := launcher.LookPath()
	if !exists {
		return Metadata{}, errors.New("rod browser dependency not found")
	}

	l := launcher.New().Bin(path).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return Metadata{}, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod browser instance")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Metadata{}, fmt.Errorf("page load timed out: %w", ctx.Err())
		}
		return Metadata{}, fmt.Errorf("failed waiting for page load: %w", err)
	}

	md.Title = metaContent(page, titleSelectors)
	if md.Title == "" {
		if has, el, err := page.Has("title"); err == nil && has {
			if text, err := el.Text(); err == nil {
				md.Title = strings.TrimSpace(text)
			}
		}
	}
	md.Thumbnail = metaContent(page, imageSelectors)

	if md.Title == "" && md.Thumbnail == "" {
		return Metadata{}, errNoData
	}
	return md, nil
}

// metaContent returns the first non-empty content attribute among selectors.
// Missing tags are not errors; pages often carry only some of them.
func metaContent(page *rod.Page, selectors []string) string {
	for _, selector := range selectors {
		has, el, err := page.Has(selector)
		if err != nil || !has {
			continue
		}
		content, err := el.Attribute("content")
		if err == nil && content != nil {
			if v := strings.TrimSpace(*content); v != "" {
				return v
			}
		}
	}
	return ""
}
