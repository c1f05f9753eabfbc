package scraper

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Default endpoints of the hosted Open Graph extraction services.
const (
	DefaultJSONLinkURL  = "https://jsonlink.io/api/extract"
	DefaultMicrolinkURL = "https://api.microlink.io/"
)

var errNoData = errors.New("provider reported no data")

// JSONLinkStrategy is the primary generic scraper, backed by jsonlink.io.
type JSONLinkStrategy struct {
	fetcher  *Fetcher
	endpoint string
	log      logrus.FieldLogger
}

func NewJSONLinkStrategy(fetcher *Fetcher, endpoint string, logger logrus.FieldLogger) *JSONLinkStrategy {
	if endpoint == "" {
		endpoint = DefaultJSONLinkURL
	}
	return &JSONLinkStrategy{
		fetcher:  fetcher,
		endpoint: endpoint,
		log:      logger.WithField("strategy", "jsonlink"),
	}
}

func (s *JSONLinkStrategy) Name() string { return "jsonlink" }

type jsonLinkResponse struct {
	Title  string   `json:"title"`
	Images []string `json:"images"`
	OG     *struct {
		Title string `json:"title"`
		Image string `json:"image"`
	} `json:"og"`
}

// Fetch succeeds on any 2xx response, even one without title or image.
func (s *JSONLinkStrategy) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	endpoint, err := withQuery(s.endpoint, url.Values{"url": {rawURL}})
	if err != nil {
		return Metadata{}, err
	}

	var resp jsonLinkResponse
	if err := s.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return Metadata{}, err
	}

	md := Metadata{Title: strings.TrimSpace(resp.Title)}
	if len(resp.Images) > 0 {
		md.Thumbnail = strings.TrimSpace(resp.Images[0])
	}
	if resp.OG != nil {
		md.Title = firstNonEmpty(md.Title, resp.OG.Title)
		md.Thumbnail = firstNonEmpty(md.Thumbnail, resp.OG.Image)
	}
	return md, nil
}

// MicrolinkStrategy is the fallback generic scraper, backed by microlink.io.
type MicrolinkStrategy struct {
	fetcher  *Fetcher
	endpoint string
	log      logrus.FieldLogger
}

func NewMicrolinkStrategy(fetcher *Fetcher, endpoint string, logger logrus.FieldLogger) *MicrolinkStrategy {
	if endpoint == "" {
		endpoint = DefaultMicrolinkURL
	}
	return &MicrolinkStrategy{
		fetcher:  fetcher,
		endpoint: endpoint,
		log:      logger.WithField("strategy", "microlink"),
	}
}

func (s *MicrolinkStrategy) Name() string { return "microlink" }

type microlinkAsset struct {
	URL string `json:"url"`
}

type microlinkResponse struct {
	Status string `json:"status"`
	Data   *struct {
		Title string          `json:"title"`
		Image *microlinkAsset `json:"image"`
		Logo  *microlinkAsset `json:"logo"`
	} `json:"data"`
}

// Fetch only trusts the payload when the provider reports status "success".
func (s *MicrolinkStrategy) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	endpoint, err := withQuery(s.endpoint, url.Values{"url": {rawURL}})
	if err != nil {
		return Metadata{}, err
	}

	var resp microlinkResponse
	if err := s.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return Metadata{}, err
	}
	if resp.Status != "success" || resp.Data == nil {
		s.log.WithField("status", resp.Status).Debug("Microlink returned no usable data")
		return Metadata{}, errNoData
	}

	md := Metadata{Title: strings.TrimSpace(resp.Data.Title)}
	if resp.Data.Image != nil {
		md.Thumbnail = strings.TrimSpace(resp.Data.Image.URL)
	}
	if md.Thumbnail == "" && resp.Data.Logo != nil {
		md.Thumbnail = strings.TrimSpace(resp.Data.Logo.URL)
	}
	return md, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
