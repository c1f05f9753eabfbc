package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultYouTubeOEmbedURL is YouTube's public oEmbed endpoint.
const DefaultYouTubeOEmbedURL = "https://www.youtube.com/oembed"

// YouTubeStrategy handles YouTube video URLs. The thumbnail is derived from the
// video id; only the title needs a network call.
type YouTubeStrategy struct {
	fetcher  *Fetcher
	endpoint string
	log      logrus.FieldLogger
}

func NewYouTubeStrategy(fetcher *Fetcher, endpoint string, logger logrus.FieldLogger) *YouTubeStrategy {
	if endpoint == "" {
		endpoint = DefaultYouTubeOEmbedURL
	}
	return &YouTubeStrategy{
		fetcher:  fetcher,
		endpoint: endpoint,
		log:      logger.WithField("strategy", "youtube"),
	}
}

func (s *YouTubeStrategy) Name() string { return "youtube" }

// Fetch returns ErrNotApplicable unless a video id can be extracted. Once it can,
// Fetch always succeeds with a thumbnail; a failed title lookup leaves Title empty.
func (s *YouTubeStrategy) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	id := YouTubeVideoID(rawURL)
	if id == "" {
		return Metadata{}, ErrNotApplicable
	}

	md := Metadata{Thumbnail: YouTubeThumbnail(id)}

	title, err := s.title(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("video_id", id).Warn("Failed to fetch YouTube title")
		return md, nil
	}
	md.Title = title
	return md, nil
}

type oembedResponse struct {
	Title string `json:"title"`
}

func (s *YouTubeStrategy) title(ctx context.Context, id string) (string, error) {
	endpoint, err := withQuery(s.endpoint, url.Values{
		"url":    {"https://www.youtube.com/watch?v=" + id},
		"format": {"json"},
	})
	if err != nil {
		return "", err
	}

	var resp oembedResponse
	if err := s.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Title), nil
}

// YouTubeVideoID extracts the video id from a youtube.com watch URL (the "v"
// query parameter) or a youtu.be short URL (the first path segment).
// It returns "" when no id is present.
func YouTubeVideoID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(host, "youtube.com"):
		return u.Query().Get("v")
	case strings.Contains(host, "youtu.be"):
		id, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		return id
	}
	return ""
}

// YouTubeThumbnail builds the medium-quality thumbnail URL for a video id.
func YouTubeThumbnail(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", videoID)
}

// withQuery merges params into the query string of endpoint.
func withQuery(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
