package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkdrop/internal/domain"
	"linkdrop/internal/quota"
	"linkdrop/internal/scraper"
	"linkdrop/internal/storage"
	"linkdrop/internal/submission"
)

type staticResolver scraper.Metadata

func (s staticResolver) Resolve(context.Context, string) scraper.Metadata { return scraper.Metadata(s) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)

	repo, err := storage.NewBadgerRepository(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repo.Close()) })

	_, err = repo.SeedUsers(context.Background(), []storage.UserSeed{
		{Slug: "alice", Name: "Alice"},
		{Slug: "bob", Name: "Bob"},
	})
	require.NoError(t, err)

	gate := quota.NewGatekeeper(repo, logger)
	svc := submission.NewService(repo, gate, staticResolver{Title: "Example"}, logger)

	srv := httptest.NewServer(NewRouter(NewHandler(svc, logger), logger))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, nil)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAPI_SubmitAndReadInbox(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/links",
		`{"sender":"alice","recipient":"bob","url":"https://medium.com/@x/story","note":"look"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var link domain.Link
	decode(t, resp, &link)
	assert.NotEmpty(t, link.ID)
	assert.Equal(t, domain.PlatformArticle, link.PlatformTag)
	require.NotNil(t, link.Title)
	assert.Equal(t, "Example", *link.Title)
	assert.Nil(t, link.Thumbnail)
	assert.Equal(t, []string{}, link.CustomTags)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/bob/inbox", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inbox []domain.LinkWithSender
	decode(t, resp, &inbox)
	require.Len(t, inbox, 1)
	assert.Equal(t, link.ID, inbox[0].ID)
	assert.Equal(t, "Alice", inbox[0].Sender.Name)

	resp = do(t, http.MethodPost, srv.URL+"/api/links/"+link.ID+"/watched", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/bob/archive", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var archive []domain.LinkWithSender
	decode(t, resp, &archive)
	require.Len(t, archive, 1)
	assert.True(t, archive[0].Watched)
	assert.NotNil(t, archive[0].WatchedAt)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/bob/inbox", "")
	var empty []domain.LinkWithSender
	decode(t, resp, &empty)
	assert.Empty(t, empty)
}

func TestAPI_RateLimit(t *testing.T) {
	srv := newTestServer(t)
	body := `{"sender":"alice","recipient":"bob","url":"https://example.com"}`

	for i := 0; i < quota.DailyLimit; i++ {
		resp := do(t, http.MethodPost, srv.URL+"/api/links", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := do(t, http.MethodPost, srv.URL+"/api/links", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	var errResp errorResponse
	decode(t, resp, &errResp)
	require.NotNil(t, errResp.NextEligibleAt)
	assert.True(t, errResp.NextEligibleAt.Equal(quota.NextReset(time.Now())))

	resp = do(t, http.MethodGet, srv.URL+"/api/users/alice/eligibility", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var elig map[string]any
	decode(t, resp, &elig)
	assert.Equal(t, false, elig["allowed"])
	assert.EqualValues(t, 2, elig["count_today"])
	assert.EqualValues(t, 0, elig["remaining"])
	assert.NotNil(t, elig["next_eligible_at"])
}

func TestAPI_ArchiveFilter(t *testing.T) {
	srv := newTestServer(t)

	submit := func(url, tags string) domain.Link {
		t.Helper()
		resp := do(t, http.MethodPost, srv.URL+"/api/links",
			`{"sender":"alice","recipient":"bob","url":"`+url+`","tags":`+tags+`}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var link domain.Link
		decode(t, resp, &link)
		resp = do(t, http.MethodPost, srv.URL+"/api/links/"+link.ID+"/watched", "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		return link
	}
	video := submit("https://youtu.be/abc123", `["music"]`)
	essay := submit("https://medium.com/@x/story", `["Music","essays"]`)

	archive := func(query string) []string {
		t.Helper()
		resp := do(t, http.MethodGet, srv.URL+"/api/users/bob/archive"+query, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var links []domain.LinkWithSender
		decode(t, resp, &links)
		ids := []string{}
		for _, l := range links {
			ids = append(ids, l.ID)
		}
		return ids
	}

	assert.ElementsMatch(t, []string{video.ID, essay.ID}, archive(""))
	assert.Equal(t, []string{video.ID}, archive("?platform=YouTube"))
	assert.ElementsMatch(t, []string{video.ID, essay.ID}, archive("?q=MUSIC"))
	assert.Equal(t, []string{essay.ID}, archive("?q=medium"))
	assert.Equal(t, []string{essay.ID}, archive("?platform=article&q=music"))
	assert.Empty(t, archive("?platform=Book&q=music"))
}

func TestAPI_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"self send", http.MethodPost, "/api/links", `{"sender":"bob","recipient":"bob","url":"https://example.com"}`, http.StatusBadRequest},
		{"invalid url", http.MethodPost, "/api/links", `{"sender":"alice","recipient":"bob","url":"nope"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/links", `{"sender":`, http.StatusBadRequest},
		{"unknown user", http.MethodPost, "/api/links", `{"sender":"zed","recipient":"bob","url":"https://example.com"}`, http.StatusNotFound},
		{"unknown inbox", http.MethodGet, "/api/users/zed/inbox", "", http.StatusNotFound},
		{"unknown archive platform", http.MethodGet, "/api/users/bob/archive?platform=Podcast", "", http.StatusBadRequest},
		{"unknown link", http.MethodPost, "/api/links/missing/watched", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPI_UsersAndClassify(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/users", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []domain.User
	decode(t, resp, &users)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Slug)

	resp = do(t, http.MethodGet, srv.URL+"/api/classify?url="+"https%3A%2F%2Fwww.goodreads.com%2Fbook%2Fshow%2F1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var c classifyResponse
	decode(t, resp, &c)
	assert.Equal(t, domain.PlatformBook, c.Platform)
	assert.Equal(t, "goodreads", c.DomainTag)

	resp = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
