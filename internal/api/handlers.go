// Package api exposes the mailbox over JSON HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"linkdrop/internal/domain"
	"linkdrop/internal/platform"
	"linkdrop/internal/quota"
	"linkdrop/internal/submission"
)

// Handler serves the HTTP API on top of the submission service.
type Handler struct {
	svc *submission.Service
	log logrus.FieldLogger
}

func NewHandler(svc *submission.Service, logger logrus.FieldLogger) *Handler {
	return &Handler{
		svc: svc,
		log: logger.WithField("component", "api"),
	}
}

type submitRequest struct {
	Sender    string   `json:"sender"`
	Recipient string   `json:"recipient"`
	URL       string   `json:"url"`
	Note      string   `json:"note"`
	Tags      []string `json:"tags"`
}

type errorResponse struct {
	Error          string     `json:"error"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

type eligibilityResponse struct {
	quota.Eligibility
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

type classifyResponse struct {
	URL       string          `json:"url"`
	Platform  domain.Platform `json:"platform"`
	DomainTag string          `json:"domain_tag"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("Failed to write response")
	}
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// reported with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rl *domain.RateLimitError
	switch {
	case errors.As(err, &rl):
		next := rl.NextEligibleAt
		h.writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:          domain.ErrRateLimited.Error(),
			NextEligibleAt: &next,
		})
	case domain.IsValidation(err):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrLinkNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrSubmissionFailed):
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: domain.ErrSubmissionFailed.Error()})
	default:
		h.log.WithError(err).Error("Request failed")
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	h.writeJSON(w, http.StatusOK, users)
}

// Eligibility handles GET /api/users/{slug}/eligibility.
func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Eligibility(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, eligibilityResponse{
		Eligibility: e,
		Remaining:   e.Remaining(),
		Limit:       quota.DailyLimit,
	})
}

// Inbox handles GET /api/users/{slug}/inbox.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.Inbox(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, links)
}

// Archive handles GET /api/users/{slug}/archive?platform=&q=.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := submission.NewArchiveFilter(query.Get("platform"), query.Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	links, err := h.svc.Archive(r.Context(), chi.URLParam(r, "slug"), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, links)
}

// SubmitLink handles POST /api/links.
func (h *Handler) SubmitLink(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.svc.Submit(r.Context(), submission.Request{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		URL:       req.URL,
		Note:      req.Note,
		Tags:      req.Tags,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, link)
}

// MarkWatched handles POST /api/links/{id}/watched.
func (h *Handler) MarkWatched(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkWatched(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Classify handles GET /api/classify?url=.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	h.writeJSON(w, http.StatusOK, classifyResponse{
		URL:       raw,
		Platform:  platform.Classify(raw),
		DomainTag: platform.DomainTag(raw),
	})
}
