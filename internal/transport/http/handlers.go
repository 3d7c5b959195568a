package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/service"
)

const notFoundPage = `<!DOCTYPE html>
<html>
<head><title>Link not found</title></head>
<body>
<h1>404</h1>
<p>This short link does not exist or has been deactivated.</p>
</body>
</html>
`

// Handler holds the HTTP handlers for the URL shortener
type Handler struct {
	shortener service.URLShortener
	serverURL string
	logger    zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(shortener service.URLShortener, serverURL string, logger zerolog.Logger) *Handler {
	return &Handler{
		shortener: shortener,
		serverURL: serverURL,
		logger:    logger.With().Str("component", "http").Logger(),
	}
}

type createURLRequest struct {
	*domain.CreateURLRequest
}

func (c *createURLRequest) Bind(r *http.Request) error {
	if c.CreateURLRequest == nil || c.URL == "" {
		return errors.New("url is required")
	}
	return nil
}

type deleteURLsRequest struct {
	*domain.DeleteURLsRequest
}

func (d *deleteURLsRequest) Bind(r *http.Request) error {
	if d.DeleteURLsRequest == nil || len(d.Keys) == 0 {
		return errors.New("keys are required")
	}
	return nil
}

// errResponse renders an error as JSON with the given status
type errResponse struct {
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func newErrResponse(status int, text string) *errResponse {
	return &errResponse{
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
		ErrorText:      text,
	}
}

// CreateURL handles POST /api/urls
func (h *Handler) CreateURL(w http.ResponseWriter, r *http.Request) {
	data := &createURLRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.Debug().Err(err).Msg("invalid create request")
		_ = render.Render(w, r, newErrResponse(http.StatusBadRequest, err.Error()))
		return
	}

	record, err := h.shortener.Shorten(r.Context(), data.URL)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, domain.CreateURLResponse{
		ShortKey:  record.ShortKey,
		SecretKey: record.SecretKey,
		ShortURL:  h.serverURL + "/" + record.ShortKey,
		TargetURL: record.TargetURL,
		CreatedAt: record.CreatedAt,
	})
}

// GetURL handles GET /api/urls/{key}
func (h *Handler) GetURL(w http.ResponseWriter, r *http.Request) {
	record, err := h.shortener.GetURLInfo(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	render.JSON(w, r, record)
}

// ListURLs handles GET /api/urls
func (h *Handler) ListURLs(w http.ResponseWriter, r *http.Request) {
	records, err := h.shortener.ListURLs(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if records == nil {
		records = []*domain.URLRecord{}
	}

	render.JSON(w, r, records)
}

// DeactivateURL handles POST /api/urls/{key}/deactivate
func (h *Handler) DeactivateURL(w http.ResponseWriter, r *http.Request) {
	if err := h.shortener.Deactivate(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReactivateURL handles POST /api/urls/{key}/reactivate
func (h *Handler) ReactivateURL(w http.ResponseWriter, r *http.Request) {
	if err := h.shortener.Reactivate(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteURL handles DELETE /api/urls/{key}
func (h *Handler) DeleteURL(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.shortener.DeleteKeys(r.Context(), []string{chi.URLParam(r, "key")})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if deleted == 0 {
		h.handleError(w, r, domain.ErrNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteURLs handles POST /api/urls/delete
func (h *Handler) DeleteURLs(w http.ResponseWriter, r *http.Request) {
	data := &deleteURLsRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, newErrResponse(http.StatusBadRequest, err.Error()))
		return
	}

	deleted, err := h.shortener.DeleteKeys(r.Context(), data.Keys)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	render.JSON(w, r, domain.DeleteURLsResponse{Deleted: deleted})
}

// DeleteInactive handles DELETE /api/urls/inactive
func (h *Handler) DeleteInactive(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.shortener.DeleteInactive(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	render.JSON(w, r, domain.DeleteURLsResponse{Deleted: deleted})
}

// Redirect handles GET /{key}
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	target, ok, err := h.shortener.ResolveAndCount(r.Context(), key)
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Error().Err(err).Str("short_key", key).Msg("resolve failed")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Error().Err(err).Str("short_key", key).Msg("resolve failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	case !ok:
		h.NotFound(w, r)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// NotFound renders the HTML not-found page
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundPage))
}

// handleError maps service errors to API responses
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var resp *errResponse
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		resp = newErrResponse(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		resp = newErrResponse(http.StatusNotFound, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		resp = newErrResponse(http.StatusServiceUnavailable, "")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp = newErrResponse(http.StatusInternalServerError, "")
	}

	_ = render.Render(w, r, resp)
}
