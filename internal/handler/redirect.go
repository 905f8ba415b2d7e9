package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brinecast/brinecast/internal/engagement"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/shortlink"
)

// RedirectConfig holds redirect handler settings.
type RedirectConfig struct {
	// FallbackURL is where unknown, expired or deactivated codes land.
	FallbackURL string
	// CookieName is the first-party attribution cookie name.
	CookieName string
	// CookieTTL is how long the attribution cookie lives.
	CookieTTL time.Duration
}

// RedirectHandler handles short link redirect requests.
type RedirectHandler struct {
	links     *shortlink.Service
	publisher *engagement.Publisher
	cfg       RedirectConfig
	logger    *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(links *shortlink.Service, publisher *engagement.Publisher, cfg RedirectConfig, logger *slog.Logger) *RedirectHandler {
	if cfg.CookieName == "" {
		cfg.CookieName = "bc_attr"
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = 30 * 24 * time.Hour
	}
	return &RedirectHandler{
		links:     links,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Redirect handles GET /s/{code}. Unknown or dead codes fall back to
// the shop's landing page rather than a 404: recipients tapping a stale
// link in an old text still end up somewhere useful.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		h.fallback(w, r, code, "missing_code")
		return
	}

	start := time.Now()

	short, cacheHit, err := h.links.Resolve(r.Context(), code)
	duration := time.Since(start)

	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, shortlink.ErrCodeNotFound):
			reason = "not_found"
		case errors.Is(err, shortlink.ErrCodeExpired):
			reason = "expired"
		case errors.Is(err, shortlink.ErrCodeInactive):
			reason = "inactive"
		default:
			h.logger.Error("redirect_error", "code", code, "error", err)
		}
		h.fallback(w, r, code, reason)
		return
	}

	click := model.Click{
		IP:        clientIP(r),
		UserAgent: truncate(r.UserAgent(), 256),
		Referer:   truncate(r.Referer(), 512),
		At:        time.Now().UTC(),
	}

	// Synchronous counter bump on the short URL itself; everything
	// downstream (ledger click flag, campaign counter) goes through the
	// engagement stream.
	if _, _, err := h.links.RecordClick(r.Context(), code, click); err != nil {
		h.logger.Warn("click recording failed", "code", code, "error", err)
	}

	if h.publisher != nil && short.MessageID != "" {
		h.publisher.PublishAsync(engagement.EventPayload{
			Kind:       engagement.KindClick,
			MessageID:  short.MessageID,
			CampaignID: short.CampaignID,
			Code:       code,
			OccurredAt: click.At.UnixMilli(),
		})
	}

	h.setAttributionCookie(w, code)

	h.logger.Info("redirect_success",
		"code", code,
		"cache_hit", cacheHit,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	w.Header().Set("Cache-Control", "private, max-age=0")
	http.Redirect(w, r, short.OriginalURL, http.StatusFound)
}

// fallback sends the visitor to the configured landing page.
func (h *RedirectHandler) fallback(w http.ResponseWriter, r *http.Request, code, reason string) {
	h.logger.Info("redirect_fallback", "code", code, "reason", reason)

	if h.cfg.FallbackURL == "" {
		writeError(w, http.StatusNotFound, "CODE_NOT_FOUND", "Link not found")
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=0")
	http.Redirect(w, r, h.cfg.FallbackURL, http.StatusFound)
}

// setAttributionCookie stamps the visitor with the short code so a
// later storefront order can be attributed to this campaign click.
func (h *RedirectHandler) setAttributionCookie(w http.ResponseWriter, code string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    code,
		Path:     "/",
		MaxAge:   int(h.cfg.CookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientIP extracts the client IP address from the request.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// Take the first IP in the chain
		for i := 0; i < len(ip); i++ {
			if ip[i] == ',' {
				return ip[:i]
			}
		}
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
