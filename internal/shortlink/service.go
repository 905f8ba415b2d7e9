// Package shortlink provides short-code generation, redirect
// resolution and click/conversion tracking for campaign links.
package shortlink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/brinecast/brinecast/internal/cache"
	"github.com/brinecast/brinecast/internal/metrics"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/repository"
)

// Service errors.
var (
	ErrInvalidURL    = errors.New("invalid destination URL")
	ErrCodeNotFound  = errors.New("short code not found")
	ErrCodeExpired   = errors.New("short code is expired")
	ErrCodeInactive  = errors.New("short code is deactivated")
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeRetries    = 5
	maxOriginalURLLen = 2048
)

// Config holds short link service tunables.
type Config struct {
	BaseURL           string
	CodeLength        int
	ClickHistoryLimit int
	UniqueIPLimit     int
}

// Service handles short link business logic.
type Service struct {
	repo    *repository.Repository
	cache   *cache.Cache
	cfg     Config
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewService creates a short link service.
func NewService(repo *repository.Repository, c *cache.Cache, cfg Config, recorder metrics.Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.ClickHistoryLimit <= 0 {
		cfg.ClickHistoryLimit = 100
	}
	if cfg.UniqueIPLimit <= 0 {
		cfg.UniqueIPLimit = 1000
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Service{
		repo:    repo,
		cache:   c,
		cfg:     cfg,
		metrics: recorder,
		logger:  logger.With("component", "shortlink"),
	}
}

// CreateInput defines input for creating a short URL.
type CreateInput struct {
	OriginalURL string
	Source      model.ShortURLSource
	CampaignID  string
	MessageID   string
	ExpiresAt   *time.Time
}

// Create registers a new short URL with a fresh random code.
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.ShortURL, error) {
	if err := validateURL(input.OriginalURL); err != nil {
		return nil, err
	}

	source := input.Source
	if source == "" {
		source = model.ShortURLSourceManual
	}

	now := time.Now().UTC()
	short := &model.ShortURL{
		ID:          ulid.Make().String(),
		OriginalURL: input.OriginalURL,
		Source:      source,
		CampaignID:  input.CampaignID,
		MessageID:   input.MessageID,
		Active:      true,
		ExpiresAt:   input.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Random codes collide rarely at 6 chars; retry a few times, then
	// fall back to crypto-hex which is effectively collision free.
	for attempt := 0; attempt <= maxCodeRetries; attempt++ {
		if attempt < maxCodeRetries {
			short.Code = randomCode(s.cfg.CodeLength)
		} else {
			short.Code = fallbackCode()
		}

		err := s.repo.CreateShortURL(ctx, short)
		if err == nil {
			return short, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, fmt.Errorf("create short url: %w", err)
		}
	}

	return nil, errors.New("failed to allocate short code after retries")
}

// ShortLink renders the public URL for a code.
func (s *Service) ShortLink(code string) string {
	return s.cfg.BaseURL + "/s/" + code
}

// Resolve maps a code to its short URL for the redirect hot path.
// Cache-first with negative caching of unknown codes.
func (s *Service) Resolve(ctx context.Context, code string) (*model.ShortURL, bool, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRedirectDuration(time.Since(start))
	}()

	cacheHit := false

	cached, err := s.cache.GetShortURL(ctx, code)
	if err == nil {
		cacheHit = true
		s.metrics.IncRedirectCacheHit()
		return s.validateResolved(ctx, cached.ToShortURL(code), code, cacheHit)
	}

	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.IncRedirectCacheMiss()
		if negative, _ := s.cache.IsNegativelyCached(ctx, code); negative {
			return nil, cacheHit, ErrCodeNotFound
		}
	} else {
		// Redis trouble: fall through to the database.
		s.logger.Warn("short url cache read failed", "error", err)
	}

	short, err := s.repo.GetShortURLByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			_ = s.cache.SetNegativeCache(ctx, code)
			return nil, cacheHit, ErrCodeNotFound
		}
		return nil, cacheHit, err
	}

	if err := s.cache.SetShortURL(ctx, short); err != nil {
		s.logger.Warn("short url cache write failed", "error", err)
	}

	return s.validateResolved(ctx, short, code, cacheHit)
}

// RecordClick applies one click to the code's counters and bounded
// history, returning the updated short URL and click uniqueness.
func (s *Service) RecordClick(ctx context.Context, code string, click model.Click) (*model.ShortURL, bool, error) {
	if click.At.IsZero() {
		click.At = time.Now().UTC()
	}

	short, unique, err := s.repo.RecordShortURLClick(ctx, code, click, s.cfg.ClickHistoryLimit, s.cfg.UniqueIPLimit)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, false, ErrCodeNotFound
		}
		return nil, false, fmt.Errorf("record click: %w", err)
	}

	return short, unique, nil
}

// RecordConversion stamps the conversion on a code, first write wins.
// Returns true when this call recorded it.
func (s *Service) RecordConversion(ctx context.Context, code, orderID string, amount float64) (bool, error) {
	recorded, err := s.repo.SetShortURLConversion(ctx, code, model.Conversion{
		OrderID: orderID,
		Amount:  amount,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("record conversion: %w", err)
	}
	return recorded, nil
}

// Deactivate turns a code off and drops it from cache.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	if err := s.repo.DeactivateShortURL(ctx, code); err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return ErrCodeNotFound
		}
		return err
	}
	if err := s.cache.DeleteShortURL(ctx, code); err != nil {
		s.logger.Warn("short url cache invalidation failed", "error", err, "code", code)
	}
	return nil
}

// validateResolved checks resolvability and evicts dead cache entries.
func (s *Service) validateResolved(ctx context.Context, short *model.ShortURL, code string, cacheHit bool) (*model.ShortURL, bool, error) {
	if !short.Active {
		return nil, cacheHit, ErrCodeInactive
	}
	if short.IsExpired() {
		_ = s.cache.DeleteShortURL(ctx, code)
		return nil, cacheHit, ErrCodeExpired
	}
	return short, cacheHit, nil
}

// validateURL accepts absolute http/https URLs only.
func validateURL(raw string) error {
	if raw == "" || len(raw) > maxOriginalURLLen {
		return ErrInvalidURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURL
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// randomCode generates a random alphanumeric code using crypto/rand.
func randomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		idx, err := cryptoRandInt(len(codeAlphabet))
		if err != nil {
			idx = 0
		}
		b[i] = codeAlphabet[idx]
	}
	return string(b)
}

// fallbackCode returns a 16-hex-char code for the final attempt after
// alphanumeric retries are exhausted.
func fallbackCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Degenerate path; ULIDs are still unique.
		return strings.ToLower(ulid.Make().String()[:16])
	}
	return hex.EncodeToString(buf)
}

// cryptoRandInt returns a cryptographically secure random integer in [0, max).
func cryptoRandInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
