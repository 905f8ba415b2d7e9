//go:build integration

package shortlink

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/brinecast/brinecast/internal/cache"
	"github.com/brinecast/brinecast/internal/repository"
	"github.com/brinecast/brinecast/internal/testutil"
)

func newTestService(t *testing.T) (context.Context, *Service, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	c, err := cache.New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, c, Config{BaseURL: "https://jp.sl"}, nil, logger)
	return ctx, svc, repo
}

func TestIntegrationService_ShortenDeduplicatesRepeatedURLs(t *testing.T) {
	ctx, svc, repo := newTestService(t)

	text := "Sale on https://jerseypickles.com/sale today. " +
		"Yes, https://jerseypickles.com/sale! New jars at https://jerseypickles.com/new"
	got := svc.ShortenURLsInText(ctx, text, "camp-1", "msg-1")

	shortLinks := regexp.MustCompile(`https://jp\.sl/s/[A-Za-z0-9]+`).FindAllString(got, -1)
	if len(shortLinks) != 3 {
		t.Fatalf("rewrote %d links, want 3: %q", len(shortLinks), got)
	}

	// The repeated URL reuses one short link; the distinct URL gets its
	// own.
	if shortLinks[0] != shortLinks[1] {
		t.Errorf("repeated URL produced different links: %q vs %q", shortLinks[0], shortLinks[1])
	}
	if shortLinks[0] == shortLinks[2] {
		t.Errorf("distinct URLs share a link: %q", shortLinks[0])
	}

	// Trailing punctuation survives outside the rewritten link.
	if !strings.Contains(got, shortLinks[0]+"!") {
		t.Errorf("trailing punctuation lost: %q", got)
	}

	code := strings.TrimPrefix(shortLinks[0], "https://jp.sl/s/")
	stored, err := repo.GetShortURLByCode(ctx, code)
	if err != nil {
		t.Fatalf("GetShortURLByCode failed: %v", err)
	}
	if stored.OriginalURL != "https://jerseypickles.com/sale" {
		t.Errorf("original url = %q, want the sale page", stored.OriginalURL)
	}
	if stored.CampaignID != "camp-1" || stored.MessageID != "msg-1" {
		t.Errorf("attribution = %q/%q, want camp-1/msg-1", stored.CampaignID, stored.MessageID)
	}
}
