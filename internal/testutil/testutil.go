package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/brinecast/brinecast/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 817317

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// migrationOrder lists the schema units in dependency order. Messages
// reference campaigns and customers, so teardown runs in reverse.
var migrationOrder = []string{
	"000001_customers",
	"000002_lists",
	"000003_campaigns",
	"000004_messages",
	"000005_short_urls",
	"000006_api_keys",
}

// ResetSchema drops and recreates every table for tests.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	for i := len(migrationOrder) - 1; i >= 0; i-- {
		if err := applyMigration(ctx, pool, root, migrationOrder[i]+".down.sql"); err != nil {
			return err
		}
	}
	for _, name := range migrationOrder {
		if err := applyMigration(ctx, pool, root, name+".up.sql"); err != nil {
			return err
		}
	}

	return nil
}

// ResetTables truncates the named tables, keeping the schema in place.
// Cheaper than ResetSchema between test cases.
func ResetTables(ctx context.Context, pool *pgxpool.Pool, tables ...string) error {
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, root, file string) error {
	path := filepath.Join(root, "migrations", file)
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", file, err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestCustomer creates a contactable customer with sensible defaults.
func NewTestCustomer(t testing.TB, phone string) *model.Customer {
	t.Helper()
	now := time.Now().UTC()
	return &model.Customer{
		ID:         UniqueID("cust"),
		Phone:      phone,
		Email:      "test@example.com",
		FirstName:  "Test",
		LastName:   "Customer",
		Status:     model.ContactStatusActive,
		Subscribed: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewTestCampaign creates a draft campaign targeting everyone.
func NewTestCampaign(t testing.TB, ownerID string) *model.Campaign {
	t.Helper()
	now := time.Now().UTC()
	return &model.Campaign{
		ID:        UniqueID("camp"),
		OwnerID:   ownerID,
		Name:      "Test Campaign",
		Template:  "Hi {first_name}, fresh batch just dropped: https://example.com/shop",
		Audience:  model.AudienceFilter{Type: model.AudienceAll},
		Discount:  model.DiscountConfig{Type: model.DiscountNone},
		Status:    model.CampaignStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestMessage creates a pending ledger row for a campaign/customer pair.
func NewTestMessage(t testing.TB, campaignID, customerID, destination string) *model.Message {
	t.Helper()
	return &model.Message{
		ID:          UniqueID("msg"),
		CampaignID:  campaignID,
		CustomerID:  customerID,
		Destination: destination,
		Status:      model.MessageStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewTestShortURL creates an active short URL with sensible defaults.
func NewTestShortURL(t testing.TB, code string) *model.ShortURL {
	t.Helper()
	now := time.Now().UTC()
	return &model.ShortURL{
		ID:          UniqueID("surl"),
		Code:        code,
		OriginalURL: "https://example.com/" + code,
		Source:      "test",
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestAPIKey creates a test API key with read/write scopes.
func NewTestAPIKey(t testing.TB) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:        UniqueID("key"),
		KeyPrefix: "abc123",
		KeyHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		Label:     "Test Key",
		Scopes:    []string{model.ScopeRead, model.ScopeWrite},
		CreatedAt: now,
	}
}

// UniquePhone generates a unique E.164 number for tests.
func UniquePhone() string {
	return fmt.Sprintf("+1201%07d", time.Now().UnixNano()%10000000)
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
