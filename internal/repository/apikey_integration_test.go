//go:build integration

package repository

import (
	"errors"
	"testing"

	"github.com/brinecast/brinecast/internal/testutil"
)

func TestIntegrationAPIKey_CreateAndLookup(t *testing.T) {
	ctx, repo := newTestEnv(t)

	key := testutil.NewTestAPIKey(t)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	keys, err := repo.GetAPIKeysByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetAPIKeysByPrefix failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("prefix matches = %d, want 1", len(keys))
	}
	if keys[0].ID != key.ID {
		t.Errorf("id = %q, want %q", keys[0].ID, key.ID)
	}
	if len(keys[0].Scopes) != 2 {
		t.Errorf("scopes = %v, want read/write round trip", keys[0].Scopes)
	}
}

func TestIntegrationAPIKey_RevokedExcludedFromAuth(t *testing.T) {
	ctx, repo := newTestEnv(t)

	key := testutil.NewTestAPIKey(t)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	if err := repo.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	keys, err := repo.GetAPIKeysByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetAPIKeysByPrefix failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("revoked key still matches prefix lookup, got %d keys", len(keys))
	}

	// Revoking twice reports not found.
	if err := repo.RevokeAPIKey(ctx, key.ID); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("second revoke error = %v, want ErrAPIKeyNotFound", err)
	}

	// The revoked key still shows in the admin listing.
	all, err := repo.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(all) != 1 || all[0].RevokedAt == nil {
		t.Errorf("listing = %d keys, want 1 revoked", len(all))
	}
}

func TestIntegrationAPIKey_LastUsed(t *testing.T) {
	ctx, repo := newTestEnv(t)

	key := testutil.NewTestAPIKey(t)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	if err := repo.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed failed: %v", err)
	}

	keys, err := repo.GetAPIKeysByPrefix(ctx, key.KeyPrefix)
	if err != nil {
		t.Fatalf("GetAPIKeysByPrefix failed: %v", err)
	}
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Error("last_used_at not stamped")
	}
}
