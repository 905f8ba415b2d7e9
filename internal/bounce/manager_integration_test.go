//go:build integration

package bounce

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/repository"
	"github.com/brinecast/brinecast/internal/testutil"
)

func newTestManager(t *testing.T, softBounceLimit int) (context.Context, *Manager, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

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

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctx, NewManager(repo, softBounceLimit, logger), repo
}

func seedCustomerInList(t *testing.T, ctx context.Context, repo *repository.Repository) *model.Customer {
	t.Helper()

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	now := time.Now().UTC()
	list := &model.List{
		ID:          "list-1",
		Name:        "Regulars",
		MemberIDs:   []string{c.ID},
		MemberCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateList(ctx, list); err != nil {
		t.Fatalf("CreateList failed: %v", err)
	}

	return c
}

func TestIntegrationManager_SoftBounceEscalation(t *testing.T) {
	ctx, mgr, repo := newTestManager(t, 3)
	c := seedCustomerInList(t, ctx, repo)

	// Two soft bounces stay below the limit.
	for i := 0; i < 2; i++ {
		if err := mgr.MarkBounced(ctx, c.ID, model.BounceSoft, "carrier congestion", "camp-1"); err != nil {
			t.Fatalf("MarkBounced %d failed: %v", i, err)
		}
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 2 || got.BounceInfo.IsBounced {
		t.Errorf("state after 2 soft = %d/%v, want 2/false", got.BounceInfo.Count, got.BounceInfo.IsBounced)
	}
	if !got.IsContactable() {
		t.Error("customer should still be contactable below the limit")
	}

	// The third soft bounce crosses the limit: suppress and drop from lists.
	if err := mgr.MarkBounced(ctx, c.ID, model.BounceSoft, "carrier congestion", "camp-1"); err != nil {
		t.Fatalf("third MarkBounced failed: %v", err)
	}

	got, err = repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 3 || !got.BounceInfo.IsBounced {
		t.Errorf("state after 3 soft = %d/%v, want 3/true", got.BounceInfo.Count, got.BounceInfo.IsBounced)
	}
	if got.Status != model.ContactStatusBounced {
		t.Errorf("status = %q, want bounced", got.Status)
	}

	list, err := repo.GetListByID(ctx, "list-1")
	if err != nil {
		t.Fatalf("GetListByID failed: %v", err)
	}
	if list.MemberCount != 0 {
		t.Errorf("suppressed customer still in list, count = %d", list.MemberCount)
	}
}

func TestIntegrationManager_ConcurrentSoftBouncesStillSuppress(t *testing.T) {
	ctx, mgr, repo := newTestManager(t, 3)
	c := seedCustomerInList(t, ctx, repo)

	// Webhook deliveries are processed concurrently; the limit check
	// must hold even when every goroutine starts from the same state.
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- mgr.MarkBounced(ctx, c.ID, model.BounceSoft, "carrier congestion", "camp-1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("MarkBounced failed: %v", err)
		}
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 3 {
		t.Errorf("bounce count = %d, want 3", got.BounceInfo.Count)
	}
	if !got.BounceInfo.IsBounced || got.Status != model.ContactStatusBounced {
		t.Errorf("state = %v/%q, want suppressed at the limit", got.BounceInfo.IsBounced, got.Status)
	}
}

func TestIntegrationManager_HardBounceSuppressesImmediately(t *testing.T) {
	ctx, mgr, repo := newTestManager(t, 3)
	c := seedCustomerInList(t, ctx, repo)

	if err := mgr.MarkBounced(ctx, c.ID, model.BounceHard, "unallocated number", "camp-1"); err != nil {
		t.Fatalf("MarkBounced failed: %v", err)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if !got.BounceInfo.IsBounced || got.Status != model.ContactStatusBounced {
		t.Errorf("state = %v/%q, want suppressed on first hard bounce", got.BounceInfo.IsBounced, got.Status)
	}

	list, err := repo.GetListByID(ctx, "list-1")
	if err != nil {
		t.Fatalf("GetListByID failed: %v", err)
	}
	if list.MemberCount != 0 {
		t.Errorf("hard-bounced customer still in list, count = %d", list.MemberCount)
	}
}

func TestIntegrationManager_DeliveryResetsBounces(t *testing.T) {
	ctx, mgr, repo := newTestManager(t, 3)
	c := seedCustomerInList(t, ctx, repo)

	for i := 0; i < 2; i++ {
		if err := mgr.MarkBounced(ctx, c.ID, model.BounceSoft, "congestion", "camp-1"); err != nil {
			t.Fatalf("MarkBounced %d failed: %v", i, err)
		}
	}

	if err := mgr.MarkDelivered(ctx, c.ID); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 0 {
		t.Errorf("bounce count = %d, want 0 after delivery", got.BounceInfo.Count)
	}

	// Stale soft bounces no longer count: the next one starts from zero.
	if err := mgr.MarkBounced(ctx, c.ID, model.BounceSoft, "congestion", "camp-2"); err != nil {
		t.Fatalf("MarkBounced after reset failed: %v", err)
	}
	got, err = repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 1 || got.BounceInfo.IsBounced {
		t.Errorf("state = %d/%v, want 1/false", got.BounceInfo.Count, got.BounceInfo.IsBounced)
	}
}

func TestIntegrationManager_OptOut(t *testing.T) {
	ctx, mgr, repo := newTestManager(t, 3)
	c := seedCustomerInList(t, ctx, repo)

	if err := mgr.OptOut(ctx, c.ID); err != nil {
		t.Fatalf("OptOut failed: %v", err)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.Subscribed || got.Status != model.ContactStatusUnsubscribed {
		t.Errorf("state = %v/%q, want unsubscribed", got.Subscribed, got.Status)
	}

	list, err := repo.GetListByID(ctx, "list-1")
	if err != nil {
		t.Fatalf("GetListByID failed: %v", err)
	}
	if list.MemberCount != 0 {
		t.Errorf("opted-out customer still in list, count = %d", list.MemberCount)
	}
}

func TestIntegrationManager_UnknownCustomer(t *testing.T) {
	ctx, mgr, _ := newTestManager(t, 3)

	if err := mgr.MarkBounced(ctx, "cust-missing", model.BounceSoft, "congestion", ""); !errors.Is(err, ErrCustomerNotFound) {
		t.Errorf("MarkBounced error = %v, want ErrCustomerNotFound", err)
	}
	if err := mgr.OptOut(ctx, "cust-missing"); !errors.Is(err, ErrCustomerNotFound) {
		t.Errorf("OptOut error = %v, want ErrCustomerNotFound", err)
	}
}
