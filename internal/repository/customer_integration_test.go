//go:build integration

package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/testutil"
)

func TestIntegrationCustomer_CreateAndGet(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.Phone != "+12015550100" {
		t.Errorf("phone = %q, want +12015550100", got.Phone)
	}
	if !got.IsContactable() {
		t.Error("fresh customer should be contactable")
	}

	byPhone, err := repo.GetCustomerByPhone(ctx, "+12015550100")
	if err != nil {
		t.Fatalf("GetCustomerByPhone failed: %v", err)
	}
	if byPhone.ID != c.ID {
		t.Errorf("phone lookup id = %q, want %q", byPhone.ID, c.ID)
	}
}

func TestIntegrationCustomer_DuplicatePhone(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	dup := testutil.NewTestCustomer(t, "+12015550100")
	dup.ID = "cust-dup"
	if err := repo.CreateCustomer(ctx, dup); !errors.Is(err, ErrDuplicateCustomer) {
		t.Errorf("error = %v, want ErrDuplicateCustomer", err)
	}
}

func TestIntegrationCustomer_EligibleFiltering(t *testing.T) {
	ctx, repo := newTestEnv(t)

	seed := []struct {
		id         string
		subscribed bool
		status     model.ContactStatus
		orderCount int
		totalSpend float64
	}{
		{"cust-fresh", true, model.ContactStatusActive, 0, 0},
		{"cust-buyer", true, model.ContactStatusActive, 3, 120},
		{"cust-optout", false, model.ContactStatusUnsubscribed, 0, 0},
		{"cust-bounced", true, model.ContactStatusBounced, 1, 40},
	}
	for i, s := range seed {
		c := testutil.NewTestCustomer(t, fmt.Sprintf("+1201555%04d", i))
		c.ID = s.id
		c.Subscribed = s.subscribed
		c.Status = s.status
		c.OrderCount = s.orderCount
		c.TotalSpend = s.totalSpend
		if err := repo.CreateCustomer(ctx, c); err != nil {
			t.Fatalf("CreateCustomer %s failed: %v", s.id, err)
		}
	}

	tests := []struct {
		name    string
		filter  model.AudienceFilter
		wantIDs []string
	}{
		{"all excludes suppressed", model.AudienceFilter{Type: model.AudienceAll}, []string{"cust-fresh", "cust-buyer"}},
		{"not converted", model.AudienceFilter{Type: model.AudienceNotConverted}, []string{"cust-fresh"}},
		{"min spend", model.AudienceFilter{Type: model.AudienceMinSpend, MinSpend: 100}, []string{"cust-buyer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.EligibleCustomers(ctx, tt.filter)
			if err != nil {
				t.Fatalf("EligibleCustomers failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("eligible = %d customers, want %d", len(got), len(tt.wantIDs))
			}
			seen := make(map[string]bool, len(got))
			for _, c := range got {
				seen[c.ID] = true
			}
			for _, id := range tt.wantIDs {
				if !seen[id] {
					t.Errorf("expected %s in eligible set", id)
				}
			}

			count, err := repo.CountEligibleCustomers(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountEligibleCustomers failed: %v", err)
			}
			if count != len(tt.wantIDs) {
				t.Errorf("count = %d, want %d", count, len(tt.wantIDs))
			}
		})
	}
}

func TestIntegrationCustomer_EligibleListAudience(t *testing.T) {
	ctx, repo := newTestEnv(t)

	var ids []string
	for i := 0; i < 3; i++ {
		c := testutil.NewTestCustomer(t, fmt.Sprintf("+1201555%04d", i))
		c.ID = fmt.Sprintf("cust-%d", i)
		if err := repo.CreateCustomer(ctx, c); err != nil {
			t.Fatalf("CreateCustomer failed: %v", err)
		}
		ids = append(ids, c.ID)
	}

	now := time.Now().UTC()
	list := &model.List{
		ID:          "list-vip",
		Name:        "VIP",
		MemberIDs:   []string{ids[0], ids[2]},
		MemberCount: 2,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateList(ctx, list); err != nil {
		t.Fatalf("CreateList failed: %v", err)
	}

	got, err := repo.EligibleCustomers(ctx, model.AudienceFilter{Type: model.AudienceList, ListID: "list-vip"})
	if err != nil {
		t.Fatalf("EligibleCustomers failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("eligible = %d, want 2 list members", len(got))
	}
	if got[0].ID != ids[0] || got[1].ID != ids[2] {
		t.Errorf("members = [%s %s], want [%s %s]", got[0].ID, got[1].ID, ids[0], ids[2])
	}
}

func TestIntegrationCustomer_BounceLifecycle(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	// Soft bounce below the limit: counted, not suppressed.
	count, suppressed, err := repo.RecordCustomerBounce(ctx, c.ID, model.BounceSoft, "carrier congestion", "camp-1", 3)
	if err != nil {
		t.Fatalf("RecordCustomerBounce failed: %v", err)
	}
	if count != 1 || suppressed {
		t.Errorf("bounce result = %d/%v, want 1/false", count, suppressed)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 1 || got.BounceInfo.IsBounced {
		t.Errorf("bounce state = %d/%v, want 1/false", got.BounceInfo.Count, got.BounceInfo.IsBounced)
	}
	if got.Status != model.ContactStatusActive {
		t.Errorf("status = %q, want active after soft bounce", got.Status)
	}
	if got.BounceInfo.LastKind != model.BounceSoft || got.BounceInfo.LastCampaignID != "camp-1" {
		t.Errorf("last bounce = %+v", got.BounceInfo)
	}

	// A hard bounce flips the contact status atomically.
	_, suppressed, err = repo.RecordCustomerBounce(ctx, c.ID, model.BounceHard, "unallocated number", "camp-1", 3)
	if err != nil {
		t.Fatalf("suppressing bounce failed: %v", err)
	}
	if !suppressed {
		t.Error("hard bounce should suppress")
	}

	got, err = repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if !got.BounceInfo.IsBounced || got.Status != model.ContactStatusBounced {
		t.Errorf("suppressed state = %v/%q, want true/bounced", got.BounceInfo.IsBounced, got.Status)
	}
	if got.IsContactable() {
		t.Error("suppressed customer must not be contactable")
	}

	// Reset restores contactability and clears the counters.
	if err := repo.ResetCustomerBounces(ctx, c.ID); err != nil {
		t.Fatalf("ResetCustomerBounces failed: %v", err)
	}

	got, err = repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.BounceInfo.Count != 0 || got.BounceInfo.IsBounced {
		t.Errorf("reset state = %d/%v, want 0/false", got.BounceInfo.Count, got.BounceInfo.IsBounced)
	}
	if got.Status != model.ContactStatusActive {
		t.Errorf("status = %q, want active after reset", got.Status)
	}
}

func TestIntegrationCustomer_BounceThresholdDecidedInDatabase(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	// The suppression decision is derived from the stored count, not
	// from anything the caller read earlier.
	for i := 1; i <= 3; i++ {
		count, suppressed, err := repo.RecordCustomerBounce(ctx, c.ID, model.BounceSoft, "congestion", "camp-1", 3)
		if err != nil {
			t.Fatalf("RecordCustomerBounce %d failed: %v", i, err)
		}
		if count != i {
			t.Errorf("count after bounce %d = %d, want %d", i, count, i)
		}
		if wantSuppressed := i >= 3; suppressed != wantSuppressed {
			t.Errorf("suppressed after bounce %d = %v, want %v", i, suppressed, wantSuppressed)
		}
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.Status != model.ContactStatusBounced || !got.BounceInfo.IsBounced {
		t.Errorf("state = %q/%v, want bounced/true at the limit", got.Status, got.BounceInfo.IsBounced)
	}
}

func TestIntegrationCustomer_BounceKeepsUnsubscribedStatus(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if err := repo.UnsubscribeCustomer(ctx, c.ID); err != nil {
		t.Fatalf("UnsubscribeCustomer failed: %v", err)
	}

	// A hard bounce on an opted-out customer is counted but never flips
	// status or the bounce flag; they track each other exactly.
	count, suppressed, err := repo.RecordCustomerBounce(ctx, c.ID, model.BounceHard, "unallocated number", "camp-1", 3)
	if err != nil {
		t.Fatalf("RecordCustomerBounce failed: %v", err)
	}
	if count != 1 || suppressed {
		t.Errorf("bounce result = %d/%v, want 1/false for unsubscribed customer", count, suppressed)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.Status != model.ContactStatusUnsubscribed {
		t.Errorf("status = %q, want unsubscribed to win over suppression", got.Status)
	}
	if got.BounceInfo.IsBounced {
		t.Error("bounce flag must stay false while status is not bounced")
	}
	if got.BounceInfo.Count != 1 {
		t.Errorf("bounce count = %d, want 1", got.BounceInfo.Count)
	}
}

func TestIntegrationCustomer_ResetDoesNotReviveUnsubscribed(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if _, _, err := repo.RecordCustomerBounce(ctx, c.ID, model.BounceSoft, "congestion", "", 3); err != nil {
		t.Fatalf("RecordCustomerBounce failed: %v", err)
	}
	if err := repo.UnsubscribeCustomer(ctx, c.ID); err != nil {
		t.Fatalf("UnsubscribeCustomer failed: %v", err)
	}

	if err := repo.ResetCustomerBounces(ctx, c.ID); err != nil {
		t.Fatalf("ResetCustomerBounces failed: %v", err)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.Status != model.ContactStatusUnsubscribed || got.Subscribed {
		t.Errorf("state = %q/%v, opt-out must survive bounce reset", got.Status, got.Subscribed)
	}
}

func TestIntegrationCustomer_RecordOrder(t *testing.T) {
	ctx, repo := newTestEnv(t)

	c := testutil.NewTestCustomer(t, "+12015550100")
	if err := repo.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	if err := repo.RecordCustomerOrder(ctx, c.ID, 42.75); err != nil {
		t.Fatalf("RecordCustomerOrder failed: %v", err)
	}
	if err := repo.RecordCustomerOrder(ctx, c.ID, 10.25); err != nil {
		t.Fatalf("second RecordCustomerOrder failed: %v", err)
	}

	got, err := repo.GetCustomerByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if got.OrderCount != 2 {
		t.Errorf("order_count = %d, want 2", got.OrderCount)
	}
	if got.TotalSpend != 53.0 {
		t.Errorf("total_spend = %v, want 53.0", got.TotalSpend)
	}
}
