//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/testutil"
)

// seedCampaignWithCustomers creates one campaign and n customers.
func seedCampaignWithCustomers(t *testing.T, ctx context.Context, repo *Repository, n int) (*model.Campaign, []*model.Customer) {
	t.Helper()

	c := testutil.NewTestCampaign(t, "shop")
	if err := repo.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	customers := make([]*model.Customer, n)
	for i := 0; i < n; i++ {
		cust := testutil.NewTestCustomer(t, fmt.Sprintf("+1201555%04d", i))
		cust.ID = fmt.Sprintf("cust-%d", i)
		if err := repo.CreateCustomer(ctx, cust); err != nil {
			t.Fatalf("CreateCustomer %d failed: %v", i, err)
		}
		customers[i] = cust
	}

	return c, customers
}

func TestIntegrationMessage_BatchInsertSkipsDuplicates(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 3)

	batch := make([]*model.Message, 0, 3)
	for i, cust := range customers {
		m := testutil.NewTestMessage(t, c.ID, cust.ID, cust.Phone)
		m.ID = fmt.Sprintf("msg-%d", i)
		batch = append(batch, m)
	}

	inserted, err := repo.InsertMessageBatch(ctx, batch)
	if err != nil {
		t.Fatalf("InsertMessageBatch failed: %v", err)
	}
	if inserted != 3 {
		t.Errorf("inserted = %d, want 3", inserted)
	}

	// Re-provisioning the same audience inserts nothing.
	retry := make([]*model.Message, 0, 3)
	for i, cust := range customers {
		m := testutil.NewTestMessage(t, c.ID, cust.ID, cust.Phone)
		m.ID = fmt.Sprintf("msg-retry-%d", i)
		retry = append(retry, m)
	}

	inserted, err = repo.InsertMessageBatch(ctx, retry)
	if err != nil {
		t.Fatalf("retry InsertMessageBatch failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("retry inserted = %d, want 0", inserted)
	}

	count, err := repo.CountPendingMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountPendingMessages failed: %v", err)
	}
	if count != 3 {
		t.Errorf("pending count = %d, want 3", count)
	}
}

func TestIntegrationMessage_InsertDuplicate(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 1)

	m := testutil.NewTestMessage(t, c.ID, customers[0].ID, customers[0].Phone)
	if err := repo.InsertMessage(ctx, m); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	dup := testutil.NewTestMessage(t, c.ID, customers[0].ID, customers[0].Phone)
	dup.ID = "msg-dup"
	if err := repo.InsertMessage(ctx, dup); !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("error = %v, want ErrDuplicateMessage", err)
	}
}

func TestIntegrationMessage_PendingDrainOrder(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 4)

	base := time.Now().UTC().Add(-time.Minute)
	for i, cust := range customers {
		m := testutil.NewTestMessage(t, c.ID, cust.ID, cust.Phone)
		m.ID = fmt.Sprintf("msg-%d", i)
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage %d failed: %v", i, err)
		}
	}

	pending, err := repo.NextPendingMessages(ctx, c.ID, 2)
	if err != nil {
		t.Fatalf("NextPendingMessages failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("batch size = %d, want 2", len(pending))
	}
	if pending[0].ID != "msg-0" || pending[1].ID != "msg-1" {
		t.Errorf("batch order = [%s %s], want insertion order", pending[0].ID, pending[1].ID)
	}

	// Marking a row sent removes it from the pending scan.
	if err := repo.MarkMessageSent(ctx, "msg-0", "pm-0", 0.004, "Verizon"); err != nil {
		t.Fatalf("MarkMessageSent failed: %v", err)
	}

	pending, err = repo.NextPendingMessages(ctx, c.ID, 10)
	if err != nil {
		t.Fatalf("NextPendingMessages failed: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("remaining pending = %d, want 3", len(pending))
	}
	if pending[0].ID != "msg-1" {
		t.Errorf("head = %s, want msg-1", pending[0].ID)
	}
}

func TestIntegrationMessage_CancelDeletesOnlyPending(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 3)

	for i, cust := range customers {
		m := testutil.NewTestMessage(t, c.ID, cust.ID, cust.Phone)
		m.ID = fmt.Sprintf("msg-%d", i)
		if err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage %d failed: %v", i, err)
		}
	}
	if err := repo.MarkMessageSent(ctx, "msg-0", "pm-0", 0.004, "ATT"); err != nil {
		t.Fatalf("MarkMessageSent failed: %v", err)
	}

	deleted, err := repo.DeletePendingMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("DeletePendingMessages failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	// The already-sent row survives as history.
	if _, err := repo.GetMessageByID(ctx, "msg-0"); err != nil {
		t.Errorf("sent row should survive cancel: %v", err)
	}
}

func TestIntegrationMessage_ProviderEventLifecycle(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 1)

	m := testutil.NewTestMessage(t, c.ID, customers[0].ID, customers[0].Phone)
	if err := repo.InsertMessage(ctx, m); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if err := repo.MarkMessageSent(ctx, m.ID, "pm-42", 0.004, "Verizon"); err != nil {
		t.Fatalf("MarkMessageSent failed: %v", err)
	}

	// Delivery confirmation advances the row and stamps delivered_at.
	updated, err := repo.UpdateMessageFromProviderEvent(ctx, "pm-42", model.MessageStatusDelivered, "")
	if err != nil {
		t.Fatalf("UpdateMessageFromProviderEvent failed: %v", err)
	}
	if updated.Status != model.MessageStatusDelivered {
		t.Errorf("status = %q, want delivered", updated.Status)
	}
	if updated.DeliveredAt == nil {
		t.Error("delivered_at not stamped")
	}
	if updated.CustomerID != customers[0].ID {
		t.Errorf("customer id = %q, want %q", updated.CustomerID, customers[0].ID)
	}

	// A replayed or late event against a terminal row is absorbed.
	if _, err := repo.UpdateMessageFromProviderEvent(ctx, "pm-42", model.MessageStatusFailed, "late failure"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("replay error = %v, want ErrMessageNotFound", err)
	}

	got, err := repo.GetMessageByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if got.Status != model.MessageStatusDelivered {
		t.Errorf("status regressed to %q after replay", got.Status)
	}
}

func TestIntegrationMessage_ProviderEventUnknownID(t *testing.T) {
	ctx, repo := newTestEnv(t)

	if _, err := repo.UpdateMessageFromProviderEvent(ctx, "pm-unknown", model.MessageStatusDelivered, ""); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("error = %v, want ErrMessageNotFound", err)
	}
}

func TestIntegrationMessage_ClickFirstWriteWins(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 1)

	m := testutil.NewTestMessage(t, c.ID, customers[0].ID, customers[0].Phone)
	if err := repo.InsertMessage(ctx, m); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := repo.MarkMessageClicked(ctx, m.ID, at); err != nil {
		t.Fatalf("MarkMessageClicked failed: %v", err)
	}
	if err := repo.MarkMessageClicked(ctx, m.ID, at.Add(time.Minute)); !errors.Is(err, ErrAlreadyClicked) {
		t.Errorf("second click error = %v, want ErrAlreadyClicked", err)
	}

	got, err := repo.GetMessageByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if !got.Clicked || got.ClickedAt == nil || !got.ClickedAt.Equal(at) {
		t.Errorf("click state = %v/%v, want first timestamp kept", got.Clicked, got.ClickedAt)
	}
}

func TestIntegrationMessage_ConversionRollsIntoCampaign(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 1)

	m := testutil.NewTestMessage(t, c.ID, customers[0].ID, customers[0].Phone)
	if err := repo.InsertMessage(ctx, m); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	at := time.Now().UTC()
	if err := repo.MarkMessageConverted(ctx, m.ID, "ord-1", 64.50, at); err != nil {
		t.Fatalf("MarkMessageConverted failed: %v", err)
	}

	// Replayed conversion is rejected and the campaign is not double-counted.
	if err := repo.MarkMessageConverted(ctx, m.ID, "ord-1", 64.50, at); !errors.Is(err, ErrAlreadyConverted) {
		t.Errorf("replay error = %v, want ErrAlreadyConverted", err)
	}

	got, err := repo.GetCampaignByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCampaignByID failed: %v", err)
	}
	if got.Stats.Converted != 1 {
		t.Errorf("stats_converted = %d, want 1", got.Stats.Converted)
	}
	if got.Stats.Revenue != 64.50 {
		t.Errorf("stats_revenue = %v, want 64.50", got.Stats.Revenue)
	}

	msg, err := repo.GetMessageByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if !msg.Converted || msg.OrderID != "ord-1" || msg.OrderTotal != 64.50 {
		t.Errorf("conversion state = %v/%q/%v", msg.Converted, msg.OrderID, msg.OrderTotal)
	}
}

func TestIntegrationMessage_StatusCounts(t *testing.T) {
	ctx, repo := newTestEnv(t)
	c, customers := seedCampaignWithCustomers(t, ctx, repo, 3)

	statuses := []model.MessageStatus{
		model.MessageStatusPending,
		model.MessageStatusDelivered,
		model.MessageStatusDelivered,
	}
	for i, cust := range customers {
		m := testutil.NewTestMessage(t, c.ID, cust.ID, cust.Phone)
		m.ID = fmt.Sprintf("msg-%d", i)
		m.Status = statuses[i]
		if err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage %d failed: %v", i, err)
		}
	}

	counts, err := repo.MessageStatusCounts(ctx, c.ID)
	if err != nil {
		t.Fatalf("MessageStatusCounts failed: %v", err)
	}
	if counts[model.MessageStatusPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[model.MessageStatusPending])
	}
	if counts[model.MessageStatusDelivered] != 2 {
		t.Errorf("delivered = %d, want 2", counts[model.MessageStatusDelivered])
	}
}
