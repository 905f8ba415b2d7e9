package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/brinecast/brinecast/internal/model"
)

type fakeProvisioner struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (f *fakeProvisioner) ProvisionRule(_ context.Context, _ string, percent int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, percent)
	return fmt.Sprintf("BRINE%d", percent), nil
}

func TestDiscountAssigner_None(t *testing.T) {
	t.Parallel()

	p := &fakeProvisioner{}
	a := newDiscountAssigner(p, "camp-1", model.DiscountConfig{Type: model.DiscountNone})

	code, err := a.CodeFor(context.Background())
	if err != nil {
		t.Fatalf("CodeFor returned error: %v", err)
	}
	if code != "" {
		t.Errorf("CodeFor() = %q, want empty for no-discount campaign", code)
	}
	if len(p.calls) != 0 {
		t.Errorf("provisioner called %d times, want 0", len(p.calls))
	}
}

func TestDiscountAssigner_Static(t *testing.T) {
	t.Parallel()

	p := &fakeProvisioner{}
	a := newDiscountAssigner(p, "camp-1", model.DiscountConfig{
		Type: model.DiscountStatic,
		Code: "PICKLE10",
	})

	for i := 0; i < 3; i++ {
		code, err := a.CodeFor(context.Background())
		if err != nil {
			t.Fatalf("CodeFor returned error: %v", err)
		}
		if code != "PICKLE10" {
			t.Errorf("CodeFor() = %q, want PICKLE10", code)
		}
	}
	if len(p.calls) != 0 {
		t.Errorf("static campaigns should never hit the provisioner, got %d calls", len(p.calls))
	}
}

func TestDiscountAssigner_DynamicRange(t *testing.T) {
	t.Parallel()

	p := &fakeProvisioner{}
	a := newDiscountAssigner(p, "camp-1", model.DiscountConfig{
		Type:       model.DiscountDynamic,
		MinPercent: 10,
		MaxPercent: 20,
	})

	for i := 0; i < 50; i++ {
		code, err := a.CodeFor(context.Background())
		if err != nil {
			t.Fatalf("CodeFor returned error: %v", err)
		}
		if code == "" {
			t.Fatal("dynamic campaign should always yield a code")
		}
	}

	for _, pct := range p.calls {
		if pct < 10 || pct > 20 {
			t.Errorf("provisioned percent %d outside [10, 20]", pct)
		}
	}
}

func TestDiscountAssigner_DynamicCachesPerPercent(t *testing.T) {
	t.Parallel()

	p := &fakeProvisioner{}
	a := newDiscountAssigner(p, "camp-1", model.DiscountConfig{
		Type:       model.DiscountDynamic,
		MinPercent: 15,
		MaxPercent: 15,
	})

	for i := 0; i < 5; i++ {
		code, err := a.CodeFor(context.Background())
		if err != nil {
			t.Fatalf("CodeFor returned error: %v", err)
		}
		if code != "BRINE15" {
			t.Errorf("CodeFor() = %q, want BRINE15", code)
		}
	}

	if len(p.calls) != 1 {
		t.Errorf("provisioner called %d times for one percent, want 1 (cached)", len(p.calls))
	}
}

func TestDiscountAssigner_DynamicPropagatesError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("discount service down")
	p := &fakeProvisioner{err: wantErr}
	a := newDiscountAssigner(p, "camp-1", model.DiscountConfig{
		Type:       model.DiscountDynamic,
		MinPercent: 10,
		MaxPercent: 10,
	})

	if _, err := a.CodeFor(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("CodeFor error = %v, want the provisioner error", err)
	}
}
