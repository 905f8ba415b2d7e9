package discount

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_ProvisionRule(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody provisionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(provisionResponse{Code: "BRINE15"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token")

	code, err := client.ProvisionRule(context.Background(), "camp-1", 15)
	if err != nil {
		t.Fatalf("ProvisionRule returned error: %v", err)
	}

	if code != "BRINE15" {
		t.Errorf("code = %q, want BRINE15", code)
	}
	if gotPath != "/discount-rules" {
		t.Errorf("path = %q, want /discount-rules", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want Bearer secret-token", gotAuth)
	}
	if gotBody.Code != "BRINE15" || gotBody.PercentOff != 15 || gotBody.CampaignID != "camp-1" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestClient_ProvisionRule_ServerOverridesCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(provisionResponse{Code: "SUMMER20"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")

	code, err := client.ProvisionRule(context.Background(), "camp-1", 20)
	if err != nil {
		t.Fatalf("ProvisionRule returned error: %v", err)
	}
	if code != "SUMMER20" {
		t.Errorf("code = %q, want server-assigned SUMMER20", code)
	}
}

func TestClient_ProvisionRule_ServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(provisionResponse{Error: "rule conflicts with sitewide sale"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")

	_, err := client.ProvisionRule(context.Background(), "camp-1", 10)
	if err == nil {
		t.Fatal("ProvisionRule() = nil error, want service rejection")
	}
	if !strings.Contains(err.Error(), "rule conflicts with sitewide sale") {
		t.Errorf("error = %v, want wrapped service message", err)
	}
}

func TestClient_ProvisionRule_NotConfigured(t *testing.T) {
	t.Parallel()

	client := NewClient("", "")

	if _, err := client.ProvisionRule(context.Background(), "camp-1", 10); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_ProvisionRule_PercentOutOfRange(t *testing.T) {
	t.Parallel()

	client := NewClient("http://localhost:1", "tok")

	for _, percent := range []int{0, -5, 101} {
		if _, err := client.ProvisionRule(context.Background(), "camp-1", percent); err == nil {
			t.Errorf("ProvisionRule(%d) = nil error, want out of range", percent)
		}
	}
}
