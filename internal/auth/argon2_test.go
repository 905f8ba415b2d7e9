package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashKey_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashKey("bk_test_abc123_0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should use PHC argon2id format, got %s", hash)
	}
	if len(strings.Split(hash, "$")) != 6 {
		t.Errorf("hash should have 6 $-separated parts, got %s", hash)
	}
}

func TestHashKey_UniqueSalt(t *testing.T) {
	t.Parallel()

	key := "bk_test_abc123_0123456789abcdef0123456789abcdef"

	hash1, err := HashKey(key)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	hash2, err := HashKey(key)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	if hash1 == hash2 {
		t.Error("same key should produce different hashes (random salt)")
	}
}

func TestVerifyKey_Match(t *testing.T) {
	t.Parallel()

	key := "bk_live_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"
	hash, err := HashKey(key)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	ok, err := VerifyKey(key, hash)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if !ok {
		t.Error("VerifyKey should accept the original key")
	}
}

func TestVerifyKey_Mismatch(t *testing.T) {
	t.Parallel()

	hash, err := HashKey("correct-key")
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	ok, err := VerifyKey("wrong-key", hash)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if ok {
		t.Error("VerifyKey should reject a different key")
	}
}

func TestVerifyKey_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not phc", "plainhash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
		{"bad params", "$argon2id$v=19$bogus$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := VerifyKey("key", tt.hash); !errors.Is(err, ErrInvalidHash) {
				t.Errorf("VerifyKey(%q) error = %v, want ErrInvalidHash", tt.hash, err)
			}
		})
	}
}

func TestVerifyKey_IncompatibleVersion(t *testing.T) {
	t.Parallel()

	hash := "$argon2id$v=18$m=65536,t=3,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"
	if _, err := VerifyKey("key", hash); !errors.Is(err, ErrIncompatibleVersion) {
		t.Errorf("VerifyKey error = %v, want ErrIncompatibleVersion", err)
	}
}

func TestQuickHash(t *testing.T) {
	t.Parallel()

	h1 := QuickHash("some-input")
	h2 := QuickHash("some-input")
	h3 := QuickHash("other-input")

	if h1 != h2 {
		t.Error("QuickHash should be deterministic")
	}
	if h1 == h3 {
		t.Error("different inputs should produce different hashes")
	}
	if len(h1) != 32 {
		t.Errorf("QuickHash length = %d, want 32 hex chars", len(h1))
	}
}
