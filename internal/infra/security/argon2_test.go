package security

import (
	"strings"
	"testing"
)

func testArgon2Hasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	hasher := testArgon2Hasher(t)
	password := "correct horse battery staple"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("unexpected parameter segment: %q", parts[2])
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}

	ok, err = hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for wrong password")
	}
}

func TestArgon2Hasher_SaltsDiffer(t *testing.T) {
	hasher := testArgon2Hasher(t)

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct digests for repeated hashing")
	}
}

func TestArgon2Hasher_RejectsMalformedDigest(t *testing.T) {
	hasher := testArgon2Hasher(t)

	if _, err := hasher.Verify("password", "bcrypt$whatever"); err == nil {
		t.Fatal("expected error for malformed digest")
	}
	if _, err := hasher.Verify("password", "argon2id$v=19$m=8192,t=1$c2FsdA$aGFzaA"); err == nil {
		t.Fatal("expected error for missing parameter")
	}
}

func TestNewArgon2HasherValidatesConfig(t *testing.T) {
	cfg := DefaultArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2Hasher(cfg); err == nil {
		t.Fatal("expected error for memory below minimum")
	}
}

func TestArgon2Hasher_NeedsRehash(t *testing.T) {
	hasher := testArgon2Hasher(t)

	current, err := hasher.Hash("password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hasher.NeedsRehash(current) {
		t.Fatal("digest produced with current parameters must not need a rehash")
	}

	stronger, err := NewArgon2Hasher(Argon2Config{Memory: 16 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	if !stronger.NeedsRehash(current) {
		t.Fatal("expected rehash after parameters were raised")
	}
	if !hasher.NeedsRehash("plain$password") {
		t.Fatal("expected rehash for unreadable digest")
	}
}
