package password

import (
	"strings"
	"testing"
)

func secureConfig() Config {
	return Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	if !hasher.Verify("P@ssw0rd-Ascii", hash) {
		t.Fatal("expected password verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if hasher.Verify("wrong-password", hash) {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestVerifyAcrossParameterChange(t *testing.T) {
	oldHasher, err := NewArgon2(Config{
		Memory:      32768,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}

	hash, err := oldHasher.Hash("survives-retuning")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	// A hasher with stronger parameters must still verify the old digest,
	// because verification decodes parameters from the digest itself.
	newHasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	if !newHasher.Verify("survives-retuning", hash) {
		t.Fatal("digest hashed under old parameters must keep verifying")
	}
	if !newHasher.NeedsUpgrade(hash) {
		t.Fatal("old digest should report NeedsUpgrade under stronger config")
	}

	fresh, err := newHasher.Hash("survives-retuning")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if newHasher.NeedsUpgrade(fresh) {
		t.Fatal("fresh digest must not report NeedsUpgrade")
	}
}

func TestVerifyMalformedDigests(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	cases := []string{
		"",
		"not-a-digest",
		"$argon2id$v=19$m=65536,t=3,p=2$short",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$!!!",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}

	for _, digest := range cases {
		// No panic, no error channel: malformed digests simply do not verify.
		if hasher.Verify("whatever-password", digest) {
			t.Errorf("malformed digest verified: %q", digest)
		}
		if hasher.NeedsUpgrade(digest) {
			t.Errorf("malformed digest reported upgradable: %q", digest)
		}
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if _, err := hasher.Hash("short"); err == nil {
		t.Fatal("expected error for password under 10 bytes")
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	weak := []Config{
		{Memory: 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 0, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 8, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 8},
	}

	for i, cfg := range weak {
		if _, err := NewArgon2(cfg); err == nil {
			t.Errorf("case %d: expected config validation error", i)
		}
	}
}

func BenchmarkHash(b *testing.B) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		b.Fatalf("NewArgon2 error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Hash("benchmark-password"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkVerify(b *testing.B) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		b.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := hasher.Hash("benchmark-password")
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !hasher.Verify("benchmark-password", hash) {
			b.Fatal("verify failed")
		}
	}
}
