package internal

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestChallengeTokenRoundtrip(t *testing.T) {
	id := uuid.New()
	secret, err := NewChallengeSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}

	token := EncodeChallengeToken(id, secret)
	gotID, gotSecret, err := DecodeChallengeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotID != id {
		t.Errorf("id mismatch: %s vs %s", gotID, id)
	}
	if gotSecret != secret {
		t.Error("secret mismatch after roundtrip")
	}
}

func TestDecodeChallengeTokenRejectsWrongSize(t *testing.T) {
	for _, input := range []string{"", "abc", "dG9vLXNob3J0"} {
		if _, _, err := DecodeChallengeToken(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestBackupCodeUsesAlphabet(t *testing.T) {
	code, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("new backup code: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("length = %d, want 10", len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(BackupCodeAlphabet, c) {
			t.Errorf("character %q outside alphabet", c)
		}
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	if got := CanonicalizeBackupCode(" abcde-23456 "); got != "ABCDE23456" {
		t.Errorf("canonical = %q", got)
	}
	if FormatBackupCode("ABCDE23456") != "ABCDE-23456" {
		t.Error("format should insert mid-point dash")
	}
}

func TestBackupCodeHashBindsAccount(t *testing.T) {
	a := BackupCodeHash("acct-1", "ABCDE23456")
	b := BackupCodeHash("acct-2", "ABCDE23456")
	if a == b {
		t.Error("same code for different accounts must not share a hash")
	}
}

func TestNewOTPBounds(t *testing.T) {
	if _, err := NewOTP(5); err == nil {
		t.Error("expected error for 5 digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Error("expected error for 11 digits")
	}

	otp, err := NewOTP(6)
	if err != nil {
		t.Fatalf("new otp: %v", err)
	}
	if len(otp) != 6 {
		t.Fatalf("otp length = %d", len(otp))
	}
	for _, c := range otp {
		if c < '0' || c > '9' {
			t.Errorf("non-digit %q in otp", c)
		}
	}
}

// FuzzDecodeChallengeToken exercises token decoding with arbitrary strings.
// Goal: no panics; invalid inputs should return errors cleanly.
func FuzzDecodeChallengeToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	secret, err := NewChallengeSecret()
	if err == nil {
		f.Add(EncodeChallengeToken(uuid.New(), secret))
	}

	f.Fuzz(func(t *testing.T, input string) {
		id, secret, err := DecodeChallengeToken(input)
		if err != nil {
			return
		}

		reEncoded := EncodeChallengeToken(id, secret)
		id2, secret2, err := DecodeChallengeToken(reEncoded)
		if err != nil {
			t.Fatalf("roundtrip decode failed: %v", err)
		}
		if id2 != id {
			t.Errorf("roundtrip id mismatch: %s vs %s", id2, id)
		}
		if secret2 != secret {
			t.Error("roundtrip secret mismatch")
		}
	})
}
