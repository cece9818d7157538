package ward

import (
	"testing"
	"time"
)

func TestTOTPVerifyRFCVectorsSHA1(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      0,
	})
	secret := []byte("12345678901234567890")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA1 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA256(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA256",
		Skew:      0,
	})
	secret := []byte("12345678901234567890123456789012")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA256 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA512(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA512",
		Skew:      0,
	})
	secret := []byte("1234567890123456789012345678901234567890123456789012345678901234")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA512 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPDriftWindowAcceptsAdjacentSteps(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret := []byte("12345678901234567890")
	now := time.Unix(1234567890, 0)
	base := now.Unix() / 30

	for _, offset := range []int64{-1, 0, 1} {
		code, err := hotpCode(secret, base+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		ok, matched, err := m.VerifyCode(secret, code, now)
		if err != nil || !ok {
			t.Fatalf("offset %d: expected accepted, ok=%v err=%v", offset, ok, err)
		}
		if matched != base+offset {
			t.Fatalf("offset %d: matched step %d, want %d", offset, matched, base+offset)
		}
	}
}

func TestTOTPOutsideDriftWindowRejected(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret := []byte("12345678901234567890")
	now := time.Unix(1234567890, 0)
	base := now.Unix() / 30

	for _, offset := range []int64{-2, 2} {
		code, err := hotpCode(secret, base+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		ok, _, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatalf("offset %d: code outside skew window must be rejected", offset)
		}
	}
}

func TestTOTPWrongDigitsRejected(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret := []byte("12345678901234567890")
	ok, _, err := m.VerifyCode(secret, "12345678", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong-length code to be rejected")
	}

	ok, _, err = m.VerifyCode(secret, "12a456", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected non-numeric code to be rejected")
	}
}

func TestTOTPProvisionURI(t *testing.T) {
	m := newTOTPManager(SecondFactorConfig{
		Issuer:    "ward",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "user@example.com")
	want := "otpauth://totp/ward:user@example.com?algorithm=SHA1&digits=6&issuer=ward&period=30&secret=JBSWY3DPEHPK3PXP"
	if uri != want {
		t.Fatalf("uri = %q, want %q", uri, want)
	}
}
