package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	challengeTokenRawSize = 48
	challengeSecretSize   = 32
)

// BackupCodeAlphabet avoids visually ambiguous characters (0/O, 1/I).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func NewChallengeSecret() ([challengeSecretSize]byte, error) {
	var secret [challengeSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashChallengeSecret(secret [challengeSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

func HashSecretBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

func EncodeChallengeToken(id uuid.UUID, secret [challengeSecretSize]byte) string {
	var raw [challengeTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeChallengeToken(token string) (uuid.UUID, [challengeSecretSize]byte, error) {
	var (
		id     uuid.UUID
		secret [challengeSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != challengeTokenRawSize {
		return id, secret, errors.New("invalid challenge token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id, secret, nil
}

func NewBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode inserts a mid-point dash for readability.
// CanonicalizeBackupCode strips it back out.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// BackupCodeHash binds the code to its account so identical codes issued to
// different accounts never share a stored hash.
func BackupCodeHash(accountID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
