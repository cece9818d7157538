package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	tokenSecretSize = 32
	tokenRawSize    = 16 + tokenSecretSize
)

func NewSecret() ([tokenSecretSize]byte, error) {
	var secret [tokenSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashSecret(secret [tokenSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeToken packs a record ID and bearer secret into the opaque wire form.
func EncodeToken(id uuid.UUID, secret [tokenSecretSize]byte) string {
	var raw [tokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeToken(token string) (uuid.UUID, [tokenSecretSize]byte, error) {
	var (
		id     uuid.UUID
		secret [tokenSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != tokenRawSize {
		return id, secret, errors.New("invalid refresh token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id, secret, nil
}
