package refresh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	recordFormatVersionCurrent = 1

	recordStatusActive  byte = 0
	recordStatusRevoked byte = 1
)

// Fixed offsets shared with the store's Lua scripts. Any layout change here
// must be mirrored in store.go.
const (
	offStatus     = 1
	offChainID    = 2
	offReplacedBy = 18
	offIssuedAt   = 34
	offExpiresAt  = 42
	offSecretHash = 50
	offAccountLen = 82
	minRecordSize = 83
)

func Encode(r *TokenRecord) ([]byte, error) {
	if len(r.AccountID) == 0 {
		return nil, errors.New("accountID empty")
	}
	if len(r.AccountID) > 255 {
		return nil, errors.New("accountID too long")
	}

	var buf bytes.Buffer
	buf.Grow(minRecordSize + len(r.AccountID))

	buf.WriteByte(recordFormatVersionCurrent)

	if r.Revoked {
		buf.WriteByte(recordStatusRevoked)
	} else {
		buf.WriteByte(recordStatusActive)
	}

	buf.Write(r.ChainID[:])
	buf.Write(r.ReplacedBy[:])

	if err := binary.Write(&buf, binary.BigEndian, r.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	buf.Write(r.SecretHash[:])

	buf.WriteByte(byte(len(r.AccountID)))
	buf.WriteString(r.AccountID)

	return buf.Bytes(), nil
}

// Decode parses a record blob. The record ID is not part of the blob (it is
// the storage key); callers set it after decoding.
func Decode(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid record version")
	}

	r := &TokenRecord{}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	switch status {
	case recordStatusActive:
		r.Revoked = false
	case recordStatusRevoked:
		r.Revoked = true
	default:
		return nil, errors.New("invalid record status")
	}

	if _, err := io.ReadFull(reader, r.ChainID[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, r.ReplacedBy[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, r.SecretHash[:]); err != nil {
		return nil, err
	}

	acctLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if acctLen == 0 {
		return nil, errors.New("invalid account id length")
	}
	accountID := make([]byte, acctLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	r.AccountID = string(accountID)

	if reader.Len() != 0 {
		return nil, errors.New("trailing record bytes")
	}

	return r, nil
}
