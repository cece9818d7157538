package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersionV1 = 1

var (
	ErrChallengeNotFound         = errors.New("challenge not found")
	ErrChallengeSecretMismatch   = errors.New("challenge secret mismatch")
	ErrChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	ErrChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// ChallengeRecord is one single-use, time-boxed proof: a password reset or
// an email verification in flight. Only the secret's hash is stored.
type ChallengeRecord struct {
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// ChallengeStore keeps challenge records in Redis under a prefix. Reset and
// verification flows run separate stores with separate prefixes, so a token
// issued by one flow can never consume a challenge of the other.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewChallengeStore creates a [ChallengeStore] backed by the given Redis
// client.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "chal"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save stores a fresh challenge under its id.
func (s *ChallengeStore) Save(ctx context.Context, challengeID string, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	return nil
}

// Consume atomically settles a challenge presentation. A matching secret
// deletes the record and returns it; a mismatch burns one attempt (deleting
// the record once maxAttempts is reached) and reports
// [ErrChallengeSecretMismatch]. Concurrent consumers race under WATCH; the
// loser retries, and a challenge consumed by the winner reads as not found.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*ChallengeRecord, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *ChallengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrChallengeAttemptsExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrChallengeNotFound
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeSecretMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrChallengeNotFound):
				return nil, ErrChallengeNotFound
			case errors.Is(err, ErrChallengeSecretMismatch), errors.Is(err, ErrChallengeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	// Someone else consumed the challenge on every retry.
	return nil, ErrChallengeNotFound
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) == 0 || len(record.AccountID) > 65535 {
		return nil, errors.New("challenge record account id length invalid")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("challenge record has trailing bytes")
	}

	return record, nil
}
