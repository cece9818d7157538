package refresh

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrTokenRecordNotFound is returned when the presented record does not exist.
var ErrTokenRecordNotFound = errors.New("token record not found")

// ErrTokenRecordExpired is returned when the presented record is past its expiry.
var ErrTokenRecordExpired = errors.New("token record expired")

// ErrSecretMismatch is returned when the presented secret does not hash to the stored value.
var ErrSecretMismatch = errors.New("token secret mismatch")

// ErrReuseDetected is returned when a revoked record is presented with its
// correct secret. The store has already revoked the whole chain by the time
// callers see this error.
var ErrReuseDetected = errors.New("token reuse detected")

// ErrTokenRecordCorrupt is returned when a stored record blob is invalid.
var ErrTokenRecordCorrupt = errors.New("token record corrupt")

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusReuse       int64 = 4
	rotateStatusInvalidBlob int64 = 5
)

// Lua helpers shared by the scripts below. Offsets are 1-based mirrors of the
// encoder.go constants: version 1, status 2, chain 3-18, replaced-by 19-34,
// issued-at 35-42, expires-at 43-50, secret hash 51-82, account length 83.
const luaRecordHelpers = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function to_hex(raw)
  local out = {}
  for i = 1, #raw do
    out[i] = string.format("%02x", string.byte(raw, i))
  end
  return table.concat(out)
end

local function parse_record(data)
  if #data < 83 then
    return nil
  end
  if string.byte(data, 1) ~= 1 then
    return nil
  end
  local status = string.byte(data, 2)
  if status > 1 then
    return nil
  end
  local expires_at = read_be64(data, 43)
  if not expires_at then
    return nil
  end
  local acct_len = string.byte(data, 83)
  if not acct_len or acct_len == 0 or #data < 83 + acct_len then
    return nil
  end
  return {
    status = status,
    chain_id = string.sub(data, 3, 18),
    expires_at = expires_at,
    secret_hash = string.sub(data, 51, 82),
    account_id = string.sub(data, 84, 83 + acct_len)
  }
end

local function mark_revoked(record_key)
  local data = redis.call("GET", record_key)
  if not data or #data < 2 then
    return 0
  end
  if string.byte(data, 2) == 1 then
    return 0
  end
  local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
  local ttl = redis.call("PTTL", record_key)
  if ttl > 0 then
    redis.call("SET", record_key, updated, "PX", ttl)
  else
    redis.call("SET", record_key, updated)
  end
  return 1
end

local function revoke_chain(chain_key, record_prefix)
  local members = redis.call("SMEMBERS", chain_key)
  local revoked = 0
  for _, member in ipairs(members) do
    revoked = revoked + mark_revoked(record_prefix .. member)
  end
  return revoked
end
`

const rotateChainScript = luaRecordHelpers + `
local record_key = KEYS[1]
local record_prefix = ARGV[1]
local chain_prefix = ARGV[2]
local account_prefix = ARGV[3]
local provided_hash = ARGV[4]
local fresh_id = ARGV[5]
local fresh_record = ARGV[6]
local fresh_ttl_ms = tonumber(ARGV[7])
local now_unix = tonumber(ARGV[8])

local data = redis.call("GET", record_key)
if not data then
  return {0}
end

local parsed = parse_record(data)
if not parsed then
  return {5}
end

if parsed.secret_hash ~= provided_hash then
  return {2}
end

if parsed.status == 1 then
  local revoked = revoke_chain(chain_prefix .. to_hex(parsed.chain_id), record_prefix)
  return {4, revoked}
end

if parsed.expires_at <= now_unix then
  return {1}
end

local retired = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3, 18) .. fresh_id .. string.sub(data, 35)
local ttl = redis.call("PTTL", record_key)
if ttl > 0 then
  redis.call("SET", record_key, retired, "PX", ttl)
else
  redis.call("SET", record_key, retired)
end

local fresh = string.sub(fresh_record, 1, 2) .. parsed.chain_id .. string.sub(fresh_record, 19)
local fresh_hex = to_hex(fresh_id)
redis.call("SET", record_prefix .. fresh_hex, fresh, "PX", fresh_ttl_ms)

local chain_key = chain_prefix .. to_hex(parsed.chain_id)
redis.call("SADD", chain_key, fresh_hex)
redis.call("PEXPIRE", chain_key, fresh_ttl_ms)

local account_key = account_prefix .. parsed.account_id
redis.call("SADD", account_key, fresh_hex)
redis.call("PEXPIRE", account_key, fresh_ttl_ms)

return {3, fresh}
`

var rotateChainLua = redis.NewScript(rotateChainScript)

const revokeChainScript = luaRecordHelpers + `
local record_key = KEYS[1]
local record_prefix = ARGV[1]
local chain_prefix = ARGV[2]
local provided_hash = ARGV[3]

local data = redis.call("GET", record_key)
if not data then
  return {0}
end

local parsed = parse_record(data)
if not parsed then
  return {5}
end

if parsed.secret_hash ~= provided_hash then
  return {2}
end

local revoked = revoke_chain(chain_prefix .. to_hex(parsed.chain_id), record_prefix)
return {3, revoked}
`

var revokeChainLua = redis.NewScript(revokeChainScript)

const revokeAccountScript = luaRecordHelpers + `
local account_key = KEYS[1]
local record_prefix = ARGV[1]

local members = redis.call("SMEMBERS", account_key)
local revoked = 0
for _, member in ipairs(members) do
  revoked = revoked + mark_revoked(record_prefix .. member)
end
return revoked
`

var revokeAccountLua = redis.NewScript(revokeAccountScript)

// Store is a Redis-backed token-record store that handles persistence,
// atomic rotation, chain-wide revocation, and reuse detection.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates a refresh [Store] backed by the given Redis client.
// prefix sets the Redis key namespace. retention extends each record's Redis
// TTL past its logical expiry so revoked and expired records stay visible to
// reuse detection before TTL-based pruning removes them.
func NewStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "rt"
	}
	if retention < 0 {
		retention = 0
	}
	return &Store{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *Store) recordPrefix() string {
	return s.prefix + ":"
}

func (s *Store) chainPrefix() string {
	return s.prefix + "c:"
}

func (s *Store) accountPrefix() string {
	return s.prefix + "a:"
}

func (s *Store) recordKey(id uuid.UUID) string {
	return s.recordPrefix() + hex.EncodeToString(id[:])
}

func (s *Store) chainKey(id uuid.UUID) string {
	return s.chainPrefix() + hex.EncodeToString(id[:])
}

func (s *Store) accountKey(accountID string) string {
	return s.accountPrefix() + accountID
}

// Save persists a chain-root [TokenRecord] with the given logical TTL.
//
//	Performance: 5 Redis commands in one MULTI (SET + both set indexes).
func (s *Store) Save(ctx context.Context, rec *TokenRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive record ttl")
	}

	data, err := Encode(rec)
	if err != nil {
		return err
	}

	retain := ttl + s.retention
	idHex := hex.EncodeToString(rec.ID[:])
	recordKey := s.recordPrefix() + idHex
	chainKey := s.chainKey(rec.ChainID)
	accountKey := s.accountKey(rec.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey, data, retain)
		pipe.SAdd(ctx, chainKey, idHex)
		pipe.PExpire(ctx, chainKey, retain)
		pipe.SAdd(ctx, accountKey, idHex)
		pipe.PExpire(ctx, accountKey, retain)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a record without mutating any Redis state.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Join(redis.Nil, ErrTokenRecordNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrTokenRecordCorrupt, err)
	}
	rec.ID = id

	return rec, nil
}

// Rotate atomically retires the presented record and writes its replacement
// using a Lua CAS script. This is the core of the rotation protocol that
// enables reuse detection.
//
// The presented record must carry the provided secret hash. An active record
// is marked revoked with its replaced-by pointer set to next.ID, and next is
// stored on the same chain (next.ChainID is overwritten by the script with
// the presented record's chain). Presenting an already-revoked record proves
// token theft somewhere on the chain; the script revokes every chain member
// before reporting [ErrReuseDetected].
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: CAS prevents lost updates under concurrent rotation of the same token.
func (s *Store) Rotate(
	ctx context.Context,
	presentedID uuid.UUID,
	providedHash [32]byte,
	next *TokenRecord,
	ttl time.Duration,
) (*TokenRecord, error) {
	if ttl <= 0 {
		return nil, errors.New("non-positive record ttl")
	}

	nextBlob, err := Encode(next)
	if err != nil {
		return nil, err
	}

	result, err := rotateChainLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(presentedID)},
		s.recordPrefix(),
		s.chainPrefix(),
		s.accountPrefix(),
		providedHash[:],
		next.ID[:],
		nextBlob,
		(ttl + s.retention).Milliseconds(),
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrTokenRecordNotFound)
	case rotateStatusExpired:
		return nil, errors.Join(redis.Nil, ErrTokenRecordExpired)
	case rotateStatusMismatch:
		return nil, ErrSecretMismatch
	case rotateStatusReuse:
		return nil, ErrReuseDetected
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated record payload", ErrRedisUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated record payload", ErrRedisUnavailable)
		}

		rec, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrTokenRecordCorrupt, decErr)
		}
		rec.ID = next.ID
		return rec, nil
	case rotateStatusInvalidBlob:
		return nil, errors.Join(ErrRedisUnavailable, ErrTokenRecordCorrupt)
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// RevokeChain revokes every record on the presented record's chain. The
// caller must prove possession with the secret hash. Revoking an
// already-revoked chain is a no-op success, which keeps logout idempotent.
//
// Returns the number of records flipped to revoked.
func (s *Store) RevokeChain(ctx context.Context, presentedID uuid.UUID, providedHash [32]byte) (int, error) {
	result, err := revokeChainLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(presentedID)},
		s.recordPrefix(),
		s.chainPrefix(),
		providedHash[:],
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return 0, fmt.Errorf("%w: invalid revoke script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid revoke script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return 0, errors.Join(redis.Nil, ErrTokenRecordNotFound)
	case rotateStatusMismatch:
		return 0, ErrSecretMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return 0, nil
		}
		count, _ := parts[1].(int64)
		return int(count), nil
	case rotateStatusInvalidBlob:
		return 0, errors.Join(ErrRedisUnavailable, ErrTokenRecordCorrupt)
	default:
		return 0, fmt.Errorf("%w: unknown revoke script status", ErrRedisUnavailable)
	}
}

// RevokeAllForAccount revokes every record indexed for an account, across all
// chains. Returns the number of records flipped to revoked.
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	count, err := revokeAccountLua.Run(
		ctx,
		s.redis,
		[]string{s.accountKey(accountID)},
		s.recordPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// ActiveRecords returns the account's unrevoked, unexpired records. Index
// entries whose records were already pruned by TTL are skipped.
func (s *Store) ActiveRecords(ctx context.Context, accountID string) ([]*TokenRecord, error) {
	idsHex, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*TokenRecord{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(idsHex) == 0 {
		return []*TokenRecord{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(idsHex))
	for i, idHex := range idsHex {
		cmds[i] = pipe.Get(ctx, s.recordPrefix()+idHex)
	}
	_, err = pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*TokenRecord, 0, len(idsHex))
	nowUnix := time.Now().Unix()
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			return nil, errors.Join(ErrTokenRecordCorrupt, decErr)
		}

		raw, hexErr := hex.DecodeString(idsHex[i])
		if hexErr != nil || len(raw) != len(rec.ID) {
			return nil, errors.Join(ErrTokenRecordCorrupt, errors.New("invalid record index entry"))
		}
		copy(rec.ID[:], raw)

		if !rec.Active(nowUnix) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
