package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any Redis transport failure.
var ErrRedisUnavailable = errors.New("token store redis unavailable")

// ErrRecordNotFound is returned by Get for an unknown token ID.
var ErrRecordNotFound = errors.New("token record not found")

// revokedRetentionGrace keeps revoked records around past the session
// ceiling so a very late replay still reads as reuse, not as not-found.
const revokedRetentionGrace = time.Hour

const (
	rotateCodeNotFound int64 = 0
	rotateCodeExpired  int64 = 1
	rotateCodeReused   int64 = 2
	rotateCodeRotated  int64 = 3
	rotateCodeCeiling  int64 = 4
	rotateCodeMismatch int64 = 5
)

// rotateScript is the compare-and-swap at the heart of rotation. Redis
// executes scripts serially, so of N concurrent calls presenting the same
// token exactly one sees revoked == "0" with a matching digest; the rest
// observe the revoked flag it sets and report reuse.
const rotateScript = `
local fields = redis.call("HMGET", KEYS[1],
  "family_id", "user_id", "secret_hash", "expires_at", "session_started_at", "revoked")
local family_id = fields[1]
if not family_id then
  return {0}
end
local user_id = fields[2]
local started_at = tonumber(fields[5])
local now = tonumber(ARGV[6])

if fields[6] == "1" then
  return {2, family_id, user_id}
end

local lifetime = tonumber(ARGV[8])
if lifetime > 0 and started_at + lifetime <= now then
  return {4, family_id, user_id}
end

local expires_at = tonumber(fields[4])
if not expires_at or expires_at <= now then
  redis.call("DEL", KEYS[1])
  return {1}
end

if fields[3] ~= ARGV[3] then
  return {5}
end

local retention = tonumber(ARGV[7]) + tonumber(ARGV[9])
if lifetime > 0 then
  retention = started_at + lifetime - now + tonumber(ARGV[9])
end

redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[6])
redis.call("PEXPIRE", KEYS[1], retention)

local ttl = tonumber(ARGV[7])
if lifetime > 0 then
  local remaining = started_at + lifetime - now
  if remaining < ttl then
    ttl = remaining
  end
end

local new_key = ARGV[1] .. ARGV[4]
redis.call("HSET", new_key,
  "family_id", family_id,
  "user_id", user_id,
  "secret_hash", ARGV[5],
  "issued_at", ARGV[6],
  "expires_at", now + ttl,
  "session_started_at", fields[5],
  "revoked", "0",
  "created_by_ip", ARGV[10])
redis.call("PEXPIRE", new_key, retention)

local family_key = ARGV[2] .. family_id
redis.call("SADD", family_key, ARGV[4])
redis.call("PEXPIRE", family_key, retention)

return {3, family_id, user_id, fields[5]}
`

var rotateLua = redis.NewScript(rotateScript)

// revokeFamilyScript marks every live member of a family revoked in one
// atomic step and returns how many flipped. Idempotent: a second call
// returns zero.
const revokeFamilyScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local flipped = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("HGET", key, "revoked") == "0" then
    redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[2])
    flipped = flipped + 1
  end
end
return flipped
`

var revokeFamilyLua = redis.NewScript(revokeFamilyScript)

// Store persists refresh-token families in Redis. All timestamps are
// millisecond Unix values embedded in the records; expiry decisions go
// through the embedded values and the injected clock, with key TTLs acting
// as garbage collection.
type Store struct {
	redis            redis.UniversalClient
	prefix           string
	refreshTTL       time.Duration
	absoluteLifetime time.Duration
	now              func() time.Time
}

// NewStore creates a token [Store]. prefix sets the Redis key namespace;
// refreshTTL is the per-token rotation lifetime; absoluteLifetime caps the
// whole family from first issuance (zero disables the ceiling).
func NewStore(
	redisClient redis.UniversalClient,
	prefix string,
	refreshTTL time.Duration,
	absoluteLifetime time.Duration,
	now func() time.Time,
) *Store {
	if prefix == "" {
		prefix = "agt"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:            redisClient,
		prefix:           prefix,
		refreshTTL:       refreshTTL,
		absoluteLifetime: absoluteLifetime,
		now:              now,
	}
}

func (s *Store) tokenKeyPrefix() string {
	return s.prefix + ":t:"
}

func (s *Store) familyKeyPrefix() string {
	return s.prefix + ":f:"
}

func (s *Store) tokenKey(tokenID string) string {
	return s.tokenKeyPrefix() + tokenID
}

func (s *Store) familyKey(familyID string) string {
	return s.familyKeyPrefix() + familyID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) retention(sessionStartedAt time.Time) time.Duration {
	if s.absoluteLifetime <= 0 {
		return s.refreshTTL + revokedRetentionGrace
	}
	remaining := sessionStartedAt.Add(s.absoluteLifetime).Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + revokedRetentionGrace
}

// Create persists the first token of a new family and indexes the family
// under its user for bulk revocation.
func (s *Store) Create(ctx context.Context, record *Record) error {
	key := s.tokenKey(record.TokenID)
	familyKey := s.familyKey(record.FamilyID)
	userKey := s.userKey(record.UserID)
	retention := s.retention(record.SessionStartedAt)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"family_id", record.FamilyID,
			"user_id", record.UserID,
			"secret_hash", string(record.SecretHash[:]),
			"issued_at", strconv.FormatInt(record.IssuedAt.UnixMilli(), 10),
			"expires_at", strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
			"session_started_at", strconv.FormatInt(record.SessionStartedAt.UnixMilli(), 10),
			"revoked", "0",
			"created_by_ip", record.CreatedByIP,
		)
		pipe.PExpire(ctx, key, retention)
		pipe.SAdd(ctx, familyKey, record.TokenID)
		pipe.PExpire(ctx, familyKey, retention)
		pipe.SAdd(ctx, userKey, record.FamilyID)
		pipe.PExpire(ctx, userKey, retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically retires the presented token and persists its successor.
// The caller supplies the successor's identity; the script decides whether
// it gets written. Non-rotated outcomes come back in the result status, not
// as errors; only transport failures error.
func (s *Store) Rotate(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
	nextTokenID string,
	nextHash [32]byte,
	createdByIP string,
) (*RotateResult, error) {
	result, err := rotateLua.Run(ctx, s.redis,
		[]string{s.tokenKey(tokenID)},
		s.tokenKeyPrefix(),
		s.familyKeyPrefix(),
		string(providedHash[:]),
		nextTokenID,
		string(nextHash[:]),
		s.now().UnixMilli(),
		s.refreshTTL.Milliseconds(),
		s.absoluteLifetime.Milliseconds(),
		revokedRetentionGrace.Milliseconds(),
		createdByIP,
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

	out := &RotateResult{}
	switch code {
	case rotateCodeNotFound:
		out.Status = RotateNotFound
	case rotateCodeExpired:
		out.Status = RotateExpired
	case rotateCodeMismatch:
		out.Status = RotateMismatch
	case rotateCodeReused, rotateCodeCeiling:
		if code == rotateCodeReused {
			out.Status = RotateReused
		} else {
			out.Status = RotateCeiling
		}
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: missing rotate script context", ErrRedisUnavailable)
		}
		out.FamilyID = scriptString(parts[1])
		out.UserID = scriptString(parts[2])
	case rotateCodeRotated:
		out.Status = RotateRotated
		if len(parts) < 4 {
			return nil, fmt.Errorf("%w: missing rotate script context", ErrRedisUnavailable)
		}
		out.FamilyID = scriptString(parts[1])
		out.UserID = scriptString(parts[2])
		startedMs, parseErr := strconv.ParseInt(scriptString(parts[3]), 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid session start in rotate response", ErrRedisUnavailable)
		}
		out.SessionStartedAt = time.UnixMilli(startedMs)
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
	return out, nil
}

// RevokeFamily marks every live token of the family revoked and reports how
// many were newly revoked. Safe to call repeatedly.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	n, err := revokeFamilyLua.Run(ctx, s.redis,
		[]string{s.familyKey(familyID)},
		s.tokenKeyPrefix(),
		s.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// FamiliesForUser lists the family IDs indexed for a user. The index may
// contain families whose tokens have since been garbage collected; revoking
// those is a no-op.
func (s *Store) FamiliesForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// FamilyTokenIDs lists the token IDs recorded for a family.
func (s *Store) FamilyTokenIDs(ctx context.Context, familyID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Get fetches one token record without mutating any state.
func (s *Store) Get(ctx context.Context, tokenID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	record := &Record{
		TokenID:     tokenID,
		FamilyID:    fields["family_id"],
		UserID:      fields["user_id"],
		Revoked:     fields["revoked"] == "1",
		CreatedByIP: fields["created_by_ip"],
	}
	copy(record.SecretHash[:], fields["secret_hash"])

	for _, f := range []struct {
		name string
		dst  *time.Time
	}{
		{"issued_at", &record.IssuedAt},
		{"expires_at", &record.ExpiresAt},
		{"session_started_at", &record.SessionStartedAt},
		{"revoked_at", &record.RevokedAt},
	} {
		raw, ok := fields[f.name]
		if !ok || raw == "" {
			continue
		}
		ms, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: corrupt %s field", ErrRedisUnavailable, f.name)
		}
		*f.dst = time.UnixMilli(ms)
	}

	return record, nil
}

func scriptString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}
