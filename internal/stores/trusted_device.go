package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const trustedDeviceRecordVersion1 = 1

var (
	ErrTrustedDeviceNotFound = errors.New("trusted device not found")
	ErrTrustedDeviceExpired  = errors.New("trusted device expired")
	ErrTrustedDeviceBackend  = errors.New("trusted device backend unavailable")
)

// TrustedDeviceRecord describes one registered MFA-bypass device.
// FingerprintHash binds the registration to the browser and network it was
// created from; a token presented from elsewhere is rejected.
type TrustedDeviceRecord struct {
	UserID          string
	SecretHash      [32]byte
	FingerprintHash [32]byte
	RegisteredAt    int64
	ExpiresAt       int64
	LastUsedAt      int64
}

// TrustedDeviceStore persists trusted-device registrations in Redis. Each
// device has its own TTL'd key, and a per-user set indexes registrations for
// bulk revocation.
type TrustedDeviceStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewTrustedDeviceStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *TrustedDeviceStore {
	if prefix == "" {
		prefix = "agd"
	}
	if now == nil {
		now = time.Now
	}
	return &TrustedDeviceStore{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *TrustedDeviceStore) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

func (s *TrustedDeviceStore) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func (s *TrustedDeviceStore) Save(ctx context.Context, deviceID string, record *TrustedDeviceRecord, ttl time.Duration) error {
	encoded, err := encodeTrustedDeviceRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(deviceID), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(record.UserID), deviceID)
		// The index only needs to outlive the registrations it points at.
		pipe.Expire(ctx, s.userKey(record.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	return nil
}

// Get returns the registration. Records past their embedded expiry are
// deleted and reported as expired.
func (s *TrustedDeviceStore) Get(ctx context.Context, deviceID string) (*TrustedDeviceRecord, error) {
	data, err := s.redis.Get(ctx, s.key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTrustedDeviceNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}

	record, err := decodeTrustedDeviceRecord(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(deviceID)).Result()
		return nil, ErrTrustedDeviceExpired
	}
	return record, nil
}

// Touch updates the last-used timestamp without extending the TTL. Best
// effort: a lost update only skews the audit trail, never trust decisions.
func (s *TrustedDeviceStore) Touch(ctx context.Context, deviceID string, record *TrustedDeviceRecord) {
	record.LastUsedAt = s.now().Unix()
	encoded, err := encodeTrustedDeviceRecord(record)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, s.key(deviceID), encoded, redis.KeepTTL).Err()
}

// Delete removes one registration and reports whether it existed.
func (s *TrustedDeviceStore) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	_ = s.redis.SRem(ctx, s.userKey(userID), deviceID).Err()
	return n > 0, nil
}

// DeleteAllForUser removes every registration for the user and returns how
// many existed.
func (s *TrustedDeviceStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.userKey(userID))

	n, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	if n > 0 {
		// Exclude the index key from the count.
		n--
	}
	return int(n), nil
}

func encodeTrustedDeviceRecord(record *TrustedDeviceRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(trustedDeviceRecordVersion1)
	buf.Write(record.SecretHash[:])
	buf.Write(record.FingerprintHash[:])

	for _, v := range []int64{record.RegisteredAt, record.ExpiresAt, record.LastUsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("trusted device user id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeTrustedDeviceRecord(data []byte) (*TrustedDeviceRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != trustedDeviceRecordVersion1 {
		return nil, errors.New("invalid trusted device record version")
	}

	record := &TrustedDeviceRecord{}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.FingerprintHash[:]); err != nil {
		return nil, err
	}
	for _, v := range []*int64{&record.RegisteredAt, &record.ExpiresAt, &record.LastUsedAt} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	return record, nil
}
