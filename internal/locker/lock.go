package locker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrNotConfigured = errors.New("lock_client_not_configured")
	ErrEmptyKey      = errors.New("lock_key_empty")
	ErrInvalidTTL    = errors.New("lock_ttl_invalid")
)

// Locker is a single-instance redis mutex. Each acquisition stores a random
// token so a holder whose lease expired cannot release a newer holder's lock.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// NewLocker returns nil when client is nil. A nil *Locker reports
// ErrNotConfigured from TryLock and ignores Release.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", false, ErrNotConfigured
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if !l.Enabled() {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
