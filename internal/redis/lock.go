package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired holder cannot free a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// DriverLockKey returns the key guarding a driver claim.
func DriverLockKey(driverID string) string {
	return "lock:driver:" + driverID
}

// AcquireDriverLock attempts to acquire a lock for the given driver.
// ok is false if the lock is already held.
func (s *LockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, DriverLockKey(driverID), token, ttl).Result()
	if err != nil {
		return "", false, eris.Wrap(err, "redis: acquire driver lock")
	}
	return token, ok, nil
}

// ReleaseDriverLock releases the lock if token still owns it.
func (s *LockStore) ReleaseDriverLock(ctx context.Context, driverID, token string) error {
	err := releaseScript.Run(ctx, s.client, []string{DriverLockKey(driverID)}, token).Err()
	return eris.Wrap(err, "redis: release driver lock")
}
