package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teranos/crosspost/errors"
)

// KeyPrefix namespaces lock keys in a shared Redis
const KeyPrefix = "crosspost:lock:"

// Deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end`)

// RedisLocker uses SET NX PX leases. Keys are the job ids themselves, so
// there are no hash collisions; a crashed holder's key expires after ttl.
type RedisLocker struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisLocker creates a Redis lease locker
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration, logger *zap.SugaredLogger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, logger: logger}
}

func redisKey(jobID string) string {
	return KeyPrefix + jobID
}

// Acquire sets the lease key if absent.
func (l *RedisLocker) Acquire(ctx context.Context, jobID string) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, redisKey(jobID), token, l.ttl).Result()
	if err != nil {
		err = errors.Wrap(err, "failed to acquire redis lease")
		return nil, false, errors.WithDetail(err, "Job ID: "+jobID)
	}
	if !ok {
		return nil, false, nil
	}
	l.logger.Debugw("Redis lease acquired", "job_id", jobID, "ttl", l.ttl)
	return &redisLease{locker: l, jobID: jobID, token: token}, true, nil
}

type redisLease struct {
	locker *RedisLocker
	jobID  string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.locker.rdb, []string{redisKey(l.jobID)}, l.token).Int()
	if err != nil {
		return errors.Wrapf(err, "failed to release redis lease for job %s", l.jobID)
	}
	if n == 0 {
		l.locker.logger.Warnw("Redis lease expired before release", "job_id", l.jobID)
	}
	return nil
}
