package sessionredis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/session"
)

const (
	sessionKeyPrefix = "session:"
	accountKeyPrefix = "session:acct:"
)

// RedisStore implements session.Store on Redis. Sessions live under
// session:{id} with the session TTL; session:acct:{accountID} indexes an
// account's session ids so they can be superseded in one sweep.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, sess session.Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return errx.Wrap(err, "failed to marshal session", errx.TypeInternal)
	}

	accountKey := accountKeyPrefix + sess.AccountID.String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+sess.ID, payload, ttl)
		pipe.SAdd(ctx, accountKey, sess.ID)
		pipe.Expire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return errx.Wrap(err, "failed to store session", errx.TypeInternal).
			WithDetail("account_id", sess.AccountID.String())
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*session.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errx.Wrap(err, "failed to get session", errx.TypeInternal)
	}

	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal session", errx.TypeInternal)
	}

	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.client.Del(ctx, sessionKeyPrefix+id).Result(); err != nil {
		return errx.Wrap(err, "failed to delete session", errx.TypeInternal)
	}
	if sess != nil {
		if err := s.client.SRem(ctx, accountKeyPrefix+sess.AccountID.String(), id).Err(); err != nil {
			return errx.Wrap(err, "failed to unindex session", errx.TypeInternal)
		}
	}

	return nil
}

func (s *RedisStore) DeleteByAccount(ctx context.Context, accountID kernel.AccountID) (int, error) {
	accountKey := accountKeyPrefix + accountID.String()

	ids, err := s.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return 0, errx.Wrap(err, "failed to list account sessions", errx.TypeInternal).
			WithDetail("account_id", accountID.String())
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, accountKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, errx.Wrap(err, "failed to delete account sessions", errx.TypeInternal).
			WithDetail("account_id", accountID.String())
	}

	return len(ids), nil
}
