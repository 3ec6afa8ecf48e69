package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
	json "github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps users as hashes under user:<id> and each session's chat
// log as a list under chat:<session id>.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return NewRedisStore(client), nil
}

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "watchparty:"}
}

func (r *RedisStore) userKey(uid domain.UserID) string {
	return r.prefix + "user:" + strconv.FormatInt(int64(uid), 10)
}

func (r *RedisStore) chatKey(sid domain.SessionID) string {
	return r.prefix + "chat:" + strconv.FormatInt(int64(sid), 10)
}

func (r *RedisStore) seqKey() string { return r.prefix + "chat:seq" }

func (r *RedisStore) PersistChat(ctx context.Context, sid domain.SessionID, uid domain.UserID, body string) (domain.Message, error) {
	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return domain.Message{}, fmt.Errorf("redis: next message id: %w", err)
	}
	m := domain.Message{ID: id, SessionID: sid, UserID: uid, Body: body, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(m)
	if err != nil {
		return domain.Message{}, fmt.Errorf("redis: marshal message: %w", err)
	}
	if err := r.client.RPush(ctx, r.chatKey(sid), data).Err(); err != nil {
		return domain.Message{}, fmt.Errorf("redis: append message: %w", err)
	}
	return m, nil
}

func (r *RedisStore) LookupUser(ctx context.Context, uid domain.UserID) (domain.User, error) {
	fields, err := r.client.HGetAll(ctx, r.userKey(uid)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, fmt.Errorf("redis: lookup user %d: %w", uid, err)
	}
	if len(fields) == 0 {
		return domain.User{}, ErrNotFound
	}
	return domain.User{
		ID:          uid,
		Username:    fields["username"],
		DisplayName: fields["display_name"],
		AvatarURL:   fields["avatar_url"],
	}, nil
}

func (r *RedisStore) PutUser(ctx context.Context, u domain.User) error {
	return r.client.HSet(ctx, r.userKey(u.ID),
		"username", u.Username,
		"display_name", u.DisplayName,
		"avatar_url", u.AvatarURL,
	).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }
