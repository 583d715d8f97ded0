package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/avdeyev/papertrader/config"
	"github.com/redis/go-redis/v9"
)

type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (s *RedisSession) Set(ctx context.Context, token string, userID int64) error {
	return s.redis.Set(ctx, sessionKey(token), userID, s.cfg.SessionExpiration).Err()
}

// Get resolves a session token to a user id and prolongs the session.
func (s *RedisSession) Get(ctx context.Context, token string) (int64, error) {
	res, err := s.redis.GetEx(ctx, sessionKey(token), s.cfg.SessionExpiration).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(res, 10, 64)
}

func (s *RedisSession) Delete(ctx context.Context, token string) error {
	return s.redis.Del(ctx, sessionKey(token)).Err()
}
