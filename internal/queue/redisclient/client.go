package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// wakeKey is the list workers block on; the API pushes a job id after
// every enqueue so pickup latency is not bound to the poll interval.
const wakeKey = "airq:jobs:wake"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// this ping function checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// NotifyJob nudges workers that a job is waiting. Best effort: the DB
// poll loop still picks the job up if Redis is down.
func (c *Client) NotifyJob(ctx context.Context, jobID string) error {
	return c.redisdb.LPush(ctx, wakeKey, jobID).Err()
}

// WaitJob blocks up to timeout for a wake-up nudge. Returns "" when the
// timeout passes without one.
func (c *Client) WaitJob(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := c.redisdb.BRPop(ctx, timeout, wakeKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}

	// BRPOP returns [key, value]
	if len(res) != 2 {
		return "", nil
	}

	return res[1], nil
}

// GetJSON / SetJSON back the cross-process grid stats cache. A nil
// error with nil bytes means a miss.

func (c *Client) GetJSON(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.redisdb.Get(ctx, key).Bytes()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	return raw, nil
}

func (c *Client) SetJSON(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	return c.redisdb.Set(ctx, key, raw, ttl).Err()
}
