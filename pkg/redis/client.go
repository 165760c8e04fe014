package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the dial and the first ping
const connectTimeout = 5 * time.Second

// Config locates the redis instance holding the run lock
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr(),
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: connectTimeout,
	}
}

// Client is the redis connection used for run coordination
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient connects and pings. The connection is closed again when the ping fails.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	c := &Client{rdb: redis.NewClient(cfg.options()), logger: logger}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr(), err)
	}

	logger.WithContext(ctx).WithField("db", cfg.DB).Infof("Connected to redis at %s", cfg.Addr())
	return c, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether redis answers. Used by the health checker.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
