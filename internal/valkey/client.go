// Package valkey wraps the valkey-go client with key prefixing and a
// connect-time ping.
package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const DefaultConnectTimeout = 5 * time.Second

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings. The caller owns Close.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}
	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("valkey: connect %s: %w", cfg.Address, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("valkey: ping %s: %w", cfg.Address, err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Client{inner: inner, keyPrefix: prefix}, nil
}

func (c *Client) Inner() valkeylib.Client { return c.inner }

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts with ":" under the configured prefix.
func (c *Client) Key(parts ...string) string {
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsNil reports a NIL reply (missing key).
func IsNil(err error) bool { return valkeylib.IsValkeyNil(err) }
