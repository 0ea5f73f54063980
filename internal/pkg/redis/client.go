// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

// Client 封装了 go-redis 的通用客户端，并管理按名称注册的 Lua 脚本。
// 单个地址时是普通客户端，多个地址时自动使用集群客户端。
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient addrs 格式为 "host1:port1,host2:port2"
func NewClient(addrs string) (*Client, error) {
	var list []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, a)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("redis: no address configured")
	}

	c := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        list,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "redis: ping %s", addrs)
	}
	zlog.Info().Strs("addrs", list).Msg("connected to redis")
	return NewFromUniversal(c), nil
}

// NewFromUniversal 包装一个已有的客户端
func NewFromUniversal(c goredis.UniversalClient) *Client {
	return &Client{client: c, scripts: make(map[string]*goredis.Script)}
}

// GetClient 返回底层客户端，用于脚本之外的普通命令
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 注册脚本。脚本在首次 RunScript 时通过 EVALSHA 加载。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.Errorf("redis: script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行已注册的脚本
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("redis: script %q not loaded", name)
	}
	res, err := script.Run(ctx, c.client, keys, args...).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, errors.Wrapf(err, "redis: run script %q", name)
	}
	return res, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
