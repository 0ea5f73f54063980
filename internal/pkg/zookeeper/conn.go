// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

// Conn 包装 zk.Conn，供分布式锁等组件共享
type Conn struct {
	*zk.Conn
}

// zkLogger 把 go-zookeeper 的内部日志转到 zerolog
type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	zlog.Debug().Str("component", "zookeeper").Msgf(format, args...)
}

// Connect servers 格式为 "host1:2181,host2:2181"
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("zookeeper: no server configured")
	}
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}
	c, _, err := zk.Connect(list, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, errors.Wrapf(err, "zookeeper: connect %s", servers)
	}
	zlog.Info().Strs("servers", list).Msg("connected to zookeeper")
	return &Conn{Conn: c}, nil
}

// ensurePath 逐级创建持久节点，已存在时忽略
func (c *Conn) ensurePath(path string) error {
	cur := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		cur += "/" + part
		_, err := c.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "zookeeper: create %s", cur)
		}
	}
	return nil
}
