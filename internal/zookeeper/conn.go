// internal/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 是对 zk.Conn 的轻量包装
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群，servers 为逗号分隔的地址
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(strings.Split(servers, ","), sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper %s: %w", servers, err)
	}
	return &Conn{Conn: conn}, nil
}
