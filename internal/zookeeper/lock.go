// internal/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// ErrNotAcquired 表示非阻塞加锁时已有其他持有者
var ErrNotAcquired = errors.New("zookeeper lock not acquired")

// DistributedLock 基于临时顺序节点实现的分布式锁
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /distributed_locks/stock-sweep
	lockNode string // 获取锁后自己创建的节点路径
}

// NewDistributedLock 创建一个锁实例，并确保锁路径存在
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if _, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, fmt.Errorf("failed to create lock path node %s: %w", p, err)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 创建顺序节点，若自己是最小节点则持有锁；否则删除节点并返回 ErrNotAcquired。
func (l *DistributedLock) TryLock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return fmt.Errorf("failed to get children nodes: %w", err)
	}

	myNode := strings.TrimPrefix(nodePath, l.path+"/")
	if lowest(children) != sequenceOf(myNode) {
		if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
			return fmt.Errorf("failed to delete losing node: %w", err)
		}
		return ErrNotAcquired
	}
	l.lockNode = nodePath
	return nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// protected 节点名形如 _c_<guid>-lock-0000000001，只能按序号部分比较
func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "lock-"); i >= 0 {
		return node[i+len("lock-"):]
	}
	return node
}

func lowest(children []string) string {
	seqs := make([]string, 0, len(children))
	for _, c := range children {
		seqs = append(seqs, sequenceOf(c))
	}
	sort.Strings(seqs)
	if len(seqs) == 0 {
		return ""
	}
	return seqs[0]
}
