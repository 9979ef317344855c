package chat

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport 只记录写入的帧；可配置写失败。
type fakeTransport struct {
	mu     sync.Mutex
	frames []any
	closed bool
	failAt int // >0：第 N 次写开始失败
	writes int
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (t *fakeTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes++
	if t.failAt > 0 && t.writes >= t.failAt {
		return fmt.Errorf("write failed")
	}
	t.frames = append(t.frames, v)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) RemoteAddr() net.Addr { return nil }

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) Frames() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]any, len(t.frames))
	copy(out, t.frames)
	return out
}

func info(id string) UserInfo { return UserInfo{UserID: id, Name: "name-" + id} }

func TestConnectReplacesDuplicate(t *testing.T) {
	m := NewConnManager()

	tab1 := newFakeTransport()
	tab2 := newFakeTransport()
	m.Connect(tab1, "c1", "alice", "general", info("alice"))
	m.Connect(tab2, "c2", "alice", "general", info("alice"))

	assert.True(t, tab1.Closed(), "stale transport must be closed on reconnect")
	assert.False(t, tab2.Closed())

	users := m.RoomUsers("general")
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].UserID)

	// 新连接收帧，旧连接不收
	require.NoError(t, m.SendToUser("alice", "general", "hello"))
	assert.Empty(t, tab1.Frames())
	assert.Equal(t, []any{"hello"}, tab2.Frames())
}

func TestBroadcastScopedToRoom(t *testing.T) {
	m := NewConnManager()

	a := newFakeTransport()
	b := newFakeTransport()
	other := newFakeTransport()
	m.Connect(a, "c1", "alice", "general", info("alice"))
	m.Connect(b, "c2", "bob", "general", info("bob"))
	m.Connect(other, "c3", "carol", "random", info("carol"))

	m.Broadcast("general", "msg", "")

	assert.Len(t, a.Frames(), 1)
	assert.Len(t, b.Frames(), 1)
	assert.Empty(t, other.Frames(), "broadcast must not cross rooms")
}

func TestBroadcastExcludesUserEverywhere(t *testing.T) {
	m := NewConnManager()

	// alice 同时在两个房间
	aGeneral := newFakeTransport()
	aRandom := newFakeTransport()
	b := newFakeTransport()
	m.Connect(aGeneral, "c1", "alice", "general", info("alice"))
	m.Connect(aRandom, "c2", "alice", "random", info("alice"))
	m.Connect(b, "c3", "bob", "general", info("bob"))

	m.Broadcast("general", "msg", "alice")

	assert.Empty(t, aGeneral.Frames())
	assert.Empty(t, aRandom.Frames())
	assert.Len(t, b.Frames(), 1)
}

func TestSnapshotAfterConnectsAndDisconnects(t *testing.T) {
	m := NewConnManager()

	const n = 6
	for i := 0; i < n; i++ {
		uid := fmt.Sprintf("user-%d", i)
		m.Connect(newFakeTransport(), fmt.Sprintf("c%d", i), uid, "general", info(uid))
	}
	for i := 0; i < 2; i++ {
		m.Disconnect(fmt.Sprintf("user-%d", i), "general")
	}

	assert.Len(t, m.RoomUsers("general"), n-2)
}

func TestDisconnectIsNoopWhenAbsent(t *testing.T) {
	m := NewConnManager()
	m.Connect(newFakeTransport(), "c1", "alice", "general", info("alice"))

	m.Disconnect("nobody", "general")
	m.Disconnect("alice", "random")

	assert.Len(t, m.RoomUsers("general"), 1)
}

func TestDisconnectKeepsOtherRooms(t *testing.T) {
	m := NewConnManager()
	m.Connect(newFakeTransport(), "c1", "alice", "general", info("alice"))
	m.Connect(newFakeTransport(), "c2", "alice", "random", info("alice"))

	m.Disconnect("alice", "general")

	assert.Empty(t, m.RoomUsers("general"))
	users := m.RoomUsers("random")
	require.Len(t, users, 1)
	// 其他房间还在线，快照不丢
	assert.Equal(t, "name-alice", users[0].Name)
}

func TestFailedWriteEvictsConnection(t *testing.T) {
	m := NewConnManager()
	bad := &fakeTransport{failAt: 1}
	m.Connect(bad, "c1", "alice", "general", info("alice"))

	require.Error(t, m.SendToUser("alice", "general", "hello"))

	assert.True(t, bad.Closed())
	assert.Empty(t, m.RoomUsers("general"))
	// 幂等：连接已经没了，再发不报错
	assert.NoError(t, m.SendToUser("alice", "general", "hello"))
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	m := NewConnManager()
	bad := &fakeTransport{failAt: 1}
	good := newFakeTransport()
	m.Connect(bad, "c1", "alice", "general", info("alice"))
	m.Connect(good, "c2", "bob", "general", info("bob"))

	m.Broadcast("general", "msg", "")

	assert.Len(t, good.Frames(), 1, "one failing unicast must not abort the rest")
	users := m.RoomUsers("general")
	require.Len(t, users, 1, "failed conn evicted")
	assert.Equal(t, "bob", users[0].UserID)
}

func TestNotifyUserReachesAllRooms(t *testing.T) {
	m := NewConnManager()
	aGeneral := newFakeTransport()
	aRandom := newFakeTransport()
	b := newFakeTransport()
	m.Connect(aGeneral, "c1", "alice", "general", info("alice"))
	m.Connect(aRandom, "c2", "alice", "random", info("alice"))
	m.Connect(b, "c3", "bob", "general", info("bob"))

	m.NotifyUser("alice", "ping")

	assert.Len(t, aGeneral.Frames(), 1)
	assert.Len(t, aRandom.Frames(), 1)
	assert.Empty(t, b.Frames())
}

func TestConnectAfterCloseRejected(t *testing.T) {
	m := NewConnManager()
	m.Close()

	late := newFakeTransport()
	c := m.Connect(late, "c1", "alice", "general", info("alice"))

	assert.Nil(t, c)
	assert.True(t, late.Closed(), "rejected transport must be closed")
	assert.Empty(t, m.RoomUsers("general"))
}

func TestCloseShutsEverything(t *testing.T) {
	m := NewConnManager()
	a := newFakeTransport()
	b := newFakeTransport()
	m.Connect(a, "c1", "alice", "general", info("alice"))
	m.Connect(b, "c2", "bob", "random", info("bob"))

	m.Close()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Empty(t, m.RoomUsers("general"))
}
