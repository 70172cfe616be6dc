package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/packet"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zap.NewNop())
}

// drainOpcodes decodes everything queued on a session.
func drainOpcodes(t *testing.T, s *Session) []packet.OpCode {
	t.Helper()
	pkts, err := packet.Split(s.Drain())
	require.NoError(t, err)
	out := make([]packet.OpCode, 0, len(pkts))
	for _, p := range pkts {
		out = append(out, p.ID)
	}
	return out
}

func TestRegistry_CreateAndLookups(t *testing.T) {
	r := newTestRegistry(t)
	s, err := r.Create(1001, "Cookiezi", 1, "b20240101")
	require.NoError(t, err)
	require.NotEmpty(t, s.Token)

	byTok, err := r.ByToken(s.Token)
	require.NoError(t, err)
	assert.Same(t, s, byTok)
	assert.Same(t, s, r.ByID(1001))
	assert.Same(t, s, r.ByName("Cookiezi"))
	assert.Same(t, s, r.ByName("cookiezi"), "name lookup is case-insensitive")
}

func TestRegistry_NameTakenDistinctFromBadToken(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create(1001, "dupe", 1, "b1")
	require.NoError(t, err)

	_, err = r.Create(1002, "dupe", 1, "b1")
	assert.ErrorIs(t, err, ErrNameTaken)

	// The same account id under a renamed display name is still the same
	// account online.
	_, err = r.Create(1001, "renamed", 1, "b1")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Nil(t, r.ByName("renamed"), "rejected create leaves no entry")

	_, err = r.ByToken("nonsense")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	s, err := r.Create(1001, "gone", 1, "b1")
	require.NoError(t, err)

	assert.True(t, r.Remove(s.ID))
	assert.False(t, r.Remove(s.ID))
	assert.Equal(t, 0, r.Len())
	_, err = r.ByToken(s.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRegistry_RemoveRunsHooksInOrderAndAnnounces(t *testing.T) {
	r := newTestRegistry(t)
	var order []string
	r.OnRemove(func(*Session) { order = append(order, "match") })
	r.OnRemove(func(*Session) { order = append(order, "channel") })

	leaving, err := r.Create(1001, "leaving", 1, "b1")
	require.NoError(t, err)
	staying, err := r.Create(1002, "staying", 1, "b1")
	require.NoError(t, err)

	require.True(t, r.Remove(leaving.ID))
	assert.Equal(t, []string{"match", "channel"}, order)

	ops := drainOpcodes(t, staying)
	assert.Contains(t, ops, packet.ServerUserLogout)
}

func TestRegistry_BroadcastHonorsPredicate(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Create(1, "a", 1, "b1")
	b, _ := r.Create(2, "b", 1, "b1")

	r.Broadcast(func(s *Session) bool { return s.ID == 1 }, packet.Pong())
	assert.Contains(t, drainOpcodes(t, a), packet.ServerPong)
	assert.True(t, b.QueueEmpty())
}

func TestSession_QueueOrderAndAtomicDrain(t *testing.T) {
	s := New(1, "q", "tok", 1, "b1")
	s.Enqueue(packet.UserID(1))
	s.Enqueue(packet.Notification("one"), packet.Pong())

	ops := drainOpcodes(t, s)
	assert.Equal(t, []packet.OpCode{packet.ServerUserID, packet.ServerNotification, packet.ServerPong}, ops)
	assert.Nil(t, s.Drain(), "second drain is empty")
}

func TestSession_EnqueueAfterLogoutDropped(t *testing.T) {
	s := New(1, "q", "tok", 1, "b1")
	s.SetStatus(StatusLoggedOut)
	s.Enqueue(packet.Pong())
	assert.True(t, s.QueueEmpty())
}
