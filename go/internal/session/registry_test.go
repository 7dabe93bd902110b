package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

func TestRegistry_BindAndLookup(t *testing.T) {
	r := NewRegistry()

	_, replaced := r.Bind(Session{ConnectionID: "c1", RoomCode: "ROOM-1", UserName: "alice", Role: models.RoleVoter})
	assert.False(t, replaced)

	s, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "ROOM-1", s.RoomCode)
	assert.Equal(t, "alice", s.UserName)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RebindMovesConnectionBetweenRooms(t *testing.T) {
	r := NewRegistry()
	r.Bind(Session{ConnectionID: "c1", RoomCode: "A"})
	r.Bind(Session{ConnectionID: "c2", RoomCode: "A"})

	prev, replaced := r.Bind(Session{ConnectionID: "c1", RoomCode: "B"})
	require.True(t, replaced)
	assert.Equal(t, "A", prev.RoomCode)

	assert.Equal(t, []string{"c2"}, r.Connections("A"))
	assert.Equal(t, []string{"c1"}, r.Connections("B"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Unbind(t *testing.T) {
	r := NewRegistry()
	r.Bind(Session{ConnectionID: "c1", RoomCode: "A"})

	s, ok := r.Unbind("c1")
	require.True(t, ok)
	assert.Equal(t, "A", s.RoomCode)

	_, ok = r.Lookup("c1")
	assert.False(t, ok)
	assert.Empty(t, r.Connections("A"))

	_, ok = r.Unbind("c1")
	assert.False(t, ok, "unbinding twice is a no-op")
}

func TestRegistry_ConnectionsAreSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c3", "c1", "c2"} {
		r.Bind(Session{ConnectionID: id, RoomCode: "A"})
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, r.Connections("A"))
}
