package lobby

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAndHost(t *testing.T) {
	d := NewDirectory()
	id := uuid.New()

	d.Join(id, session.Player{ID: "a", Username: "alice"})
	d.Join(id, session.Player{ID: "b", Username: "bob"})
	d.Join(id, session.Player{ID: "a", Username: "alice2"})

	host, err := d.Host(id)
	require.NoError(t, err)
	assert.Equal(t, "a", host)

	roster, err := d.Roster(id)
	require.NoError(t, err)
	assert.Equal(t, []session.Player{{ID: "a", Username: "alice2"}, {ID: "b", Username: "bob"}}, roster)
	assert.True(t, d.IsMember(id, "b"))
	assert.False(t, d.IsMember(id, "c"))
}

func TestLeaveMovesHost(t *testing.T) {
	d := NewDirectory()
	id := uuid.New()
	d.Join(id, session.Player{ID: "a"})
	d.Join(id, session.Player{ID: "b"})

	d.Leave(id, "a")
	host, err := d.Host(id)
	require.NoError(t, err)
	assert.Equal(t, "b", host)

	d.Leave(id, "b")
	_, err = d.Roster(id)
	assert.ErrorIs(t, err, ErrNoSuchLobby)
}

func TestRosterIsACopy(t *testing.T) {
	d := NewDirectory()
	id := uuid.New()
	d.Join(id, session.Player{ID: "a"})

	roster, err := d.Roster(id)
	require.NoError(t, err)
	roster[0].ID = "mutated"

	assert.True(t, d.IsMember(id, "a"))
}
