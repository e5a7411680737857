// Package lobby keeps lobby membership in memory. The first player to join a
// lobby hosts it until they leave.
package lobby

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/session"
)

var ErrNoSuchLobby = errors.New("lobby not found")

type lobby struct {
	host    string
	members []session.Player
}

// Directory manages lobby rosters.
type Directory struct {
	lobbies map[uuid.UUID]*lobby
	mu      sync.RWMutex
}

func NewDirectory() *Directory {
	return &Directory{
		lobbies: make(map[uuid.UUID]*lobby),
	}
}

// Join adds a player to a lobby, creating it on first join. Joining twice
// updates the username.
func (d *Directory) Join(lobbyID uuid.UUID, p session.Player) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lobbies[lobbyID]
	if !ok {
		l = &lobby{host: p.ID}
		d.lobbies[lobbyID] = l
	}
	for i, m := range l.members {
		if m.ID == p.ID {
			l.members[i] = p
			return
		}
	}
	l.members = append(l.members, p)
}

// Leave removes a player. The next member in join order becomes host, and an
// empty lobby is deleted.
func (d *Directory) Leave(lobbyID uuid.UUID, playerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lobbies[lobbyID]
	if !ok {
		return
	}
	for i, m := range l.members {
		if m.ID == playerID {
			l.members = append(l.members[:i], l.members[i+1:]...)
			break
		}
	}
	if len(l.members) == 0 {
		delete(d.lobbies, lobbyID)
		return
	}
	if l.host == playerID {
		l.host = l.members[0].ID
	}
}

// Roster returns a copy of the lobby's members in join order.
func (d *Directory) Roster(lobbyID uuid.UUID) ([]session.Player, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	l, ok := d.lobbies[lobbyID]
	if !ok {
		return nil, ErrNoSuchLobby
	}
	return append([]session.Player(nil), l.members...), nil
}

// Host returns the id of the lobby host.
func (d *Directory) Host(lobbyID uuid.UUID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	l, ok := d.lobbies[lobbyID]
	if !ok {
		return "", ErrNoSuchLobby
	}
	return l.host, nil
}

// IsMember checks if a player is in a lobby
func (d *Directory) IsMember(lobbyID uuid.UUID, playerID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	l, ok := d.lobbies[lobbyID]
	if !ok {
		return false
	}
	for _, m := range l.members {
		if m.ID == playerID {
			return true
		}
	}
	return false
}
