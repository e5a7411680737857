package events

import "github.com/google/uuid"

// Broadcaster is the outbound side of the engine. Implementations must not
// block the caller and must deliver a session's events in the order they were
// published.
type Broadcaster interface {
	// Publish delivers e to every subscriber of the session topic.
	Publish(sessionID uuid.UUID, e Event)
	// PublishToPlayer delivers e to one player only.
	PublishToPlayer(sessionID uuid.UUID, playerID string, e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(uuid.UUID, Event)                 {}
func (Discard) PublishToPlayer(uuid.UUID, string, Event) {}
