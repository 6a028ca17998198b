package core

import (
	"time"

	"github.com/dkeye/Tree/internal/domain"
)

// SessionID identifies one connection. A client reconnecting gets a new one.
type SessionID string

// ClientSession binds a connection to the identity it announced.
type ClientSession struct {
	ID          SessionID
	ClientID    domain.ClientID
	Conn        SignalConnection
	ConnectedAt time.Time
}

func NewClientSession(id SessionID, clientID domain.ClientID, conn SignalConnection) *ClientSession {
	return &ClientSession{
		ID:          id,
		ClientID:    clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
}
