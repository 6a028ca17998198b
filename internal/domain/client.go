// Package domain contains entities without logic, just data shared by the
// store, the hub and the transport adapters.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const MaxClientIDLen = 64

var ErrRateLimited = errors.New("rate limited")

// ClientID is the opaque identity a client supplies at connect time.
// It is never verified.
type ClientID string

// NormalizeClientID trims the client supplied identity and caps it at
// MaxClientIDLen bytes, cutting on a rune boundary. An empty result means
// the caller has to fall back to a generated id.
func NormalizeClientID(raw string) ClientID {
	id := strings.TrimSpace(raw)
	if len(id) <= MaxClientIDLen {
		return ClientID(id)
	}
	cut := 0
	for i := range id {
		if i > MaxClientIDLen {
			break
		}
		cut = i
	}
	return ClientID(id[:cut])
}

// RateLimitError is returned when a client sends again before its cooldown
// elapsed. It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	ClientID  ClientID
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("client %s rate limited, retry in %s", e.ClientID, e.Remaining)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
