package domain

import "time"

const (
	DefaultMessageCooldown = 3 * time.Second
	MaxMessageLen          = 50

	// Falling messages spawn in this horizontal band so they stay on screen.
	MessageMinX = 10.0
	MessageMaxX = 90.0
)

// TransientMessage is broadcast once and never stored.
type TransientMessage struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	X         float64 `json:"x"`
	Timestamp int64   `json:"timestamp"`
}

// TruncateText cuts s to at most MaxMessageLen characters.
func TruncateText(s string) string {
	n := 0
	for i := range s {
		if n == MaxMessageLen {
			return s[:i]
		}
		n++
	}
	return s
}
