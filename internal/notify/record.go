package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one entry in the capped, most-recent-first notification list.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
	DedupKey  string    `json:"dedupKey,omitempty"`
}

// DisplayMessage renders the message with the running group count, e.g.
// "Sonny went online (3)".
func (r Record) DisplayMessage() string {
	if r.Count > 1 {
		return fmt.Sprintf("%s (%d)", r.Message, r.Count)
	}
	return r.Message
}
