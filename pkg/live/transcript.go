package live

import (
	"strings"
	"sync"
)

// Role identifies which side of the conversation a transcript belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// transcripts accumulates streamed transcript fragments per role until
// the turn is finalized. The two roles finalize independently.
type transcripts struct {
	mu      sync.Mutex
	pending map[Role]*strings.Builder
}

func newTranscripts() *transcripts {
	return &transcripts{
		pending: map[Role]*strings.Builder{
			RoleUser:  {},
			RoleModel: {},
		},
	}
}

// append adds a fragment to the role's pending transcript.
func (t *transcripts) append(role Role, fragment string) {
	t.mu.Lock()
	t.pending[role].WriteString(fragment)
	t.mu.Unlock()
}

// finalize returns the accumulated text for the role and resets it.
// Returns ok=false when nothing was accumulated.
func (t *transcripts) finalize(role Role) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.pending[role]
	if b.Len() == 0 {
		return "", false
	}
	text := b.String()
	b.Reset()
	return text, true
}

// reset discards all pending fragments.
func (t *transcripts) reset() {
	t.mu.Lock()
	for _, b := range t.pending {
		b.Reset()
	}
	t.mu.Unlock()
}
