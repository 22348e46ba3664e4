package safety

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// TokenTTL is how long a confirmation token stays valid.
const TokenTTL = 5 * time.Minute

type pendingConfirmation struct {
	tool        string
	device      string
	description string
}

// ConfirmationTracker issues single-use, time-limited tokens that bind a
// tool to one device. A token requested for sdb cannot confirm a spindown
// of sdc.
type ConfirmationTracker struct {
	destructive map[string]struct{}

	// mu makes the get-then-delete in Confirm atomic.
	mu     sync.Mutex
	tokens *cache.Cache
}

// NewConfirmationTracker returns a tracker for the given destructive tools.
// A nil or empty slice means no tool requires confirmation.
func NewConfirmationTracker(destructiveTools []string) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		destructive: make(map[string]struct{}, len(destructiveTools)),
		tokens:      cache.New(TokenTTL, time.Minute),
	}
	for _, tool := range destructiveTools {
		ct.destructive[tool] = struct{}{}
	}
	return ct
}

// NeedsConfirmation reports whether tool is in the destructive set.
func (ct *ConfirmationTracker) NeedsConfirmation(tool string) bool {
	_, ok := ct.destructive[tool]
	return ok
}

// RequestConfirmation stores a new token for tool on device and returns it.
func (ct *ConfirmationTracker) RequestConfirmation(tool, device, description string) string {
	token := uuid.NewString()
	ct.tokens.Set(token, pendingConfirmation{
		tool:        tool,
		device:      device,
		description: description,
	}, cache.DefaultExpiration)
	return token
}

// Confirm consumes token. It returns true only if the token exists, has not
// expired and was issued for the same tool and device. A presented token is
// always consumed, even on mismatch.
func (ct *ConfirmationTracker) Confirm(token, tool, device string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	v, ok := ct.tokens.Get(token)
	if !ok {
		return false
	}
	ct.tokens.Delete(token)

	pending, ok := v.(pendingConfirmation)
	return ok && pending.tool == tool && pending.device == device
}

// Pending returns the number of unexpired tokens.
func (ct *ConfirmationTracker) Pending() int {
	return ct.tokens.ItemCount()
}
