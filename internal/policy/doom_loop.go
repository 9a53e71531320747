package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DoomLoopThreshold is the number of identical consecutive calls that
// triggers forced approval.
const DoomLoopThreshold = 3

// historyLimit bounds the ring buffer kept per session.
const historyLimit = 10

// DoomLoopDetector flags a session that keeps proposing the same tool call
// with the same arguments, so the loop can force an approval prompt instead
// of burning turns on a call that is clearly not making progress.
type DoomLoopDetector struct {
	mu      sync.Mutex
	history map[string][]string
}

// NewDoomLoopDetector creates an empty detector.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{history: make(map[string][]string)}
}

// Check records toolName+input for sessionID and reports whether the last
// DoomLoopThreshold calls (including this one) are identical.
func (d *DoomLoopDetector) Check(sessionID, toolName string, input any) bool {
	hash := hashCall(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[sessionID], hash)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	d.history[sessionID] = history

	if len(history) < DoomLoopThreshold {
		return false
	}
	tail := history[len(history)-DoomLoopThreshold:]
	for _, h := range tail {
		if h != hash {
			return false
		}
	}
	return true
}

// Reset clears the recorded history for a session, e.g. once a different
// call breaks the repetition.
func (d *DoomLoopDetector) Reset(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashCall(toolName string, input any) string {
	data, _ := json.Marshal(struct {
		Tool  string `json:"tool"`
		Input any    `json:"input"`
	}{Tool: toolName, Input: input})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
