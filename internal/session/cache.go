// Package session derives stable session identifiers for upstream prompt
// caching. Identical conversations map to the same generated id so the
// upstream cache keys line up across requests.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mizuikk/codex-openai-wrapper/internal/json"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

// DefaultCapacity bounds the number of distinct fingerprints kept.
const DefaultCapacity = 10000

// Cache maps conversation fingerprints to generated session ids. Eviction is
// strict FIFO on insertion order. Safe for concurrent use; a race on the same
// new key may mint two ids and the later insert wins, which is acceptable for
// content-derived keys.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]string
	order    []string
}

// NewCache returns a cache bounded to capacity entries; capacity <= 0 uses
// DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
		order:    make([]string, 0, capacity),
	}
}

// EnsureSessionID returns clientID verbatim when non-empty (never cached).
// Otherwise it canonicalizes the instructions and first user message into a
// deterministic fingerprint and returns the id previously minted for that
// fingerprint, minting a fresh one on first sight.
func (c *Cache) EnsureSessionID(instructions string, items []upstream.InputItem, clientID string) string {
	if id := strings.TrimSpace(clientID); id != "" {
		return id
	}

	key := fingerprint(instructions, items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.entries[key]; ok {
		return id
	}
	id := uuid.NewString()
	c.entries[key] = id
	c.order = append(c.order, key)
	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return id
}

// Len reports the number of cached fingerprints.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type fingerprintPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type fingerprintDoc struct {
	Instructions     string            `json:"instructions"`
	FirstUserMessage []fingerprintPart `json:"first_user_message"`
}

// fingerprint builds the canonical JSON key. Only input_text and input_image
// parts of the first user message participate; image payloads are reduced to
// their URL reference.
func fingerprint(instructions string, items []upstream.InputItem) string {
	doc := fingerprintDoc{Instructions: instructions}
	for _, item := range items {
		if item.Type != "message" || item.Role != "user" {
			continue
		}
		for _, part := range item.Content {
			switch part.Type {
			case "input_text":
				doc.FirstUserMessage = append(doc.FirstUserMessage, fingerprintPart{Type: part.Type, Text: part.Text})
			case "input_image":
				doc.FirstUserMessage = append(doc.FirstUserMessage, fingerprintPart{Type: part.Type, URL: part.ImageURL})
			}
		}
		break
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return instructions
	}
	return string(raw)
}
