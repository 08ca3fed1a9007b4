// Package snowflake generates sortable, time-embedded 64-bit job IDs.
package snowflake

import (
	"fmt"
	"sync"
	"time"
)

const (
	nodeBits     = 10
	sequenceBits = 12

	maxNode     = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

// Epoch is the reference point all generated IDs are offset from.
// 2024-01-01T00:00:00Z, matching no particular external system.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Generator produces monotonically increasing, sortable IDs for one node.
// Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	node     int64
	lastTime int64
	sequence int64
}

// NewGenerator builds a Generator for the given node id (0..1023).
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("snowflake: node id %d out of range [0,%d]", node, maxNode)
	}
	return &Generator{node: node}, nil
}

// Next returns the next unique, time-ordered ID.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC().UnixMilli() - Epoch

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTime {
				now = time.Now().UTC().UnixMilli() - Epoch
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	return (now << timeShift) | (g.node << nodeShift) | g.sequence
}

// Time extracts the embedded creation time from an ID.
func Time(id int64) time.Time {
	ms := (id >> timeShift) + Epoch
	return time.UnixMilli(ms).UTC()
}
