// Package patch converts coalesced change records into the flat on-wire
// patch shape and applies received patches onto plain state trees.
package patch

import (
	"strings"

	"github.com/ltvmoon/gamesync/internal/protocol"
	"github.com/ltvmoon/gamesync/internal/state"
)

// ChangeSet accumulates leaf writes between flushes. Writes to the same
// path coalesce last-write-wins, and a re-recorded path moves to the end
// of the record order: replaying the records must reproduce the host's
// write sequence, or a leaf written after its ancestor was replaced would
// land before the replacement on replicas. Replaced marks that the root
// was assigned wholesale, which forces the next broadcast to carry full
// state no matter what else is pending.
type ChangeSet struct {
	order    []string
	values   map[string]any
	replaced bool
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{values: map[string]any{}}
}

// Record coalesces one leaf write, keeping the path at its latest write
// position.
func (c *ChangeSet) Record(path []string, v any) {
	key := strings.Join(path, ".")
	if _, seen := c.values[key]; seen {
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.order = append(c.order, key)
	c.values[key] = v
}

// MarkReplaced flags a full root replacement.
func (c *ChangeSet) MarkReplaced() { c.replaced = true }

func (c *ChangeSet) Replaced() bool { return c.replaced }

func (c *ChangeSet) Empty() bool { return len(c.order) == 0 && !c.replaced }

func (c *ChangeSet) Len() int { return len(c.order) }

// Patch encodes the coalesced records in record order. Values are
// deep-copied so the patch is plain detached data: recorded values may
// alias live subtrees that keep mutating after the flush.
func (c *ChangeSet) Patch() protocol.Patch {
	p := make(protocol.Patch, 0, len(c.order))
	for _, key := range c.order {
		v := c.values[key]
		if v != protocol.Deleted {
			v = state.Clone(v)
		}
		p = append(p, protocol.PatchEntry{Path: key, Value: v})
	}
	return p
}

// Reset clears the set for the next batch.
func (c *ChangeSet) Reset() {
	c.order = c.order[:0]
	c.values = map[string]any{}
	c.replaced = false
}
