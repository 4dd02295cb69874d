package state

import (
	"strconv"
	"strings"
	"sync"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// ChangeFunc receives one leaf-level write: the path to the written key and
// the new value, or protocol.Deleted for a removal.
type ChangeFunc func(path []string, value any)

// Tracker is the observed-handle layer over a game state tree. Go has no
// transparent write interception, so all mutation goes through Handle
// methods and the tracker records each write before performing it. The
// underlying tree is only reachable through the tracker, which turns the
// "no untracked writes" rule into a compile-time property for game code.
type Tracker struct {
	mu        sync.Mutex
	root      map[string]any
	onChange  ChangeFunc
	onReplace func(root map[string]any)
	handles   map[string]*Handle
}

// NewTracker takes ownership of root. onChange may be nil.
func NewTracker(root map[string]any, onChange ChangeFunc) *Tracker {
	if root == nil {
		root = map[string]any{}
	}
	return &Tracker{
		root:     root,
		onChange: onChange,
		handles:  map[string]*Handle{},
	}
}

// OnReplace registers the full-replace callback fired by Replace.
func (t *Tracker) OnReplace(fn func(root map[string]any)) { t.onReplace = fn }

// Root returns the handle over the tree root.
func (t *Tracker) Root() *Handle { return t.handleAt(nil) }

// Underlying exposes the raw tree for read-only walks. Callers must not
// write through it; bulk writes go through Mutate.
func (t *Tracker) Underlying() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Mutate runs fn against the root under the tracker's lock. It is the
// entry point for bulk writes that bypass the recording handle path, such
// as applying a received patch while snapshot readers are active.
func (t *Tracker) Mutate(fn func(root map[string]any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.root)
}

// Snapshot deep-copies the tree under the tracker lock, giving a stable
// view even while another goroutine keeps mutating.
func (t *Tracker) Snapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return CloneMap(t.root)
}

// Replace swaps in an entirely new root value. This is the tracked variant
// used by host game logic; it forces the next broadcast to be a full state.
func (t *Tracker) Replace(root map[string]any) {
	if root == nil {
		root = map[string]any{}
	}
	t.mu.Lock()
	t.root = root
	t.mu.Unlock()
	if t.onReplace != nil {
		t.onReplace(root)
	}
}

// Install swaps in a new root without firing any callback. Guests use it
// when a full-state message arrives; notification is the coordinator's job.
// Existing handles stay valid: they resolve by path against the new tree.
func (t *Tracker) Install(root map[string]any) {
	if root == nil {
		root = map[string]any{}
	}
	t.mu.Lock()
	t.root = root
	t.mu.Unlock()
}

func (t *Tracker) handleAt(path []string) *Handle {
	key := strings.Join(path, ".")
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[key]; ok {
		return h
	}
	h := &Handle{t: t, path: path}
	t.handles[key] = h
	return h
}

func (t *Tracker) record(path []string, v any) {
	if t.onChange != nil {
		t.onChange(path, v)
	}
}

// resolve walks the tree to the node at path. Returns nil when any segment
// is missing.
func (t *Tracker) resolve(path []string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(path)
}

func (t *Tracker) resolveLocked(path []string) any {
	var cur any = t.root
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			cur = c[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			cur = c[i]
		default:
			return nil
		}
	}
	return cur
}

// write performs the raw write of v at path without recording, vivifying
// missing intermediate objects. The final segment addresses a map key or a
// slice index in its parent container.
func (t *Tracker) write(path []string, v any) {
	if len(path) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = writePath(t.root, path, v).(map[string]any)
}

func (t *Tracker) deleteKey(path []string) {
	if len(path) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.resolveLocked(path[:len(path)-1])
	if m, ok := parent.(map[string]any); ok {
		delete(m, path[len(path)-1])
	}
}

// writePath sets path to v inside container, vivifying intermediates, and
// returns the (possibly reallocated) container.
func writePath(container any, path []string, v any) any {
	seg := path[0]
	if sl, ok := container.([]any); ok {
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			return sl
		}
		for i >= len(sl) {
			sl = append(sl, nil)
		}
		if len(path) == 1 {
			sl[i] = v
		} else {
			child := sl[i]
			if !isContainer(child) {
				child = map[string]any{}
			}
			sl[i] = writePath(child, path[1:], v)
		}
		return sl
	}
	m, ok := container.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	if len(path) == 1 {
		m[seg] = v
		return m
	}
	child := m[seg]
	if !isContainer(child) {
		child = map[string]any{}
	}
	m[seg] = writePath(child, path[1:], v)
	return m
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// Handle addresses one node in the tracked tree by path. Handles are
// cached per path, so repeated navigation to the same node returns the
// identical handle and long-lived references keep observing the tree even
// across a full-state install.
type Handle struct {
	t    *Tracker
	path []string
}

// Child returns the handle for a nested object field.
func (h *Handle) Child(key string) *Handle {
	return h.t.handleAt(append(append([]string{}, h.path...), key))
}

// Index returns the handle for an array element.
func (h *Handle) Index(i int) *Handle {
	return h.t.handleAt(append(append([]string{}, h.path...), strconv.Itoa(i)))
}

// Value returns the plain value at this handle, or nil if absent.
func (h *Handle) Value() any { return h.t.resolve(h.path) }

// Get reads a field of the object at this handle.
func (h *Handle) Get(key string) any {
	return h.t.resolve(append(append([]string{}, h.path...), key))
}

// GetIndex reads an array element at this handle.
func (h *Handle) GetIndex(i int) any {
	return h.t.resolve(append(append([]string{}, h.path...), strconv.Itoa(i)))
}

// Len returns the length of the array at this handle, 0 otherwise.
func (h *Handle) Len() int {
	if sl, ok := h.Value().([]any); ok {
		return len(sl)
	}
	return 0
}

// Set records then writes one field of the object at this handle.
func (h *Handle) Set(key string, v any) {
	path := append(append([]string{}, h.path...), key)
	h.t.record(path, v)
	h.t.write(path, v)
}

// SetIndex records then writes one element of the array at this handle,
// nil-extending the array when i is past the end.
func (h *Handle) SetIndex(i int, v any) {
	if i < 0 {
		return
	}
	path := append(append([]string{}, h.path...), strconv.Itoa(i))
	h.t.record(path, v)
	h.t.write(path, v)
}

// Append records then appends one element to the array at this handle.
func (h *Handle) Append(v any) {
	h.SetIndex(h.Len(), v)
}

// Truncate records a length change then shortens (or nil-extends) the
// array at this handle.
func (h *Handle) Truncate(n int) {
	if n < 0 {
		return
	}
	path := append(append([]string{}, h.path...), "length")
	h.t.record(path, n)

	sl, ok := h.Value().([]any)
	if !ok {
		return
	}
	for len(sl) < n {
		sl = append(sl, nil)
	}
	h.t.write(h.path, sl[:n])
}

// Delete records the deletion sentinel then removes a field. Deleting an
// absent key still records, so replicas converge on the same no-op.
func (h *Handle) Delete(key string) {
	path := append(append([]string{}, h.path...), key)
	h.t.record(path, protocol.Deleted)
	h.t.deleteKey(path)
}
