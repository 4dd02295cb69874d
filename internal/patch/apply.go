package patch

import (
	"log"
	"strconv"
	"strings"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// NotifyFunc observes each applied entry; used by guests to feed their
// local render subscriptions without re-entering the tracker's write path.
type NotifyFunc func(path []string, value any)

// Apply writes a patch onto root, record by record in wire order. Missing
// intermediate segments are vivified as empty objects so a sender never
// has to lay out the whole ancestor chain. An intermediate that is
// currently a primitive is overwritten with an empty object; that case is
// logged because it usually means a stale type at the path. Apply never
// fails: malformed entries are skipped. notify may be nil.
func Apply(root map[string]any, p protocol.Patch, notify NotifyFunc) {
	for _, e := range p {
		segs := strings.Split(e.Path, ".")
		applyOne(root, segs, e.Value)
		if notify != nil {
			notify(segs, e.Value)
		}
	}
}

func applyOne(root map[string]any, segs []string, v any) {
	if len(segs) == 0 || segs[0] == "" {
		return
	}
	setIn(root, segs, v)
}

// setIn descends into container and performs the leaf set/delete, returning
// the possibly reallocated container so slice growth propagates upward.
func setIn(container any, segs []string, v any) any {
	seg := segs[0]

	if sl, ok := container.([]any); ok {
		if seg == "length" && len(segs) == 1 {
			return resize(sl, v)
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			log.Printf("patch: bad array segment %q, entry skipped", seg)
			return sl
		}
		for i >= len(sl) {
			sl = append(sl, nil)
		}
		if len(segs) == 1 {
			if v == protocol.Deleted {
				sl[i] = nil
			} else {
				sl[i] = v
			}
			return sl
		}
		child := sl[i]
		if !isContainer(child) {
			if child != nil {
				log.Printf("patch: overwriting primitive at array index %d with object", i)
			}
			child = map[string]any{}
		}
		sl[i] = setIn(child, segs[1:], v)
		return sl
	}

	m, ok := container.(map[string]any)
	if !ok {
		return container
	}
	if len(segs) == 1 {
		if v == protocol.Deleted {
			delete(m, seg)
		} else {
			m[seg] = v
		}
		return m
	}
	child := m[seg]
	if !isContainer(child) {
		if child != nil {
			log.Printf("patch: overwriting primitive at %q with object", seg)
		}
		child = map[string]any{}
	}
	m[seg] = setIn(child, segs[1:], v)
	return m
}

func resize(sl []any, v any) []any {
	n := asInt(v)
	if n < 0 {
		return sl
	}
	for len(sl) < n {
		sl = append(sl, nil)
	}
	return sl[:n]
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return -1
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
