// Package memory implements dotted-path access over JSON-like values
// (map[string]any, []any and scalars), the representation used for every
// memory scope in the dialog runtime.
//
// Paths are dot separated and may carry collection indexes:
//
//	dialog.foreach.page[0]
//	user.addresses[1].city
//	turn.recognized.entities['due date']
package memory

import (
	"fmt"
	"strconv"
	"strings"
)

type segment struct {
	key     string
	index   int
	isIndex bool
}

func (s segment) String() string {
	if s.isIndex {
		return fmt.Sprintf("[%d]", s.index)
	}
	return s.key
}

// Split returns the first path segment and the remainder of path.
// "dialog.foreach.page[0]" splits into "dialog" and "foreach.page[0]".
func Split(path string) (string, string) {
	for i, r := range path {
		switch r {
		case '.':
			return path[:i], path[i+1:]
		case '[':
			return path[:i], path[i:]
		}
	}
	return path, ""
}

func parsePath(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty memory path")
	}

	var segs []segment
	var key strings.Builder
	flush := func() {
		if key.Len() > 0 {
			segs = append(segs, segment{key: key.String()})
			key.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated index", path)
			}
			inner := strings.TrimSpace(path[i+1 : i+end])
			i += end
			if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0] {
				segs = append(segs, segment{key: inner[1 : len(inner)-1]})
				continue
			}
			n, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("path %q: bad index %q", path, inner)
			}
			segs = append(segs, segment{index: n, isIndex: true})
		default:
			key.WriteByte(c)
		}
	}
	flush()

	if len(segs) == 0 {
		return nil, fmt.Errorf("path %q has no segments", path)
	}
	return segs, nil
}

// Get resolves path against root. The boolean reports whether a value was
// found; a nil value stored at path is reported as found.
func Get(root any, path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	cur := root
	for _, s := range segs {
		next, ok := step(cur, s)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, s segment) (any, bool) {
	if s.isIndex {
		switch c := cur.(type) {
		case []any:
			if s.index < 0 || s.index >= len(c) {
				return nil, false
			}
			return c[s.index], true
		case []string:
			if s.index < 0 || s.index >= len(c) {
				return nil, false
			}
			return c[s.index], true
		case []map[string]any:
			if s.index < 0 || s.index >= len(c) {
				return nil, false
			}
			return c[s.index], true
		}
		return nil, false
	}
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[s.key]
		return v, ok
	case map[string]string:
		v, ok := c[s.key]
		return v, ok
	}
	return nil, false
}

// Set stores value at path, creating intermediate objects as needed. An
// index equal to the length of an existing array appends to it.
func Set(root map[string]any, path string, value any) error {
	if root == nil {
		return fmt.Errorf("set %q: nil root", path)
	}
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	if segs[0].isIndex {
		return fmt.Errorf("set %q: root is not an array", path)
	}
	_, err = setIn(root, segs, value, path)
	return err
}

func setIn(cur any, segs []segment, value any, path string) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	s := segs[0]

	if s.isIndex {
		var arr []any
		switch c := cur.(type) {
		case nil:
		case []any:
			arr = c
		default:
			return nil, fmt.Errorf("set %q: %T is not an array", path, cur)
		}
		switch {
		case s.index < 0 || s.index > len(arr):
			return nil, fmt.Errorf("set %q: index %d out of range", path, s.index)
		case s.index == len(arr):
			arr = append(arr, nil)
		}
		child, err := setIn(arr[s.index], segs[1:], value, path)
		if err != nil {
			return nil, err
		}
		arr[s.index] = child
		return arr, nil
	}

	var m map[string]any
	switch c := cur.(type) {
	case nil:
		m = make(map[string]any)
	case map[string]any:
		m = c
	default:
		return nil, fmt.Errorf("set %q: %T is not an object", path, cur)
	}
	child, err := setIn(m[s.key], segs[1:], value, path)
	if err != nil {
		return nil, err
	}
	m[s.key] = child
	return m, nil
}

// Delete removes the value at path. It reports whether anything was removed.
func Delete(root map[string]any, path string) bool {
	segs, err := parsePath(path)
	if err != nil || segs[0].isIndex {
		return false
	}
	_, removed := deleteIn(root, segs)
	return removed
}

func deleteIn(cur any, segs []segment) (any, bool) {
	s := segs[0]
	last := len(segs) == 1

	if s.isIndex {
		arr, ok := cur.([]any)
		if !ok || s.index < 0 || s.index >= len(arr) {
			return cur, false
		}
		if last {
			out := make([]any, 0, len(arr)-1)
			out = append(out, arr[:s.index]...)
			return append(out, arr[s.index+1:]...), true
		}
		child, removed := deleteIn(arr[s.index], segs[1:])
		arr[s.index] = child
		return arr, removed
	}

	m, ok := cur.(map[string]any)
	if !ok {
		return cur, false
	}
	v, exists := m[s.key]
	if !exists {
		return cur, false
	}
	if last {
		delete(m, s.key)
		return m, true
	}
	child, removed := deleteIn(v, segs[1:])
	m[s.key] = child
	return m, removed
}
