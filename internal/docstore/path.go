package docstore

import (
	"fmt"
	"strconv"
	"strings"

	"kindergarten/pkg/platform/sentinel"
)

// Path addresses a field inside a document. Map keys are plain segments and
// array elements are addressed by their decimal index.
type Path []string

// P builds a path from segments. Segments are never split, so keys that
// contain dots (emails) are safe.
func P(segments ...string) Path {
	return Path(segments)
}

// Child returns a new path with extra segments appended.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Op is the kind of a field-path mutation.
type Op int

const (
	OpSet Op = iota
	OpUnset
	OpPush
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpUnset:
		return "unset"
	case OpPush:
		return "push"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Mutation is one atomic change applied by Store.Update.
type Mutation struct {
	Op    Op
	Path  Path
	Value any
}

// Set writes value at path, creating missing intermediate maps.
func Set(path Path, value any) Mutation {
	return Mutation{Op: OpSet, Path: path, Value: value}
}

// Unset removes the key at path. Absent keys are a no-op.
func Unset(path Path) Mutation {
	return Mutation{Op: OpUnset, Path: path}
}

// Push appends value to the array at path, creating it when missing.
func Push(path Path, value any) Mutation {
	return Mutation{Op: OpPush, Path: path, Value: value}
}

// Apply performs m against body in place. Backends without native field-path
// updates use it; mutation values must already be normalized.
func Apply(body map[string]any, m Mutation) error {
	if len(m.Path) == 0 {
		return fmt.Errorf("%w: empty path", sentinel.ErrInvalidPath)
	}
	switch m.Op {
	case OpSet:
		parent, key, err := walk(body, m.Path, true)
		if err != nil {
			return err
		}
		return assign(parent, key, m.Path, Clone(m.Value))
	case OpUnset:
		parent, key, err := walk(body, m.Path, false)
		if err != nil || parent == nil {
			return err
		}
		switch c := parent.(type) {
		case map[string]any:
			delete(c, key)
			return nil
		default:
			return fmt.Errorf("%w: cannot unset array element %s", sentinel.ErrInvalidPath, m.Path)
		}
	case OpPush:
		parent, key, err := walk(body, m.Path, true)
		if err != nil {
			return err
		}
		current, _ := lookup(parent, key)
		var arr []any
		switch c := current.(type) {
		case nil:
		case []any:
			arr = c
		default:
			return fmt.Errorf("%w: %s is not an array", sentinel.ErrInvalidPath, m.Path)
		}
		return assign(parent, key, m.Path, append(arr, Clone(m.Value)))
	default:
		return fmt.Errorf("%w: unknown op %s", sentinel.ErrInvalidPath, m.Op)
	}
}

// walk descends to the container holding the last path segment. When create
// is false and an intermediate is missing, it returns a nil container.
func walk(body map[string]any, path Path, create bool) (any, string, error) {
	var cur any = body
	for i, seg := range path[:len(path)-1] {
		next, ok := lookup(cur, seg)
		if !ok || next == nil {
			if !create {
				return nil, "", nil
			}
			m, isMap := cur.(map[string]any)
			if !isMap {
				return nil, "", fmt.Errorf("%w: %s", sentinel.ErrInvalidPath, path[:i+1])
			}
			next = map[string]any{}
			m[seg] = next
		}
		switch next.(type) {
		case map[string]any, []any:
		default:
			return nil, "", fmt.Errorf("%w: %s is not a container", sentinel.ErrInvalidPath, path[:i+1])
		}
		cur = next
	}
	return cur, path[len(path)-1], nil
}

func lookup(container any, seg string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}

func assign(container any, key string, path Path, value any) error {
	switch c := container.(type) {
	case map[string]any:
		c[key] = value
		return nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(c) {
			return fmt.Errorf("%w: index %s out of range", sentinel.ErrInvalidPath, path)
		}
		c[idx] = value
		return nil
	default:
		return fmt.Errorf("%w: %s", sentinel.ErrInvalidPath, path)
	}
}
