package workflow

import (
	"sort"
	"strings"
)

// MatrixEntry is one point in the matrix cross product.
type MatrixEntry map[string]string

// Name renders a stable, human-readable job name for the entry,
// e.g. "python-version=3.10". An empty entry yields "default".
func (e MatrixEntry) Name() string {
	if len(e) == 0 {
		return "default"
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e[k])
	}
	return strings.Join(parts, ",")
}

// Expand returns the cross product of the matrix axes.
//
// Expansion is deterministic: axes are visited in sorted name order and
// values keep their file order. An empty matrix yields a single empty
// entry so a workflow without a matrix still produces one job.
func (m Matrix) Expand() []MatrixEntry {
	if len(m) == 0 {
		return []MatrixEntry{{}}
	}

	axes := make([]string, 0, len(m))
	for axis := range m {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	entries := []MatrixEntry{{}}
	for _, axis := range axes {
		next := make([]MatrixEntry, 0, len(entries)*len(m[axis]))
		for _, entry := range entries {
			for _, value := range m[axis] {
				child := make(MatrixEntry, len(entry)+1)
				for k, v := range entry {
					child[k] = v
				}
				child[axis] = value
				next = append(next, child)
			}
		}
		entries = next
	}
	return entries
}
