package routing

import "turnrouter/pkg/turngraph"

const maxUnpackDepth = 200

// UnpackPath expands a search result into the original-edge sequence
// from source to target, resolving shortcut edges through their
// constituents. Up is walked in reverse (it was collected from the
// meeting point back to the seed), then Down as recorded.
func UnpackPath(g *turngraph.TurnGraph, path *Path) []uint32 {
	var edges []uint32
	for i := len(path.Up) - 1; i >= 0; i-- {
		edges = appendUnpacked(g, edges, path.Up[i])
	}
	for _, e := range path.Down {
		edges = appendUnpacked(g, edges, e)
	}
	return edges
}

// appendUnpacked appends edge e, expanding shortcuts iteratively with
// an explicit stack to avoid recursion.
func appendUnpacked(g *turngraph.TurnGraph, result []uint32, e uint32) []uint32 {
	type item struct {
		edge  uint32
		depth int
	}

	stack := []item{{e, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > maxUnpackDepth {
			continue // safety bound
		}

		if g.GetEdgeData(it.edge).Shortcut {
			// Push the second half first so the first half comes off
			// the stack first (LIFO).
			stack = append(stack, item{uint32(g.ShortcutChild2[it.edge]), it.depth + 1})
			stack = append(stack, item{uint32(g.ShortcutChild1[it.edge]), it.depth + 1})
			continue
		}
		result = append(result, it.edge)
	}
	return result
}
