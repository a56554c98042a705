package depgraph

import "sort"

// SortResult is the output of Sort: a leaves-first order tolerating
// cycles, plus every cycle detected along the way.
type SortResult struct {
	Sorted []string
	Cycles [][]string

	index map[string]int
}

// visitState tracks a node's DFS status.
type visitState uint8

const (
	unvisited visitState = iota
	visiting
	done
)

// Sort performs a cycle-tolerant depth-first post-order traversal of deps
// (url -> depended-on urls) and returns a leaves-first order. On a back
// edge (an ancestor still being visited), the current DFS path is recorded
// as a cycle and traversal continues without re-entering the offending
// node — cycles are reported, never fatal.
//
// stabilizer, if given, is the order roots are visited in — the by-kind
// comparator registry.All() already produced, so two nodes with no
// dependency relationship keep that order in the result instead of falling
// back to raw lexicographic URL order. Any node in deps but absent from
// stabilizer (a dependency URL that was never registered) is appended
// afterward in lexicographic order.
func Sort(deps map[string][]string, stabilizer ...string) SortResult {
	state := make(map[string]visitState, len(deps))
	var postOrder []string
	var cycles [][]string
	var path []string

	nodes := rootOrder(deps, stabilizer)

	var visit func(u string)
	visit = func(u string) {
		switch state[u] {
		case done:
			return
		case visiting:
			// Back edge: record the cycle as the suffix of the current
			// path from u's first occurrence onward.
			for i, p := range path {
				if p == u {
					cycle := append([]string{}, path[i:]...)
					cycle = append(cycle, u)
					cycles = append(cycles, cycle)
					break
				}
			}
			return
		}

		state[u] = visiting
		path = append(path, u)

		children := append([]string{}, deps[u]...)
		sort.Strings(children)
		for _, c := range children {
			visit(c)
		}

		path = path[:len(path)-1]
		state[u] = done
		postOrder = append(postOrder, u)
	}

	for _, n := range nodes {
		visit(n)
	}

	result := SortResult{Sorted: postOrder, Cycles: cycles}
	result.index = make(map[string]int, len(postOrder))
	for i, u := range postOrder {
		result.index[u] = i
	}
	return result
}

// rootOrder produces the deterministic order visit() walks deps' keys in:
// stabilizer's order for nodes it names, then any remaining deps keys
// lexicographically.
func rootOrder(deps map[string][]string, stabilizer []string) []string {
	if len(stabilizer) == 0 {
		nodes := make([]string, 0, len(deps))
		for n := range deps {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)
		return nodes
	}

	seen := make(map[string]bool, len(deps))
	nodes := make([]string, 0, len(deps))
	for _, u := range stabilizer {
		if _, ok := deps[u]; ok && !seen[u] {
			seen[u] = true
			nodes = append(nodes, u)
		}
	}

	var rest []string
	for n := range deps {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(nodes, rest...)
}

// Less implements the runtime's total order over URLs: if both are in
// Sorted, compare by index (lower index = dependency = earlier); if only
// one is, it comes first; otherwise fall back to lexicographic URL order.
func (r SortResult) Less(a, b string) bool {
	ia, aok := r.index[a]
	ib, bok := r.index[b]
	switch {
	case aok && bok:
		return ia < ib
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

// InCycle reports whether url participates in any reported cycle.
func (r SortResult) InCycle(url string) bool {
	for _, cycle := range r.Cycles {
		for _, u := range cycle {
			if u == url {
				return true
			}
		}
	}
	return false
}
