package depgraph

import "testing"

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestSortLeavesFirst(t *testing.T) {
	// A -> B -> C, B -> D
	deps := map[string][]string{
		"A": {"B"},
		"B": {"C", "D"},
		"C": {},
		"D": {},
	}
	res := Sort(deps)

	if len(res.Cycles) != 0 {
		t.Fatalf("expected no cycles, got %v", res.Cycles)
	}

	iA, iB, iC, iD := indexOf(res.Sorted, "A"), indexOf(res.Sorted, "B"), indexOf(res.Sorted, "C"), indexOf(res.Sorted, "D")
	if !(iC < iB && iD < iB && iB < iA) {
		t.Fatalf("expected C,D < B < A, got order %v", res.Sorted)
	}
}

func TestSortToleratesCycles(t *testing.T) {
	// A -> B -> A (cycle)
	deps := map[string][]string{
		"A": {"B"},
		"B": {"A"},
	}
	res := Sort(deps)

	if len(res.Sorted) != 2 {
		t.Fatalf("expected traversal to complete despite cycle, got %v", res.Sorted)
	}
	if len(res.Cycles) == 0 {
		t.Fatal("expected at least one reported cycle")
	}
	if !res.InCycle("A") || !res.InCycle("B") {
		t.Error("expected both A and B to be marked in-cycle")
	}
}

func TestLessTotalOrder(t *testing.T) {
	deps := map[string][]string{
		"A": {"B"},
		"B": {},
	}
	res := Sort(deps)

	if !res.Less("B", "A") {
		t.Error("expected B (dependency) to sort before A")
	}
	if !res.Less("B", "Z") {
		t.Error("expected a known node to sort before an unknown one")
	}
	if !res.Less("M", "Z") {
		t.Error("expected lexicographic fallback for two unknown nodes")
	}
}

func TestSortHonorsStabilizerOrderForUnrelatedNodes(t *testing.T) {
	// B and Z have no dependency relationship, so lexicographic order
	// would place B before Z; the stabilizer says otherwise.
	deps := map[string][]string{
		"Z": {},
		"B": {},
	}
	res := Sort(deps, "Z", "B")

	iB, iZ := indexOf(res.Sorted, "B"), indexOf(res.Sorted, "Z")
	if !(iZ < iB) {
		t.Fatalf("expected stabilizer order Z before B, got %v", res.Sorted)
	}
}

func TestSortStabilizerOmitsUnregisteredDependency(t *testing.T) {
	// "C" is a dependency URL with no ResourceFile of its own, so it's
	// absent from the stabilizer but still present as a deps key.
	deps := map[string][]string{
		"A": {"C"},
		"C": {},
	}
	res := Sort(deps, "A")

	if len(res.Sorted) != 2 {
		t.Fatalf("expected both nodes visited despite C missing from stabilizer, got %v", res.Sorted)
	}
	if indexOf(res.Sorted, "C") >= indexOf(res.Sorted, "A") {
		t.Fatalf("expected C (dependency) before A, got %v", res.Sorted)
	}
}

func TestSortDeterministic(t *testing.T) {
	deps := map[string][]string{
		"A": {"B", "C"},
		"B": {},
		"C": {},
	}
	r1 := Sort(deps)
	r2 := Sort(deps)
	if len(r1.Sorted) != len(r2.Sorted) {
		t.Fatal("expected stable-size result across runs")
	}
	for i := range r1.Sorted {
		if r1.Sorted[i] != r2.Sorted[i] {
			t.Fatalf("expected deterministic order, got %v vs %v", r1.Sorted, r2.Sorted)
		}
	}
}
