package hierarchy

import (
	"reflect"
	"testing"
)

func humanTree() *Hierarchy {
	boy := &ConceptNode{Code: "boy"}
	girl := &ConceptNode{Code: "girl"}
	child := &ConceptNode{Code: "child", Children: []*ConceptNode{boy, girl}}
	man := &ConceptNode{Code: "man"}
	woman := &ConceptNode{Code: "woman"}
	adult := &ConceptNode{Code: "adult", Children: []*ConceptNode{man, woman}}
	human := &ConceptNode{Code: "human", Children: []*ConceptNode{child, adult}}
	return Build([]*ConceptNode{human})
}

func TestFindDescendantsAncestors(t *testing.T) {
	h := humanTree()

	if _, ok := h.Find("boy"); !ok {
		t.Fatal("expected to find boy")
	}
	if _, ok := h.Find("machine"); ok {
		t.Fatal("expected machine not found")
	}

	desc := h.Descendants("human")
	want := []string{"child", "boy", "girl", "adult", "man", "woman"}
	if !reflect.DeepEqual(desc, want) {
		t.Fatalf("Descendants(human) = %v, want %v", desc, want)
	}

	if d := h.Descendants("boy"); d != nil {
		t.Fatalf("expected leaf to have no descendants, got %v", d)
	}

	anc := h.Ancestors("boy")
	if !reflect.DeepEqual(anc, []string{"human", "child"}) {
		t.Fatalf("Ancestors(boy) = %v", anc)
	}

	if a := h.Ancestors("human"); a != nil {
		t.Fatalf("expected root to have no ancestors, got %v", a)
	}
}

func TestFilterIsAWithHierarchy(t *testing.T) {
	h := humanTree()
	accept := []string{"child", "boy", "girl"}
	for _, code := range accept {
		if !EvalFilter(h, "is-a", "child", "concept", code) {
			t.Errorf("expected is-a child to accept %s", code)
		}
	}
	reject := []string{"man", "woman", "machine"}
	for _, code := range reject {
		if EvalFilter(h, "is-a", "child", "concept", code) {
			t.Errorf("expected is-a child to reject %s", code)
		}
	}
}

func TestFilterDescendentOfWithoutHierarchyIsConservative(t *testing.T) {
	if EvalFilter(nil, "descendent-of", "human", "concept", "human") {
		t.Error("expected descendent-of to reject the pivot itself when no hierarchy present")
	}
	if !EvalFilter(nil, "descendent-of", "human", "concept", "child") {
		t.Error("expected descendent-of to accept any other value conservatively when no hierarchy present")
	}
}

func TestFilterGeneralizesWithoutHierarchy(t *testing.T) {
	if !EvalFilter(nil, "generalizes", "child", "concept", "child") {
		t.Error("expected generalizes to accept exact match without hierarchy")
	}
	if EvalFilter(nil, "generalizes", "child", "concept", "human") {
		t.Error("expected generalizes to reject a non-exact match without hierarchy")
	}
}

func TestFilterInNotIn(t *testing.T) {
	if !EvalFilter(nil, "in", "a,b,c", "concept", "b") {
		t.Error("expected in to accept member")
	}
	if EvalFilter(nil, "not-in", "a,b,c", "concept", "b") {
		t.Error("expected not-in to reject member")
	}
}
