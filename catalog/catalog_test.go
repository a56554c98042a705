package catalog

import "testing"

func TestDefaultCatalogRecognizesLOINCShape(t *testing.T) {
	c := Default()
	p, ok := c.Get(SystemLOINC)
	if !ok {
		t.Fatal("expected LOINC provider to be registered")
	}
	if p.System() != SystemLOINC {
		t.Fatalf("System() = %q, want %q", p.System(), SystemLOINC)
	}
	if p.Regex() == "" {
		t.Fatal("expected a non-empty shape regex")
	}
}

func TestCatalogRegisterAndGet(t *testing.T) {
	c := New()
	if _, ok := c.Get("http://example.org/unknown"); ok {
		t.Fatal("expected no provider for unregistered system")
	}
	c.Register(NewRegexProvider("http://example.org/custom", `^[A-Z]{3}$`, "custom"))
	p, ok := c.Get("http://example.org/custom")
	if !ok {
		t.Fatal("expected the registered provider to be found")
	}
	if p.Regex() != `^[A-Z]{3}$` {
		t.Fatalf("Regex() = %q", p.Regex())
	}
}

func TestCatalogSystemsListsAllRegistered(t *testing.T) {
	c := Default()
	systems := c.Systems()
	if len(systems) != 4 {
		t.Fatalf("expected 4 built-in systems, got %d", len(systems))
	}
}
