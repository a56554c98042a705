package pkgcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writePackage(t *testing.T, root, name, version string, manifest Manifest, resources map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name+"#"+version, "package")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest.Name = name
	manifest.Version = version
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	for fname, content := range resources {
		if err := os.WriteFile(filepath.Join(dir, fname), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveExactVersion(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "hl7.fhir.r4.core", "4.0.1", Manifest{}, nil)

	c := New(root)
	ref, err := c.Resolve("hl7.fhir.r4.core", "4.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Version != "4.0.1" {
		t.Fatalf("got version %q", ref.Version)
	}
}

func TestResolveLatestPicksGreatestSemver(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "hl7.fhir.r4.core", "4.0.0", Manifest{}, nil)
	writePackage(t, root, "hl7.fhir.r4.core", "4.0.1", Manifest{}, nil)
	writePackage(t, root, "hl7.fhir.r4.core", "3.9.9", Manifest{}, nil)

	c := New(root)
	ref, err := c.Resolve("hl7.fhir.r4.core", "latest")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Version != "4.0.1" {
		t.Fatalf("expected 4.0.1, got %q", ref.Version)
	}
}

func TestResolveMissingPackage(t *testing.T) {
	c := New(t.TempDir())
	if _, err := c.Resolve("nonexistent.core", "1.0.0"); err == nil {
		t.Fatal("expected an error for a missing package")
	}
}

func TestLoadReadsManifestAndResources(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "hl7.fhir.r4.core", "4.0.1",
		Manifest{Canonical: "http://hl7.org/fhir", FHIRVersions: []string{"4.0.1"}},
		map[string]string{
			"StructureDefinition-Patient.json": `{"resourceType":"StructureDefinition","url":"http://hl7.org/fhir/StructureDefinition/Patient"}`,
		})

	c := New(root)
	ref, err := c.Resolve("hl7.fhir.r4.core", "4.0.1")
	if err != nil {
		t.Fatal(err)
	}
	pkg, err := c.Load(ref)
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Manifest.Canonical != "http://hl7.org/fhir" {
		t.Fatalf("manifest not loaded correctly: %+v", pkg.Manifest)
	}
	if len(pkg.Resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(pkg.Resources))
	}
}

func TestLoadWithDependenciesWalksTransitiveDeps(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "hl7.fhir.uv.ipa", "1.0.0",
		Manifest{Dependencies: map[string]string{"hl7.fhir.r4.core": "4.0.1"}}, nil)
	writePackage(t, root, "hl7.fhir.r4.core", "4.0.1", Manifest{}, nil)

	c := New(root)
	pkgs, err := c.LoadWithDependencies("hl7.fhir.uv.ipa!1.0.0", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages (self + dependency), got %d", len(pkgs))
	}
}

func TestLoadWithDependenciesToleratesCycles(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "a", "1.0.0", Manifest{Dependencies: map[string]string{"b": "1.0.0"}}, nil)
	writePackage(t, root, "b", "1.0.0", Manifest{Dependencies: map[string]string{"a": "1.0.0"}}, nil)

	c := New(root)
	pkgs, err := c.LoadWithDependencies("a!1.0.0", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("expected exactly 2 packages despite the cycle, got %d", len(pkgs))
	}
}

func TestParseSpec(t *testing.T) {
	name, version := ParseSpec("hl7.fhir.r4.core")
	if name != "hl7.fhir.r4.core" || version != "latest" {
		t.Fatalf("got (%q, %q)", name, version)
	}
	name, version = ParseSpec("hl7.fhir.r4.core!4.0.1")
	if name != "hl7.fhir.r4.core" || version != "4.0.1" {
		t.Fatalf("got (%q, %q)", name, version)
	}
}
