// Package pkgcache resolves FHIR NPM-style package identifiers against a
// local package cache directory of extracted packages laid out
// as "<name>#<version>/package/*.json", generalized here to support
// "latest"-version resolution and transitive dependency loading.
package pkgcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	fhirschema "github.com/fhirschema/compiler"
)

// DefaultDir returns the default package cache directory: the
// FHIR_CACHE_DIR environment variable if set, else $HOME/.fhir/packages.
func DefaultDir() string {
	if dir := os.Getenv("FHIR_CACHE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fhir/packages"
	}
	return filepath.Join(home, ".fhir", "packages")
}

// PackageRef names one package at one resolved version.
type PackageRef struct {
	Name    string
	Version string
}

func (r PackageRef) String() string { return r.Name + "#" + r.Version }

// Manifest is a FHIR package's package.json.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Canonical    string            `json:"canonical,omitempty"`
	URL          string            `json:"url,omitempty"`
	FHIRVersions []string          `json:"fhirVersions,omitempty"`
}

// Package is one loaded package: its manifest plus every conformance
// resource file found under its package/ directory.
type Package struct {
	Ref       PackageRef
	Manifest  Manifest
	Resources []json.RawMessage
}

// Cache resolves and loads packages from a directory laid out as
// <dir>/<name>#<version>/package/*.json.
type Cache struct {
	dir string
}

// New returns a Cache rooted at dir. An empty dir uses DefaultDir().
func New(dir string) *Cache {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Cache{dir: dir}
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.dir }

// ParseSpec splits a "<name>" or "<name>!<version>" identifier as used by
// load_packages. A bare name implies version "latest".
func ParseSpec(spec string) (name, version string) {
	if idx := strings.IndexByte(spec, '!'); idx >= 0 {
		return spec[:idx], spec[idx+1:]
	}
	return spec, "latest"
}

// Resolve turns a name and version (possibly "latest") into a concrete
// PackageRef backed by a directory that actually exists in the cache.
func (c *Cache) Resolve(name, version string) (PackageRef, error) {
	if version != "latest" {
		ref := PackageRef{Name: name, Version: version}
		if _, err := os.Stat(c.packageDir(ref)); err != nil {
			return PackageRef{}, fhirschema.NewLoaderError(fhirschema.LoaderPackageNotFound, ref.String(), err)
		}
		return ref, nil
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return PackageRef{}, fhirschema.NewLoaderError(fhirschema.LoaderPackageNotFound, name, err)
	}

	prefix := name + "#"
	var best string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		v := strings.TrimPrefix(e.Name(), prefix)
		if best == "" || semverLess(best, v) {
			best = v
		}
	}
	if best == "" {
		return PackageRef{}, fhirschema.NewLoaderError(fhirschema.LoaderPackageNotFound, name, nil)
	}
	return PackageRef{Name: name, Version: best}, nil
}

func (c *Cache) packageDir(ref PackageRef) string {
	return filepath.Join(c.dir, ref.String())
}

// Load reads ref's manifest and every JSON resource under its package/
// directory.
func (c *Cache) Load(ref PackageRef) (*Package, error) {
	pkgDir := filepath.Join(c.packageDir(ref), "package")

	manifestPath := filepath.Join(pkgDir, "package.json")
	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fhirschema.NewLoaderError(fhirschema.LoaderPackageNotFound, ref.String(), err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fhirschema.NewLoaderError(fhirschema.LoaderJSONParseError, manifestPath, err)
	}

	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fhirschema.NewLoaderError(fhirschema.LoaderCacheCorrupt, pkgDir, err)
	}

	pkg := &Package{Ref: ref, Manifest: manifest}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name == "package.json" || name == ".index.json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(pkgDir, name))
		if err != nil {
			continue
		}
		pkg.Resources = append(pkg.Resources, json.RawMessage(data))
	}
	return pkg, nil
}

// LoadWithDependencies resolves and loads spec plus every transitive
// dependency named in each package's manifest, skipping ones already in
// seen (keyed by "<name>#<version>") to tolerate dependency cycles.
func (c *Cache) LoadWithDependencies(spec string, seen map[string]bool) ([]*Package, error) {
	if seen == nil {
		seen = make(map[string]bool)
	}
	name, version := ParseSpec(spec)
	ref, err := c.Resolve(name, version)
	if err != nil {
		return nil, err
	}
	if seen[ref.String()] {
		return nil, nil
	}
	seen[ref.String()] = true

	pkg, err := c.Load(ref)
	if err != nil {
		return nil, err
	}
	out := []*Package{pkg}

	depNames := make([]string, 0, len(pkg.Manifest.Dependencies))
	for depName := range pkg.Manifest.Dependencies {
		depNames = append(depNames, depName)
	}
	sort.Strings(depNames)

	for _, depName := range depNames {
		depVersion := pkg.Manifest.Dependencies[depName]
		if depVersion == "" {
			depVersion = "latest"
		}
		children, err := c.LoadWithDependencies(fmt.Sprintf("%s!%s", depName, depVersion), seen)
		if err != nil {
			continue // an unresolvable transitive dependency degrades silently, matching resolve_schema's Any fallback later in the pipeline
		}
		out = append(out, children...)
	}
	return out, nil
}

// semverLess reports whether a orders before b under a permissive
// dotted-numeric comparison, falling back to lexicographic order for
// any non-numeric segment (covers pre-release suffixes like "-beta").
func semverLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if an != bn {
				return an < bn
			}
			continue
		}
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
