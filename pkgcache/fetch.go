package pkgcache

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	fhirschema "github.com/fhirschema/compiler"
)

// Fetcher retrieves a package not already present in the cache and
// extracts it into place so a subsequent Cache.Load succeeds. A Cache
// never calls a Fetcher: Cache.Load reads only what is already in the
// cache directory, so a cache miss surfaces as LoaderPackageNotFound.
type Fetcher interface {
	Fetch(ref PackageRef, destDir string) error
}

// HTTPFetcher downloads a package tarball from a registry that serves
// "<BaseURL>/<name>/-/<name>-<version>.tgz", the npm-style layout FHIR
// package registries mirror, and extracts it the same way a local .tgz
// package is unpacked.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher pointed at baseURL, defaulting to
// http.DefaultClient.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: baseURL, Client: http.DefaultClient}
}

// Fetch downloads ref's tarball and extracts it under destDir/package/.
func (f *HTTPFetcher) Fetch(ref PackageRef, destDir string) error {
	url := fmt.Sprintf("%s/%s/-/%s-%s.tgz", strings.TrimRight(f.BaseURL, "/"), ref.Name, ref.Name, ref.Version)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return fhirschema.NewLoaderError(fhirschema.LoaderDownloadFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fhirschema.NewLoaderError(fhirschema.LoaderDownloadFailed, url, fmt.Errorf("http %d", resp.StatusCode))
	}

	return extractTgz(resp.Body, destDir)
}

// extractTgz unpacks a gzipped tar stream's *.json entries into
// destDir/package/, mirroring the npm package layout Cache.Load expects.
func extractTgz(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fhirschema.NewLoaderError(fhirschema.LoaderCacheCorrupt, destDir, err)
	}
	defer gz.Close()

	pkgDir := filepath.Join(destDir, "package")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return fhirschema.NewLoaderError(fhirschema.LoaderCacheCorrupt, pkgDir, err)
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fhirschema.NewLoaderError(fhirschema.LoaderCacheCorrupt, destDir, err)
		}
		if header.Typeflag == tar.TypeDir {
			continue
		}
		name := strings.TrimPrefix(header.Name, "package/")
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, "..") {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			continue
		}
		if !json.Valid(data) {
			continue
		}
		if err := os.WriteFile(filepath.Join(pkgDir, filepath.Base(name)), data, 0o644); err != nil {
			return fhirschema.NewLoaderError(fhirschema.LoaderCacheCorrupt, name, err)
		}
	}
	return nil
}
