package fhirschema

import "testing"

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if !o.EnableTerminology {
		t.Error("expected terminology enabled by default")
	}
	if o.WorkerCount <= 0 {
		t.Error("expected positive default worker count")
	}
}

func TestOptionsApply(t *testing.T) {
	o := DefaultOptions()
	for _, opt := range []Option{
		WithTerminology(false),
		WithWorkerCount(4),
		WithMaxIssues(10),
		WithPooling(false),
		WithCacheSizes(50, 20),
		WithPositionTracking(true),
	} {
		opt(o)
	}

	if o.EnableTerminology {
		t.Error("WithTerminology(false) did not apply")
	}
	if o.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", o.WorkerCount)
	}
	if o.MaxIssues != 10 {
		t.Errorf("MaxIssues = %d, want 10", o.MaxIssues)
	}
	if o.EnablePooling {
		t.Error("WithPooling(false) did not apply")
	}
	if o.StructureDefCacheSize != 50 || o.ValueSetCacheSize != 20 {
		t.Errorf("cache sizes = %d/%d, want 50/20", o.StructureDefCacheSize, o.ValueSetCacheSize)
	}
	if !o.TrackPositions {
		t.Error("WithPositionTracking(true) did not apply")
	}
}

func TestWithWorkerCountIgnoresNonPositive(t *testing.T) {
	o := DefaultOptions()
	before := o.WorkerCount
	WithWorkerCount(0)(o)
	if o.WorkerCount != before {
		t.Errorf("WithWorkerCount(0) should be a no-op, got %d", o.WorkerCount)
	}
}

func TestWithPackageCacheDir(t *testing.T) {
	o := DefaultOptions()
	WithPackageCacheDir("/tmp/example-cache")(o)
	if o.PackageCacheDir != "/tmp/example-cache" {
		t.Errorf("PackageCacheDir = %q, want /tmp/example-cache", o.PackageCacheDir)
	}
}
