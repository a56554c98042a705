package fhirschema

import (
	"sync/atomic"
	"time"
)

// Metrics accumulates counters for one Validator instance's lifetime.
// All fields are safe for concurrent use.
type Metrics struct {
	compiles        int64
	compileErrors   int64
	validations     int64
	validationFails int64
	totalNanos      int64
	cacheHits       int64
	cacheMisses     int64
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordCompile records one resource compilation, successful or not.
func (m *Metrics) RecordCompile(ok bool) {
	atomic.AddInt64(&m.compiles, 1)
	if !ok {
		atomic.AddInt64(&m.compileErrors, 1)
	}
}

// RecordValidation records the duration and outcome of one Validate call.
func (m *Metrics) RecordValidation(d time.Duration, success bool) {
	atomic.AddInt64(&m.validations, 1)
	atomic.AddInt64(&m.totalNanos, d.Nanoseconds())
	if !success {
		atomic.AddInt64(&m.validationFails, 1)
	}
}

// RecordCacheHit / RecordCacheMiss track resolver cache effectiveness.
func (m *Metrics) RecordCacheHit()  { atomic.AddInt64(&m.cacheHits, 1) }
func (m *Metrics) RecordCacheMiss() { atomic.AddInt64(&m.cacheMisses, 1) }

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	Compiles        int64
	CompileErrors   int64
	Validations     int64
	ValidationFails int64
	MeanLatency     time.Duration
	CacheHits       int64
	CacheMisses     int64
}

// Snapshot returns a consistent-enough copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	validations := atomic.LoadInt64(&m.validations)
	total := atomic.LoadInt64(&m.totalNanos)
	var mean time.Duration
	if validations > 0 {
		mean = time.Duration(total / validations)
	}
	return Snapshot{
		Compiles:        atomic.LoadInt64(&m.compiles),
		CompileErrors:   atomic.LoadInt64(&m.compileErrors),
		Validations:     validations,
		ValidationFails: atomic.LoadInt64(&m.validationFails),
		MeanLatency:     mean,
		CacheHits:       atomic.LoadInt64(&m.cacheHits),
		CacheMisses:     atomic.LoadInt64(&m.cacheMisses),
	}
}
