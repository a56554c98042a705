package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	fhirschema "github.com/fhirschema/compiler"
)

// EntryResult is the outcome of validating one entry of a streamed Bundle.
type EntryResult struct {
	Index        int
	FullURL      string
	ResourceType string
	ResourceID   string
	Result       *fhirschema.ValidationResult
	Err          error
}

// ValidateBatch validates every document independently and concurrently,
// bounded by the engine's configured worker count, preserving input order
// in the returned slice. A document that fails to parse or to validate
// still gets its own result at its index, so the slice always has one
// entry per input document.
func (e *Engine) ValidateBatch(ctx context.Context, documents []any, opts fhirschema.ValidateOptions) []*fhirschema.ValidationResult {
	results := make([]*fhirschema.ValidationResult, len(documents))

	e.mu.RLock()
	limit := e.opts.WorkerCount
	e.mu.RUnlock()
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, doc := range documents {
		i, doc := i, doc
		g.Go(func() error {
			results[i] = e.Validate(gctx, doc, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ValidateBundleStream validates a Bundle's entry array as it streams in
// from r, emitting one EntryResult per entry in document order without
// buffering the whole Bundle in memory. The returned channel is closed once
// every entry has been emitted or ctx is cancelled.
func (e *Engine) ValidateBundleStream(ctx context.Context, r io.Reader, opts fhirschema.ValidateOptions) <-chan *EntryResult {
	out := make(chan *EntryResult, 64)

	go func() {
		defer close(out)

		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err != nil {
			out <- &EntryResult{Index: -1, Err: fmt.Errorf("read bundle: %w", err)}
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			out <- &EntryResult{Index: -1, Err: fmt.Errorf("expected object start, got %v", tok)}
			return
		}

		for dec.More() {
			select {
			case <-ctx.Done():
				out <- &EntryResult{Index: -1, Err: ctx.Err()}
				return
			default:
			}

			tok, err := dec.Token()
			if err != nil {
				out <- &EntryResult{Index: -1, Err: fmt.Errorf("read field: %w", err)}
				return
			}
			fieldName, ok := tok.(string)
			if !ok {
				continue
			}
			if fieldName != "entry" {
				var skip any
				if err := dec.Decode(&skip); err != nil {
					out <- &EntryResult{Index: -1, Err: fmt.Errorf("skip field %s: %w", fieldName, err)}
					return
				}
				continue
			}

			e.streamEntries(ctx, dec, opts, out)
			return
		}
	}()

	return out
}

func (e *Engine) streamEntries(ctx context.Context, dec *json.Decoder, opts fhirschema.ValidateOptions, out chan<- *EntryResult) {
	tok, err := dec.Token()
	if err != nil {
		out <- &EntryResult{Index: -1, Err: fmt.Errorf("read entry array: %w", err)}
		return
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		out <- &EntryResult{Index: -1, Err: fmt.Errorf("expected array start, got %v", tok)}
		return
	}

	index := 0
	for dec.More() {
		select {
		case <-ctx.Done():
			out <- &EntryResult{Index: index, Err: ctx.Err()}
			return
		default:
		}

		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			out <- &EntryResult{Index: index, Err: fmt.Errorf("decode entry %d: %w", index, err)}
			index++
			continue
		}
		out <- e.validateEntry(ctx, entry, index, opts)
		index++
	}
}

func (e *Engine) validateEntry(ctx context.Context, entry map[string]any, index int, opts fhirschema.ValidateOptions) *EntryResult {
	er := &EntryResult{Index: index}
	if fullURL, ok := entry["fullUrl"].(string); ok {
		er.FullURL = fullURL
	}
	resource, ok := entry["resource"].(map[string]any)
	if !ok {
		er.Result = &fhirschema.ValidationResult{Success: true}
		return er
	}
	if rt, ok := resource["resourceType"].(string); ok {
		er.ResourceType = rt
	}
	if id, ok := resource["id"].(string); ok {
		er.ResourceID = id
	}
	er.Result = e.Validate(ctx, resource, opts)
	return er
}

// BundleStreamSummary aggregates the EntryResults from a ValidateBundleStream
// call, mirroring the shape a caller needs to print one summary line without
// keeping every ValidationResult in memory.
type BundleStreamSummary struct {
	TotalEntries        int
	EntriesWithErrors   int
	EntriesWithWarnings int
	TotalIssues         int
	ProcessingErrors    []error
	Issues              map[int][]fhirschema.Issue
}

// Summary renders a one-line human-readable digest.
func (s *BundleStreamSummary) Summary() string {
	return fmt.Sprintf("validated %d entries: %d with errors, %d with warnings, %d total issues",
		s.TotalEntries, s.EntriesWithErrors, s.EntriesWithWarnings, s.TotalIssues)
}

// HasErrors reports whether any entry failed, or the stream itself hit a
// processing error.
func (s *BundleStreamSummary) HasErrors() bool {
	return s.EntriesWithErrors > 0 || len(s.ProcessingErrors) > 0
}

// AggregateBundleResults drains results into a BundleStreamSummary.
func AggregateBundleResults(results <-chan *EntryResult) *BundleStreamSummary {
	summary := &BundleStreamSummary{Issues: make(map[int][]fhirschema.Issue)}
	for r := range results {
		if r.Err != nil {
			summary.ProcessingErrors = append(summary.ProcessingErrors, r.Err)
			continue
		}
		if r.Index < 0 {
			continue
		}
		summary.TotalEntries++
		if r.Result == nil || len(r.Result.Issues) == 0 {
			continue
		}
		summary.Issues[r.Index] = r.Result.Issues
		summary.TotalIssues += len(r.Result.Issues)

		hasError, hasWarning := false, false
		for _, iss := range r.Result.Issues {
			if iss.IsError() {
				hasError = true
			} else if iss.Severity == fhirschema.SeverityWarning {
				hasWarning = true
			}
		}
		switch {
		case hasError:
			summary.EntriesWithErrors++
		case hasWarning:
			summary.EntriesWithWarnings++
		}
	}
	return summary
}
