package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	fhirschema "github.com/fhirschema/compiler"
	"github.com/fhirschema/compiler/engine"
)

type validateFlags struct {
	profiles           []string
	packages           []string
	loadPaths          []string
	output             string
	ignoreUnknown      bool
	ignoreSelfDeclared bool
	disableTerminology bool
}

func newValidateCommand() *cobra.Command {
	flags := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate one or more FHIR documents against loaded profiles",
		Long: `Validate reads each file argument (or "-" for stdin, or a glob
pattern) as a JSON document and checks it against the profiles named by
--profile, unioned with any profile the document declares itself via
meta.profile or its own url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), flags, args)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.profiles, "profile", "p", nil, "canonical URL of a profile to validate against (repeatable)")
	cmd.Flags().StringArrayVar(&flags.packages, "package", nil, "FHIR package to load, \"name\" or \"name!version\" (repeatable)")
	cmd.Flags().StringArrayVar(&flags.loadPaths, "load", nil, "local file or directory of conformance resources to load (repeatable)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&flags.ignoreUnknown, "ignore-unknown-schemas", false, "don't report an issue for a profile with no compiled schema")
	cmd.Flags().BoolVar(&flags.ignoreSelfDeclared, "ignore-self-declared-profiles", false, "ignore meta.profile when building the effective profile list")
	cmd.Flags().BoolVar(&flags.disableTerminology, "no-terminology", false, "skip required-binding and ValueSet enforcement")

	return cmd
}

func runValidate(ctx context.Context, flags *validateFlags, args []string) error {
	runID := uuid.NewString()
	log.Debug().Str("run_id", runID).Msg("starting validation run")

	opts := []fhirschema.Option{fhirschema.WithPackageCacheDir(cacheDir)}
	if flags.disableTerminology {
		opts = append(opts, fhirschema.WithTerminology(false))
	}

	e, err := engine.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	if len(flags.packages) > 0 {
		log.Debug().Strs("packages", flags.packages).Msg("loading packages")
		if err := e.LoadPackages(ctx, flags.packages...); err != nil {
			return fmt.Errorf("load packages: %w", err)
		}
	}
	if len(flags.loadPaths) > 0 {
		log.Debug().Strs("paths", flags.loadPaths).Msg("loading local definitions")
		if err := e.LoadFiles(ctx, flags.loadPaths...); err != nil {
			return fmt.Errorf("load files: %w", err)
		}
	}

	if len(args) == 0 {
		return fmt.Errorf("no input files given (pass a path, a glob, or \"-\" for stdin)")
	}

	validateOpts := fhirschema.ValidateOptions{
		Profiles:                   flags.profiles,
		IgnoreUnknownSchemas:       flags.ignoreUnknown,
		IgnoreSelfDeclaredProfiles: flags.ignoreSelfDeclared,
		RunID:                      runID,
	}

	reports, hasErrors, err := collectReports(ctx, e, args, validateOpts)
	if err != nil {
		return err
	}

	if flags.output == "json" {
		return printJSON(runID, reports)
	}
	printText(runID, reports)
	if hasErrors {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// report bundles a validated document's name, its result, and how long
// validation took, one entry printed per file.
type report struct {
	name     string
	result   *fhirschema.ValidationResult
	duration time.Duration
	readErr  error
}

func collectReports(ctx context.Context, e *engine.Engine, args []string, opts fhirschema.ValidateOptions) ([]report, bool, error) {
	var reports []report
	hasErrors := false

	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, true, fmt.Errorf("read stdin: %w", err)
			}
			r := validateOne(ctx, e, "stdin", data, opts)
			reports = append(reports, r)
			hasErrors = hasErrors || !r.result.Success
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, true, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			matches = []string{arg}
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				reports = append(reports, report{name: path, readErr: err})
				hasErrors = true
				continue
			}
			r := validateOne(ctx, e, path, data, opts)
			reports = append(reports, r)
			hasErrors = hasErrors || !r.result.Success
		}
	}

	return reports, hasErrors, nil
}

func validateOne(ctx context.Context, e *engine.Engine, name string, data []byte, opts fhirschema.ValidateOptions) report {
	start := time.Now()
	result := e.Validate(ctx, data, opts)
	return report{name: name, result: result, duration: time.Since(start)}
}

// jsonReport is the wire shape one report takes in --output json, kept
// distinct from fhirschema.ValidationResult so JSON output stays stable
// even if the internal result type grows fields.
type jsonReport struct {
	Resource string             `json:"resource"`
	Valid    bool               `json:"valid"`
	Errors   []string           `json:"errors,omitempty"`
	Issues   []fhirschema.Issue `json:"issues,omitempty"`
	Duration string             `json:"duration"`
}

func printJSON(runID string, reports []report) error {
	out := struct {
		RunID   string       `json:"runId"`
		Reports []jsonReport `json:"reports"`
	}{RunID: runID}

	for _, r := range reports {
		if r.readErr != nil {
			out.Reports = append(out.Reports, jsonReport{Resource: r.name, Valid: false, Errors: []string{r.readErr.Error()}})
			continue
		}
		out.Reports = append(out.Reports, jsonReport{
			Resource: r.name,
			Valid:    r.result.Success,
			Errors:   r.result.Errors,
			Issues:   r.result.Issues,
			Duration: r.duration.Round(time.Microsecond).String(),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printText(runID string, reports []report) {
	for _, r := range reports {
		fmt.Printf("== %s ==\n", r.name)
		if r.readErr != nil {
			fmt.Printf("Status: ERROR (%v)\n\n", r.readErr)
			continue
		}
		status := "VALID"
		if !r.result.Success {
			status = "INVALID"
		}
		fmt.Printf("Status: %s\n", status)
		fmt.Printf("Duration: %s\n", r.duration.Round(time.Microsecond))
		if len(r.result.ProfileURLs) > 0 {
			fmt.Printf("Profiles: %v\n", r.result.ProfileURLs)
		}
		for _, iss := range r.result.Issues {
			fmt.Printf("  %s\n", iss.String())
		}
		fmt.Println()
	}
	log.Debug().Str("run_id", runID).Int("reports", len(reports)).Msg("validation run complete")
}
