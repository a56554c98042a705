// Package cli assembles the fhirschema command tree: a root command
// carrying shared flags (cache directory, verbosity) plus the validate
// subcommand that does the actual work.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cacheDir string
	verbose  bool
)

// NewRootCommand builds the fhirschema command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fhirschema",
		Short: "Compile FHIR conformance resources and validate documents against them",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			bindConfig(cmd)
		},
	}

	root.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "FHIR package cache directory (defaults to $FHIR_CACHE_DIR or $HOME/.fhir/packages)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newValidateCommand())
	return root
}

// bindConfig wires viper to read FHIR_CACHE_DIR and the --cache-dir flag,
// flag taking precedence, and sets the global zerolog level from
// --verbose.
func bindConfig(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix("FHIR")
	v.AutomaticEnv()
	v.BindEnv("cache_dir", "FHIR_CACHE_DIR")
	v.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir"))

	if cacheDir == "" {
		cacheDir = v.GetString("cache_dir")
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

var log zerolog.Logger
