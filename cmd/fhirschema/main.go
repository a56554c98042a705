// Command fhirschema loads FHIR conformance resources and validates
// documents against them, comparable in spirit to the HL7 FHIR Validator.
package main

import (
	"fmt"
	"os"

	"github.com/fhirschema/compiler/cmd/fhirschema/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
