package cli

import "testing"

func TestNewRootCommandHasValidateSubcommand(t *testing.T) {
	root := NewRootCommand()
	found := false
	for _, c := range root.Commands() {
		if c.Name() == "validate" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a validate subcommand")
	}
}
