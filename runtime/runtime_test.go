package runtime

import (
	"context"
	"testing"

	"github.com/fhirschema/compiler/compiler"
	"github.com/fhirschema/compiler/dynjson"
)

func parse(t *testing.T, src string) dynjson.Value {
	t.Helper()
	v, err := dynjson.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return v
}

func TestValidateSimpleObject(t *testing.T) {
	schema := compiler.RefinedBy(
		compiler.ObjectOf([]compiler.Field{
			{Name: "active", Schema: compiler.OptionalOf(compiler.Boolean())},
			{Name: "name", Schema: compiler.String("")},
		}),
		compiler.Refinement{Kind: compiler.RefNonEmptyObject},
	)

	rt := New(nil, 1)
	v := parse(t, `{"active": true, "name": "Smith"}`)
	issues := rt.Validate(context.Background(), schema, v)
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	schema := compiler.ObjectOf([]compiler.Field{
		{Name: "active", Schema: compiler.Boolean()},
	})
	rt := New(nil, 1)
	v := parse(t, `{"active": "not-a-bool"}`)
	issues := rt.Validate(context.Background(), schema, v)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", issues)
	}
}

func TestValidateArrayCardinality(t *testing.T) {
	schema := compiler.ArrayOf(compiler.String(""), 1, 2)
	rt := New(nil, 1)

	if issues := rt.Validate(context.Background(), schema, parse(t, `[]`)); len(issues) == 0 {
		t.Fatal("expected cardinality violation for empty array with min=1")
	}
	if issues := rt.Validate(context.Background(), schema, parse(t, `["a"]`)); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	if issues := rt.Validate(context.Background(), schema, parse(t, `["a","b","c"]`)); len(issues) == 0 {
		t.Fatal("expected cardinality violation for 3 items with max=2")
	}
}

func TestValidateChoiceOfTypeAmbiguity(t *testing.T) {
	schema := compiler.RefinedBy(
		compiler.ObjectOf([]compiler.Field{
			{Name: "valueString", Schema: compiler.OptionalOf(compiler.String(""))},
			{Name: "valueBoolean", Schema: compiler.OptionalOf(compiler.Boolean())},
		}),
		compiler.Refinement{Kind: compiler.RefAtMostOneOfPrefix, Prefix: "value"},
	)
	rt := New(nil, 1)
	v := parse(t, `{"valueString": "x", "valueBoolean": true}`)
	issues := rt.Validate(context.Background(), schema, v)
	found := false
	for _, iss := range issues {
		if iss.Code == "choice-of-type-ambiguity" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a choice-of-type-ambiguity issue, got %v", issues)
	}
}

func TestValidateEmptyObjectRejectedOutsideArray(t *testing.T) {
	schema := compiler.RefinedBy(
		compiler.ObjectOf(nil),
		compiler.Refinement{Kind: compiler.RefNonEmptyObject},
	)
	rt := New(nil, 1)
	issues := rt.Validate(context.Background(), schema, parse(t, `{}`))
	if len(issues) == 0 {
		t.Fatal("expected empty-object rejection")
	}
}

func TestValidateEmptyObjectToleratedInsideArray(t *testing.T) {
	itemSchema := compiler.RefinedBy(
		compiler.ObjectOf(nil),
		compiler.Refinement{Kind: compiler.RefNonEmptyObject},
	)
	schema := compiler.ArrayOf(itemSchema, 0, compiler.Unbounded)
	rt := New(nil, 1)
	issues := rt.Validate(context.Background(), schema, parse(t, `[{}]`))
	if len(issues) != 0 {
		t.Fatalf("expected empty object inside array to be tolerated, got %v", issues)
	}
}

func TestValidateValueSetIncludeExclude(t *testing.T) {
	include := compiler.EnumOf([]string{"alpha", "lambda"})
	exclude := compiler.Literal("lambda")
	schema := compiler.ValueSetOf(include, exclude)
	rt := New(nil, 1)

	if issues := rt.Validate(context.Background(), schema, parse(t, `"alpha"`)); len(issues) != 0 {
		t.Fatalf("expected alpha to pass, got %v", issues)
	}
	if issues := rt.Validate(context.Background(), schema, parse(t, `"lambda"`)); len(issues) == 0 {
		t.Fatal("expected lambda to be excluded")
	}
}

func TestValidateUnionAcceptsFirstCleanBranch(t *testing.T) {
	schema := compiler.UnionOf([]*compiler.Schema{compiler.Boolean(), compiler.String("")})
	rt := New(nil, 1)
	if issues := rt.Validate(context.Background(), schema, parse(t, `"x"`)); len(issues) != 0 {
		t.Fatalf("expected string branch to satisfy union, got %v", issues)
	}
}

func TestValidateRequiredBindingOnCode(t *testing.T) {
	valueSet := compiler.ValueSetOf(compiler.EnumOf([]string{"open", "closed"}), compiler.Never())
	schema := compiler.RefinedBy(
		compiler.StringMinLen1(),
		compiler.Refinement{Kind: compiler.RefRequiredBinding, Binding: &compiler.BindingRefinement{
			ValueSet: valueSet, Shape: compiler.BindingCode,
		}},
	)
	rt := New(nil, 1)

	if issues := rt.Validate(context.Background(), schema, parse(t, `"open"`)); len(issues) != 0 {
		t.Fatalf("expected a member code to pass, got %v", issues)
	}
	if issues := rt.Validate(context.Background(), schema, parse(t, `"unknown"`)); len(issues) == 0 {
		t.Fatal("expected a non-member code to be rejected")
	}
}

func TestValidateRequiredBindingOnCodeableConceptAnyOf(t *testing.T) {
	valueSet := compiler.ValueSetOf(compiler.EnumOf([]string{"open", "closed"}), compiler.Never())
	schema := compiler.RefinedBy(
		compiler.ObjectOf(nil),
		compiler.Refinement{Kind: compiler.RefRequiredBinding, Binding: &compiler.BindingRefinement{
			ValueSet: valueSet, Shape: compiler.BindingCodeableConcept,
		}},
	)
	rt := New(nil, 1)

	matching := parse(t, `{"coding": [{"system": "http://example.org/cs/Status", "code": "wrong"}, {"code": "open"}]}`)
	if issues := rt.Validate(context.Background(), schema, matching); len(issues) != 0 {
		t.Fatalf("expected at least one matching coding to satisfy the binding, got %v", issues)
	}

	noneMatching := parse(t, `{"coding": [{"code": "wrong"}]}`)
	if issues := rt.Validate(context.Background(), schema, noneMatching); len(issues) == 0 {
		t.Fatal("expected rejection when no coding matches the required value set")
	}
}

func TestValidateRequiredBindingDisabledSchemaSkipsCheck(t *testing.T) {
	// A field compiled without terminology enabled never gets a
	// RefRequiredBinding refinement at all, so a plain string schema
	// accepts any non-empty code regardless of value set membership.
	schema := compiler.StringMinLen1()
	rt := New(nil, 1)
	if issues := rt.Validate(context.Background(), schema, parse(t, `"anything"`)); len(issues) != 0 {
		t.Fatalf("expected no issues without a binding refinement, got %v", issues)
	}
}

func TestValidateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	schema := compiler.String("")
	rt := New(nil, 1)
	issues := rt.Validate(ctx, schema, parse(t, `"x"`))
	if len(issues) != 1 || !issues[0].Cancelled {
		t.Fatalf("expected one cancelled issue, got %v", issues)
	}
}
