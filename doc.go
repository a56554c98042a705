// Package fhirschema compiles FHIR R4 terminology and profile definitions
// (StructureDefinition, ValueSet, CodeSystem, and their conformance-resource
// neighbors) into an in-memory, executable validation program, then checks
// candidate resource documents against one or more named profiles.
//
// # Quick start
//
//	import (
//	    fs "github.com/fhirschema/compiler"
//	    "github.com/fhirschema/compiler/engine"
//	)
//
//	v, err := engine.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := v.LoadFiles(ctx, "./profiles"); err != nil {
//	    log.Fatal(err)
//	}
//	result := v.Validate(ctx, resourceJSON, fs.ValidateOptions{
//	    Profiles: []string{"http://hl7.org/fhir/StructureDefinition/Patient"},
//	})
//	if !result.Success {
//	    fmt.Println(result.Errors)
//	}
//
// # Pipeline
//
// Compilation runs leaves-first over a dependency DAG that tolerates
// cycles: Resource Registry -> Dependency Analyzer -> Topological Sorter ->
// Intermediate Form Builder -> Schema Compiler -> Concept Hierarchy Engine.
// The result is a URL-keyed map of CompiledValidator values, executed at
// request time by the Validator Runtime.
//
// # Architecture
//
// The package follows the small-interface, chain-of-responsibility, and
// pooled-object patterns used throughout this module's sibling packages:
//
//   - registry: ResourceFile bookkeeping and URL deduplication
//   - depgraph: dependency extraction and cycle-tolerant topological sort
//   - ir: StructureDefinition snapshot -> IntermediateElement tree
//   - compiler: IntermediateElement tree -> CompiledValidator
//   - hierarchy: CodeSystem concept forest and ancestor/descendant queries
//   - catalog: pluggable built-in validators for external code systems
//   - runtime: CompiledValidator execution against dynjson documents
//   - pkgcache: FHIR package acquisition (the external collaborator)
//   - engine: the facade tying the above into New/LoadPackages/Validate
package fhirschema
