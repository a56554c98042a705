package compiler

import (
	"encoding/json"

	"github.com/gofhir/fhir/r4"

	"github.com/fhirschema/compiler/hierarchy"
	"github.com/fhirschema/compiler/registry"
)

func propertyStringValue(p r4.CodeSystemConceptProperty) (string, bool) {
	switch {
	case p.ValueCode != nil:
		return *p.ValueCode, true
	case p.ValueString != nil:
		return *p.ValueString, true
	case p.ValueBoolean != nil:
		if *p.ValueBoolean {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

func (c *Compiler) compileCodeSystem(rf registry.ResourceFile) {
	var cs r4.CodeSystem
	if err := json.Unmarshal(rf.Raw, &cs); err != nil {
		c.warnf("%s: malformed CodeSystem: %v", rf.URL, err)
		return
	}

	content := ""
	if cs.Content != nil {
		content = string(*cs.Content)
	}

	switch content {
	case "complete":
		codes := collectCodes(cs.Concept)
		c.schemas[rf.URL] = EnumOf(codes)
		c.hierarchies[rf.URL] = hierarchy.Build(toConceptNodes(cs.Concept))
	case "example", "not-present", "fragment":
		c.schemas[rf.URL] = StringMinLen1()
	case "supplement":
		// Contributes no validator.
	default:
		c.warnf("%s: unrecognized CodeSystem content %q", rf.URL, content)
	}
}

func collectCodes(concepts []r4.CodeSystemConcept) []string {
	var out []string
	var walk func([]r4.CodeSystemConcept)
	walk = func(cs []r4.CodeSystemConcept) {
		for _, c := range cs {
			if c.Code != nil {
				out = append(out, *c.Code)
			}
			walk(c.Concept)
		}
	}
	walk(concepts)
	return out
}

func toConceptNodes(concepts []r4.CodeSystemConcept) []*hierarchy.ConceptNode {
	out := make([]*hierarchy.ConceptNode, 0, len(concepts))
	for _, c := range concepts {
		node := &hierarchy.ConceptNode{
			Code:     derefString(c.Code),
			Display:  derefString(c.Display),
			Children: toConceptNodes(c.Concept),
		}
		for _, p := range c.Property {
			if s, ok := propertyStringValue(p); ok {
				node.Properties = append(node.Properties, hierarchy.Property{Code: derefString(p.Code), Value: s})
			}
		}
		out = append(out, node)
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
