package engine

import (
	"encoding/json"
	"os"

	"github.com/fhirschema/compiler/dynjson"
)

// resolveDocument turns whatever a caller passed as a document into raw
// bytes plus a parsed dynjson.Value, per the facade's contract: a string
// that names a real file is read from disk; otherwise a string is parsed
// as JSON; anything else is expected to already be an in-memory JSON
// value (map[string]any, []byte, json.RawMessage). A string or byte slice
// that fails to parse as JSON is wrapped as a raw JSON string value
// instead of erroring, so downstream structural validation reports it as
// a type mismatch rather than the facade rejecting it outright.
func resolveDocument(document any) (dynjson.Value, []byte) {
	switch d := document.(type) {
	case string:
		if data, err := os.ReadFile(d); err == nil {
			return parseOrLiteral(data)
		}
		return parseOrLiteral([]byte(d))
	case json.RawMessage:
		return parseOrLiteral(d)
	case []byte:
		return parseOrLiteral(d)
	default:
		v := dynjson.FromAny(document)
		raw, err := v.MarshalJSON()
		if err != nil {
			raw = []byte("null")
		}
		return v, raw
	}
}

func parseOrLiteral(data []byte) (dynjson.Value, []byte) {
	v, err := dynjson.Parse(data)
	if err != nil {
		return dynjson.String(string(data)), data
	}
	return v, data
}
