package catalog

// Canonical URLs for the external vocabularies the built-in catalog
// carries stand-ins for.
const (
	SystemLOINC    = "http://loinc.org"
	SystemUCUM     = "http://unitsofmeasure.org"
	SystemICD10    = "http://hl7.org/fhir/sid/icd-10"
	SystemTimezone = "https://www.iana.org/time-zones"
)

// Default returns a Catalog pre-populated with shape-only stand-ins for
// large external vocabularies that are out of scope to fully validate:
// LOINC, UCUM, ICD-10, and IANA timezone names.
func Default() *Catalog {
	c := New()
	c.Register(NewRegexProvider(SystemLOINC, `^\d{1,8}-\d$`, "LOINC code (stand-in: NNNNN-N shape only)"))
	c.Register(NewRegexProvider(SystemUCUM, `^[A-Za-z0-9\.\*/\^\-\[\]%'"]+$`, "UCUM unit expression (stand-in: character-set check only)"))
	c.Register(NewRegexProvider(SystemICD10, `^[A-Z][0-9]{2}(\.[0-9A-Z]{1,4})?$`, "ICD-10 code (stand-in: letter+digits shape only)"))
	c.Register(NewRegexProvider(SystemTimezone, `^[A-Za-z]+(/[A-Za-z_\-+0-9]+)+$|^UTC$|^Etc/(GMT|UTC).*$`, "IANA timezone identifier (stand-in: Area/Location shape only)"))
	return c
}
