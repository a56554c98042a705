package fhirschema

// FHIRVersion identifies a supported FHIR specification release.
type FHIRVersion string

// Supported FHIR versions.
const (
	R4  FHIRVersion = "R4"
	R4B FHIRVersion = "R4B"
	R5  FHIRVersion = "R5"
)

// String returns the version code.
func (v FHIRVersion) String() string { return string(v) }

// IsValid reports whether v is one of the supported versions.
func (v FHIRVersion) IsValid() bool {
	switch v {
	case R4, R4B, R5:
		return true
	default:
		return false
	}
}

// versionConfig captures the default package coordinates for one FHIR
// version, used when a caller asks to load "the core package" without
// naming one explicitly.
type versionConfig struct {
	CorePackageName    string
	CorePackageVersion string
	TermPackageName    string
	TermPackageVersion string
	FHIRVersionString  string
}

var versionConfigs = map[FHIRVersion]versionConfig{
	R4: {
		CorePackageName:    "hl7.fhir.r4.core",
		CorePackageVersion: "4.0.1",
		TermPackageName:    "hl7.terminology.r4",
		TermPackageVersion: "6.2.0",
		FHIRVersionString:  "4.0.1",
	},
	R4B: {
		CorePackageName:    "hl7.fhir.r4b.core",
		CorePackageVersion: "4.3.0",
		TermPackageName:    "hl7.terminology.r4",
		TermPackageVersion: "6.2.0",
		FHIRVersionString:  "4.3.0",
	},
	R5: {
		CorePackageName:    "hl7.fhir.r5.core",
		CorePackageVersion: "5.0.0",
		TermPackageName:    "hl7.terminology.r5",
		TermPackageVersion: "6.2.0",
		FHIRVersionString:  "5.0.0",
	},
}

// VersionConfig returns the default package coordinates for v.
func VersionConfig(v FHIRVersion) (name, version, termName, termVersion string, ok bool) {
	cfg, ok := versionConfigs[v]
	if !ok {
		return "", "", "", "", false
	}
	return cfg.CorePackageName, cfg.CorePackageVersion, cfg.TermPackageName, cfg.TermPackageVersion, true
}
