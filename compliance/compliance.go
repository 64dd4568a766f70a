package compliance

// ComplianceMode selects how aggressively the library rejects ambiguity.
//
// Strict mode prefers explicit failure over silent acceptance.
// Permissive mode falls back to a slower but unambiguous path and keeps going.
type ComplianceMode int

const (
	Permissive ComplianceMode = iota
	Strict
)

func (m ComplianceMode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// Parse maps "strict" and "permissive" (or "") to a mode.
func Parse(s string) (ComplianceMode, bool) {
	switch s {
	case "", "permissive":
		return Permissive, true
	case "strict":
		return Strict, true
	default:
		return Permissive, false
	}
}
