package model

import "fmt"

// Verdict is the outcome of scanning one file.
type Verdict int

const (
	// VerdictError means the scan did not complete: the server was
	// unreachable, timed out, answered with garbage, or rejected the request.
	VerdictError Verdict = iota

	// VerdictClean means the server answered 204 No Content.
	VerdictClean

	// VerdictInfected means the server answered 200 with an infection header.
	VerdictInfected
)

// String returns the lower-case name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictError:
		return "error"
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	default:
		return "unknown"
	}
}

// ParseVerdict converts a verdict name back into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "error":
		return VerdictError, nil
	case "clean":
		return VerdictClean, nil
	case "infected":
		return VerdictInfected, nil
	default:
		return VerdictError, fmt.Errorf("unknown verdict %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so verdicts appear by name in JSON.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, err := ParseVerdict(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
