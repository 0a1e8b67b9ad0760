package model

// Summary counts the verdicts of a batch of scans.
type Summary struct {
	Total    int `json:"total"`
	Clean    int `json:"clean"`
	Infected int `json:"infected"`
	Errors   int `json:"errors"`
}

// Summarize counts verdicts over scans. Nil entries are skipped.
func Summarize(scans []*FileScan) Summary {
	var s Summary
	for _, scan := range scans {
		if scan == nil {
			continue
		}
		s.Total++
		switch scan.Verdict {
		case VerdictClean:
			s.Clean++
		case VerdictInfected:
			s.Infected++
		default:
			s.Errors++
		}
	}
	return s
}

// HasFindings reports whether any scan was infected or failed.
func (s Summary) HasFindings() bool {
	return s.Infected > 0 || s.Errors > 0
}

// Infected returns the infected scans in their original order.
func Infected(scans []*FileScan) []*FileScan {
	var out []*FileScan
	for _, scan := range scans {
		if scan != nil && scan.Verdict == VerdictInfected {
			out = append(out, scan)
		}
	}
	return out
}
