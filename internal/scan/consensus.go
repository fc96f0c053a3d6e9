package scan

import (
	strutil "kycvault/pkg/platform/strings"
)

// Reduce folds per-scanner results into one verdict:
// any infected verdict or reported threat wins, then suspicious, then clean
// if at least one scanner succeeded. All errors yields error.
func Reduce(results []Result) (Verdict, []string) {
	lists := make([][]string, 0, len(results))
	var infected, suspicious, clean bool
	for _, r := range results {
		lists = append(lists, r.ThreatNames)
		switch r.Verdict {
		case VerdictInfected:
			infected = true
		case VerdictSuspicious:
			suspicious = true
		case VerdictClean:
			clean = true
		}
	}
	threats := strutil.Union(lists...)

	switch {
	case infected || len(threats) > 0:
		return VerdictInfected, threats
	case suspicious:
		return VerdictSuspicious, threats
	case clean:
		return VerdictClean, threats
	default:
		return VerdictError, threats
	}
}
