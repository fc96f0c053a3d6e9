package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	r := func(v Verdict, threats ...string) Result { return Result{Verdict: v, ThreatNames: threats} }

	tests := []struct {
		name    string
		results []Result
		want    Verdict
		threats []string
	}{
		{name: "all clean", results: []Result{r(VerdictClean), r(VerdictClean)}, want: VerdictClean, threats: []string{}},
		{name: "infected dominates clean", results: []Result{r(VerdictClean), r(VerdictInfected, "Eicar")}, want: VerdictInfected, threats: []string{"Eicar"}},
		{name: "infected dominates error", results: []Result{r(VerdictError), r(VerdictInfected, "Eicar")}, want: VerdictInfected, threats: []string{"Eicar"}},
		{name: "threat name on clean verdict still infected", results: []Result{r(VerdictClean, "Heuristic.X")}, want: VerdictInfected, threats: []string{"Heuristic.X"}},
		{name: "threat names are unioned", results: []Result{r(VerdictInfected, "A", "B"), r(VerdictInfected, "B", "C")}, want: VerdictInfected, threats: []string{"A", "B", "C"}},
		{name: "suspicious beats clean", results: []Result{r(VerdictClean), r(VerdictSuspicious)}, want: VerdictSuspicious, threats: []string{}},
		{name: "one success is enough", results: []Result{r(VerdictError), r(VerdictClean)}, want: VerdictClean, threats: []string{}},
		{name: "all errors", results: []Result{r(VerdictError), r(VerdictError)}, want: VerdictError, threats: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, threats := Reduce(tt.results)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.threats, threats)
		})
	}
}
