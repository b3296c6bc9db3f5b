package summarizer

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Analysis is the structured summary of a repository README.
type Analysis struct {
	Summary   string   `json:"summary"`
	CoolFacts []string `json:"cool_facts"`
}

var (
	summaryPattern   = regexp2.MustCompile(`SUMMARY:(.*?)(?=COOL_FACTS:|$)`, regexp2.Singleline)
	coolFactsPattern = regexp2.MustCompile(`COOL_FACTS:(.*?)$`, regexp2.Singleline)
)

// ParseAnalysis reads the SUMMARY and COOL_FACTS sections of a model reply.
// Facts are separated by "|". Missing sections yield empty values.
func ParseAnalysis(text string) *Analysis {
	analysis := &Analysis{CoolFacts: []string{}}
	if m, err := summaryPattern.FindStringMatch(text); err == nil && m != nil {
		analysis.Summary = strings.TrimSpace(m.GroupByNumber(1).String())
	}
	if m, err := coolFactsPattern.FindStringMatch(text); err == nil && m != nil {
		for _, fact := range strings.Split(m.GroupByNumber(1).String(), "|") {
			if fact = strings.TrimSpace(fact); fact != "" {
				analysis.CoolFacts = append(analysis.CoolFacts, fact)
			}
		}
	}
	return analysis
}
