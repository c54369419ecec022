package pactmock

import (
	"fmt"
	"strings"
)

// VerificationResult reports whether every registered interaction was
// exercised, listing the ones that were not in registration order.
type VerificationResult struct {
	AllMatched bool                 `json:"all_matched"`
	Unmatched  []InteractionSummary `json:"unmatched"`
}

// Verifier answers the end-of-test question: did every registered
// interaction receive at least one fully matching request? It only reads
// the registry; requests arriving while a verdict is being produced land
// in the next one.
type Verifier struct {
	interactions *Interactions
}

func NewVerifier(interactions *Interactions) *Verifier {
	return &Verifier{interactions: interactions}
}

func (v *Verifier) Verify() VerificationResult {
	unmatched := v.interactions.Unmatched()
	result := VerificationResult{
		AllMatched: len(unmatched) == 0,
		Unmatched:  make([]InteractionSummary, 0, len(unmatched)),
	}
	for _, interaction := range unmatched {
		result.Unmatched = append(result.Unmatched, interaction.summary())
	}
	return result
}

// WarningText renders the verdict as the plain-text report served by the
// verification endpoint.
func (r VerificationResult) WarningText() string {
	if r.AllMatched {
		return "Interactions matched"
	}

	var report strings.Builder
	report.WriteString("Interactions did not match:\n")
	for _, interaction := range r.Unmatched {
		fmt.Fprintf(&report, "\tmissing request: %s %s (%s)\n",
			interaction.Method, interaction.Path, interaction.Description)
	}
	return report.String()
}
