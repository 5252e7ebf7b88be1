package domain

import "strings"

// Intent classifies what a question is asking for. Retrieval depth, fusion
// weights and threshold strictness are all tuned per intent.
type Intent string

const (
	// IntentDiscovery finds schemes matching a situation ("schemes for farmers").
	IntentDiscovery Intent = "DISCOVERY"
	// IntentEligibility asks who qualifies for a known scheme.
	IntentEligibility Intent = "ELIGIBILITY"
	// IntentBenefits asks what a scheme provides.
	IntentBenefits Intent = "BENEFITS"
	// IntentComparison asks how two or more schemes differ.
	IntentComparison Intent = "COMPARISON"
	// IntentProcedure asks how to apply or which documents are needed.
	IntentProcedure Intent = "PROCEDURE"
	// IntentGeneral covers everything else.
	IntentGeneral Intent = "GENERAL"
)

// Intents lists every valid intent label.
func Intents() []Intent {
	return []Intent{
		IntentDiscovery,
		IntentEligibility,
		IntentBenefits,
		IntentComparison,
		IntentProcedure,
		IntentGeneral,
	}
}

// ParseIntent maps a label to an Intent. Unknown or empty labels fall back to
// IntentGeneral so a sloppy classifier reply never fails a request.
func ParseIntent(label string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(label))) {
	case IntentDiscovery:
		return IntentDiscovery
	case IntentEligibility:
		return IntentEligibility
	case IntentBenefits:
		return IntentBenefits
	case IntentComparison:
		return IntentComparison
	case IntentProcedure:
		return IntentProcedure
	default:
		return IntentGeneral
	}
}

func (i Intent) String() string {
	return string(i)
}
