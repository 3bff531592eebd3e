// Package offers implements C10's offer-facing slice of spec §4.10: building
// the case-insensitive detection candidates the post-scan step (C8) matches
// an AI reply against, and narrowing the active-offer list down to the
// subsets each post-scan check (pitch, discount negotiation, manual
// verification) actually needs.
package offers

import (
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/triggers"
)

// Candidates builds the offer-name detection list for triggers.Detect,
// preserving offers' config order so "first by config order wins" (spec
// §4.10) matches the order ListActiveByBot returns.
func Candidates(offers []*models.Offer) []triggers.Candidate {
	out := make([]triggers.Candidate, 0, len(offers))
	for _, o := range offers {
		out = append(out, triggers.Candidate{Term: o.Name, Ref: o})
	}
	return out
}

// DiscountCandidates returns only offers with a configured discount
// negotiation trigger, the set scanDiscountNegotiation iterates.
func DiscountCandidates(offers []*models.Offer) []*models.Offer {
	out := make([]*models.Offer, 0, len(offers))
	for _, o := range offers {
		if o.DiscountTrigger != "" {
			out = append(out, o)
		}
	}
	return out
}

// ManualVerificationCandidates returns only offers with a configured
// manual-verification trigger, the set scanManualVerification iterates.
func ManualVerificationCandidates(offers []*models.Offer) []*models.Offer {
	out := make([]*models.Offer, 0, len(offers))
	for _, o := range offers {
		if o.ManualVerificationTrigger != "" {
			out = append(out, o)
		}
	}
	return out
}
