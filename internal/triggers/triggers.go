// Package triggers implements the detection and substitution rules
// shared by offers, actions, upsells, and discount negotiation (spec
// §4.10): case-insensitive substring matching with first-by-config-order
// precedence, and the suppress-vs-append substitution policy.
package triggers

import (
	"regexp"
	"strconv"
	"strings"
)

// Candidate is anything detectable by case-insensitive substring
// containment against AI output: an offer name, an action name, an
// upsell trigger term, a manual-verification trigger, etc.
type Candidate struct {
	Term string
	Ref  any // caller-supplied payload (e.g. *models.Offer) returned on match
}

// Detect scans text for the first candidate (in slice order) whose Term
// appears as a case-insensitive substring. Blank terms never match.
func Detect(text string, candidates []Candidate) (Candidate, bool) {
	lower := strings.ToLower(text)
	for _, c := range candidates {
		term := strings.TrimSpace(c.Term)
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return c, true
		}
	}
	return Candidate{}, false
}

// Substitute applies the spec §4.10 policy: if the matched term makes up
// at least 70% of the total message length and the message is shorter
// than 50 characters, the AI's message is suppressed entirely (replaced
// by replacement); otherwise replacement is appended after the AI's
// message.
func Substitute(aiText, matchedTerm, replacement string) (result string, suppressed bool) {
	total := len([]rune(aiText))
	term := len([]rune(matchedTerm))
	if total == 0 {
		return replacement, true
	}
	ratio := float64(term) / float64(total)
	if ratio >= 0.70 && total < 50 {
		return replacement, true
	}
	return aiText + "\n\n" + replacement, false
}

// PixPlaceholder is the token offers/upsells/discounts embed in blocks or
// AI output to be substituted with the real (or preview) PIX code.
const PixPlaceholder = "{pix}"

// PreviewPixCode is substituted for PixPlaceholder when a block is sent
// in admin preview mode (spec §4.10: "no ledger effect").
const PreviewPixCode = "PREVIEW_PIX_CODE"

// SubstitutePix replaces every occurrence of PixPlaceholder in text with
// code.
func SubstitutePix(text, code string) string {
	if !strings.Contains(text, PixPlaceholder) {
		return text
	}
	return strings.ReplaceAll(text, PixPlaceholder, code)
}

// ParseDiscountNegotiation scans text for an embedded `{term}{amount}`
// marker (case-insensitive, may appear anywhere in the message) and
// returns the amount in cents. Amount is written in currency units, as an
// integer or with up to two decimals (dot or comma), e.g. "{desconto}{35}"
// means R$35.00 and "{desconto}{12.50}" means R$12.50.
func ParseDiscountNegotiation(text, term string) (amountCents int64, ok bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return 0, false
	}
	pattern := regexp.MustCompile(`(?i)\{` + regexp.QuoteMeta(term) + `\}\s*\{\s*(\d+(?:[.,]\d{1,2})?)\s*\}`)
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(m[1], ",", ".")
	units, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int64(units*100 + 0.5), true
}
