package triggers

import "testing"

func TestDetectReturnsFirstMatchInConfigOrder(t *testing.T) {
	candidates := []Candidate{
		{Term: "premium", Ref: "premium-offer"},
		{Term: "vip", Ref: "vip-offer"},
	}
	got, ok := Detect("quero o pacote VIP agora", candidates)
	if !ok || got.Ref != "vip-offer" {
		t.Fatalf("got %#v, ok=%v", got, ok)
	}
}

func TestDetectIsCaseInsensitive(t *testing.T) {
	_, ok := Detect("PACOTE Premium", []Candidate{{Term: "premium"}})
	if !ok {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestDetectSkipsBlankTerms(t *testing.T) {
	_, ok := Detect("anything", []Candidate{{Term: "  "}})
	if ok {
		t.Fatalf("blank term should never match")
	}
}

func TestSubstituteSuppressesWhenMentionDominatesShortMessage(t *testing.T) {
	result, suppressed := Substitute("VIP", "VIP", "pitch text")
	if !suppressed || result != "pitch text" {
		t.Fatalf("got %q suppressed=%v", result, suppressed)
	}
}

func TestSubstituteAppendsWhenMessageIsLong(t *testing.T) {
	aiText := "Aqui está uma explicação bem detalhada sobre o pacote VIP que temos disponível para você."
	result, suppressed := Substitute(aiText, "VIP", "pitch text")
	if suppressed {
		t.Fatalf("expected append, not suppression")
	}
	if result != aiText+"\n\npitch text" {
		t.Fatalf("got %q", result)
	}
}

func TestSubstitutePixReplacesPlaceholder(t *testing.T) {
	got := SubstitutePix("pague aqui: {pix}", "00020126")
	if got != "pague aqui: 00020126" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstitutePixLeavesTextWithoutPlaceholderUnchanged(t *testing.T) {
	got := SubstitutePix("sem placeholder", "00020126")
	if got != "sem placeholder" {
		t.Fatalf("got %q", got)
	}
}

func TestParseDiscountNegotiationExtractsAmountCents(t *testing.T) {
	amount, ok := ParseDiscountNegotiation("claro! {desconto}{35} só hoje", "desconto")
	if !ok || amount != 3500 {
		t.Fatalf("got amount=%d ok=%v", amount, ok)
	}
}

func TestParseDiscountNegotiationIsCaseInsensitiveAndEmbedded(t *testing.T) {
	amount, ok := ParseDiscountNegotiation("texto antes {DESCONTO}{12.50} texto depois", "desconto")
	if !ok || amount != 1250 {
		t.Fatalf("got amount=%d ok=%v", amount, ok)
	}
}

func TestParseDiscountNegotiationNoMatch(t *testing.T) {
	if _, ok := ParseDiscountNegotiation("sem termo nenhum", "desconto"); ok {
		t.Fatalf("expected no match")
	}
}
