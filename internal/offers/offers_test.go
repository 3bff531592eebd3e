package offers

import (
	"testing"

	"github.com/vkultra/mitski/internal/models"
)

func TestCandidatesPreservesOrder(t *testing.T) {
	list := []*models.Offer{{ID: 1, Name: "vip"}, {ID: 2, Name: "premium"}}
	got := Candidates(list)
	if len(got) != 2 || got[0].Term != "vip" || got[1].Term != "premium" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestDiscountCandidatesFiltersEmptyTrigger(t *testing.T) {
	list := []*models.Offer{{ID: 1, DiscountTrigger: ""}, {ID: 2, DiscountTrigger: "desconto"}}
	got := DiscountCandidates(list)
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestManualVerificationCandidatesFiltersEmptyTrigger(t *testing.T) {
	list := []*models.Offer{{ID: 1, ManualVerificationTrigger: "comprovante"}, {ID: 2}}
	got := ManualVerificationCandidates(list)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}
