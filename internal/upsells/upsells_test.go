package upsells

import (
	"testing"

	"github.com/vkultra/mitski/internal/models"
)

func TestCandidatesSkipsPresetAndEmptyTrigger(t *testing.T) {
	list := []*models.Upsell{
		{ID: 1, IsPreset: true, TriggerTerm: "upgrade"},
		{ID: 2, IsPreset: false, TriggerTerm: ""},
		{ID: 3, IsPreset: false, TriggerTerm: "bonus"},
	}
	got := Candidates(list)
	if len(got) != 1 || got[0].Term != "bonus" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}
