package actions

import (
	"testing"

	"github.com/vkultra/mitski/internal/models"
)

func TestCandidatesPreservesOrder(t *testing.T) {
	list := []*models.Action{{ID: 1, Name: "liberar_grupo"}, {ID: 2, Name: "enviar_previa"}}
	got := Candidates(list)
	if len(got) != 2 || got[0].Term != "liberar_grupo" || got[1].Term != "enviar_previa" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}
