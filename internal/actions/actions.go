// Package actions implements C10's action-facing slice of spec §4.10: the
// trigger-library detection candidates C8's post-scan step matches an AI
// reply against.
package actions

import (
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/triggers"
)

// Candidates builds the action-name detection list for triggers.Detect.
func Candidates(actions []*models.Action) []triggers.Candidate {
	out := make([]triggers.Candidate, 0, len(actions))
	for _, a := range actions {
		out = append(out, triggers.Candidate{Term: a.Name, Ref: a})
	}
	return out
}
