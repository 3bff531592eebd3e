package repository

import (
	"reflect"
	"testing"
)

func TestSplitTriggerTermsTrimsAndDropsBlankLines(t *testing.T) {
	got := splitTriggerTerms("preco\n  valor \n\ncusto\n")
	want := []string{"preco", "valor", "custo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestSplitTriggerTermsEmptyInput(t *testing.T) {
	if got := splitTriggerTerms("   "); got != nil {
		t.Fatalf("expected nil for blank input, got %#v", got)
	}
}
