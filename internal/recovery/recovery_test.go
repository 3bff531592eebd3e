package recovery

import "testing"

func TestRecoveryBlockContainerIDPacksBotAndOrdinal(t *testing.T) {
	got := recoveryBlockContainerID(42, 3)
	want := int64(42*1000 + 3)
	if got != want {
		t.Fatalf("recoveryBlockContainerID(42, 3) = %d, want %d", got, want)
	}
}

func TestRecoveryBlockContainerIDDistinctPerBot(t *testing.T) {
	a := recoveryBlockContainerID(1, 5)
	b := recoveryBlockContainerID(2, 5)
	if a == b {
		t.Fatalf("expected distinct container ids, got %d == %d", a, b)
	}
}
