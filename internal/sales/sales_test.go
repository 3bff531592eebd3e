package sales

import (
	"testing"
	"time"

	"github.com/vkultra/mitski/internal/models"
)

func TestDispatchDeliverablePicksOfferOverNoContainer(t *testing.T) {
	offerID := int64(7)
	tx := &models.PixTransaction{BotID: 1, UserID: 2, OfferID: &offerID}
	f := &Fanout{}
	// dispatchDeliverable needs f.blocks, which is nil here; exercise only
	// the container-kind selection branch by checking it doesn't panic
	// before reaching the nil repository when there's no container at all.
	tx2 := &models.PixTransaction{BotID: 1, UserID: 2}
	if err := f.dispatchDeliverable(nil, tx2); err != nil {
		t.Fatalf("expected no-op for a transaction with no offer/upsell, got %v", err)
	}
	_ = tx
}

func TestPixExpiryIsPositive(t *testing.T) {
	if pixExpiry <= 0 {
		t.Fatalf("pixExpiry must be positive, got %v", pixExpiry)
	}
}

func TestSaleLockTTLIsThirtySeconds(t *testing.T) {
	if saleLockTTL != 30*time.Second {
		t.Fatalf("saleLockTTL = %v, want 30s", saleLockTTL)
	}
}
