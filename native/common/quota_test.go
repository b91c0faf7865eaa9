package common

import (
	"errors"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaStakers(t *testing.T) {
	q := Quota{MaxStakersPerEpoch: 1000}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.StakersUsed != 1000 {
		t.Fatalf("unexpected stakers used: %d", next.StakersUsed)
	}

	denied, err := CheckQuota(q, 5, next, 0, 1)
	if !errors.Is(err, ErrQuotaStakersExceeded) {
		t.Fatalf("expected ErrQuotaStakersExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 6, next, 0, 500)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.StakersUsed != 500 {
		t.Fatalf("unexpected stakers used after rollover: %d", rollover.StakersUsed)
	}
}

func TestQuotaBookCharge(t *testing.T) {
	book := NewQuotaBook(Quota{MaxRequestsPerEpoch: 2, EpochSeconds: 60})
	addr := [20]byte{1}
	other := [20]byte{2}

	for i := 0; i < 2; i++ {
		if err := book.Charge(addr, 120, 0); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}
	if err := book.Charge(addr, 179, 0); !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if err := book.Charge(other, 179, 0); err != nil {
		t.Fatalf("other address must have its own budget: %v", err)
	}
	if err := book.Charge(addr, 180, 0); err != nil {
		t.Fatalf("expected a fresh budget in the next epoch: %v", err)
	}
}

func TestPausesGuard(t *testing.T) {
	pauses := NewPauses()
	if err := Guard(pauses, "stake"); err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}
	pauses.Set("stake", true)
	if err := Guard(pauses, "stake"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if got := pauses.Paused(); len(got) != 1 || got[0] != "stake" {
		t.Fatalf("unexpected paused list: %v", got)
	}
	pauses.Set("stake", false)
	if err := Guard(pauses, "stake"); err != nil {
		t.Fatalf("expected resumed module, got %v", err)
	}
}
