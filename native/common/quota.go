package common

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaStakersExceeded  = errors.New("quota stakers cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount    uint32
	StakersUsed uint64
	EpochID     uint64
}

// Quota defines the limits enforced for a module interaction per address.
// StakersUsed counts the stakers touched by bulk calls such as mass bonds and
// quick unbonds.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxStakersPerEpoch  uint64
	EpochSeconds        uint32
}

// Epoch returns the quota epoch that contains the unix timestamp now.
func (q Quota) Epoch(now int64) uint64 {
	if now <= 0 {
		return 0
	}
	if q.EpochSeconds == 0 {
		return uint64(now) / 60
	}
	return uint64(now) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and staker usage fit
// within the configured quota. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addStakers uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addStakers > 0 {
		if next.StakersUsed > math.MaxUint64-addStakers {
			return prev, ErrQuotaCounterOverflow
		}
		next.StakersUsed += addStakers
	}
	if q.MaxStakersPerEpoch > 0 && next.StakersUsed > q.MaxStakersPerEpoch {
		return prev, ErrQuotaStakersExceeded
	}

	return next, nil
}

// QuotaBook tracks quota usage per address.
type QuotaBook struct {
	mu    sync.Mutex
	quota Quota
	usage map[[20]byte]QuotaNow
}

// NewQuotaBook returns an empty book enforcing q.
func NewQuotaBook(q Quota) *QuotaBook {
	return &QuotaBook{quota: q, usage: make(map[[20]byte]QuotaNow)}
}

// Charge records one request touching stakers stakers for addr at now. Usage
// is left unchanged when the quota would be exceeded.
func (b *QuotaBook) Charge(addr [20]byte, now int64, stakers uint64) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := CheckQuota(b.quota, b.quota.Epoch(now), b.usage[addr], 1, stakers)
	if err != nil {
		return err
	}
	b.usage[addr] = next
	return nil
}
