package metrics

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"nhbstake/core/events"
)

func TestStakeMetricsFoldEvents(t *testing.T) {
	m := Stake()
	if Stake() != m {
		t.Fatalf("registry must be a singleton")
	}

	m.Emit(events.StakeBonded{Period: 100, Amount: big.NewInt(250)})
	m.Emit(events.StakeBonded{Period: 100, Amount: big.NewInt(50)})
	m.Emit(events.StakeUnbonded{Period: 100, Amount: big.NewInt(20)})
	m.Emit(events.RewardsDistributed{Asset: "juno", Amount: big.NewInt(7)})
	m.Emit(events.RewardsWithdrawn{Asset: "", Amount: big.NewInt(3)})
	m.Emit(events.StakeUnbondAll{Enabled: true})

	if got := testutil.ToFloat64(m.bonded.WithLabelValues("100")); got != 300 {
		t.Fatalf("bonded: got %v", got)
	}
	if got := testutil.ToFloat64(m.unbonded.WithLabelValues("100")); got != 20 {
		t.Fatalf("unbonded: got %v", got)
	}
	if got := testutil.ToFloat64(m.distributed.WithLabelValues("juno")); got != 7 {
		t.Fatalf("distributed: got %v", got)
	}
	if got := testutil.ToFloat64(m.withdrawn.WithLabelValues("unknown")); got != 3 {
		t.Fatalf("withdrawn: got %v", got)
	}
	if got := testutil.ToFloat64(m.unbondAll); got != 1 {
		t.Fatalf("unbond all gauge: got %v", got)
	}
	m.Emit(events.StakeUnbondAll{Enabled: false})
	if got := testutil.ToFloat64(m.unbondAll); got != 0 {
		t.Fatalf("unbond all gauge not cleared: got %v", got)
	}
}

func TestStakeMetricsOperations(t *testing.T) {
	m := Stake()
	m.ObserveOperation("bond", nil)
	m.ObserveOperation("bond", errors.New("boom"))
	m.ObserveOperation("", nil)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("bond", "error")); got != 1 {
		t.Fatalf("bond errors: got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "success")); got != 1 {
		t.Fatalf("unknown op: got %v", got)
	}

	var nilMetrics *StakeMetrics
	nilMetrics.ObserveOperation("bond", nil)
	nilMetrics.Emit(events.StakeClaimed{Amount: big.NewInt(1)})
}

func TestToFloatHandlesEdges(t *testing.T) {
	if toFloat(nil) != 0 || toFloat(big.NewInt(-5)) != 0 {
		t.Fatalf("non-positive amounts must count as zero")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	if toFloat(huge) <= 0 {
		t.Fatalf("huge amounts must saturate")
	}
}
