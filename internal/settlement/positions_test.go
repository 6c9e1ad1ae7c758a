package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPositionIDs_DeterministicAndDistinct(t *testing.T) {
	conditionID := common.HexToHash("0xaaaabbbbccccddddeeeeffff00001111222233334444555566667777888899aa")

	yes1, no1 := PositionIDs(conditionID)
	yes2, no2 := PositionIDs(conditionID)

	if yes1.Cmp(yes2) != 0 || no1.Cmp(no2) != 0 {
		t.Error("derivation must be deterministic for a fixed condition")
	}
	if yes1.Cmp(no1) == 0 {
		t.Error("YES and NO position ids must differ")
	}
}

func TestPositionIDs_SwappingIndexSetsSwapsIDs(t *testing.T) {
	conditionID := common.HexToHash("0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

	yes := PositionID(USDCeAddress, CollectionID(conditionID, IndexSetYes))
	no := PositionID(USDCeAddress, CollectionID(conditionID, IndexSetNo))

	swappedYes := PositionID(USDCeAddress, CollectionID(conditionID, IndexSetNo))
	swappedNo := PositionID(USDCeAddress, CollectionID(conditionID, IndexSetYes))

	if yes.Cmp(swappedNo) != 0 || no.Cmp(swappedYes) != 0 {
		t.Error("swapping index sets must swap the position ids")
	}
}

func TestCollectionID_DiffersAcrossConditions(t *testing.T) {
	a := CollectionID(common.HexToHash("0x01"), IndexSetYes)
	b := CollectionID(common.HexToHash("0x02"), IndexSetYes)
	if a == b {
		t.Error("collection ids for different conditions must differ")
	}
}

func TestUsdcUnits_Conversion(t *testing.T) {
	tests := []struct {
		amount float64
		want   int64
	}{
		{1, 1_000_000},
		{0.5, 500_000},
		{10.123456, 10_123_456},
		{0, 0},
	}
	for _, tt := range tests {
		if got := usdcUnits(tt.amount); got.Int64() != tt.want {
			t.Errorf("usdcUnits(%v) = %v, want %v", tt.amount, got, tt.want)
		}
	}

	// Round trip.
	if got := unitsToUSDC(big.NewInt(2_500_000)); got != 2.5 {
		t.Errorf("unitsToUSDC(2500000) = %v, want 2.5", got)
	}
}

func TestBinaryPartition(t *testing.T) {
	p := binaryPartition()
	if len(p) != 2 || p[0].Int64() != IndexSetYes || p[1].Int64() != IndexSetNo {
		t.Errorf("partition = %v, want [1 2]", p)
	}
}
