package position

import (
	"errors"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
)

func q128Times(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(fixedpoint.Q128, uint256.NewInt(n))
}

func testPosition(liquidity uint64) model.Position {
	return model.Position{
		ID:                   "42",
		TickLower:            -600,
		TickUpper:            600,
		Liquidity:            uint256.NewInt(liquidity),
		FeeGrowthInside0Last: new(uint256.Int),
		FeeGrowthInside1Last: new(uint256.Int),
		TokensOwed0:          new(uint256.Int),
		TokensOwed1:          new(uint256.Int),
	}
}

func boundary(tick int32, outside0, outside1 *uint256.Int) *model.TickBoundary {
	return &model.TickBoundary{Tick: tick, Initialized: true, FeeGrowthOutside0: outside0, FeeGrowthOutside1: outside1}
}

func TestUncollectedFeesWrapAround(t *testing.T) {
	pos := testPosition(1000)
	// The global counter wrapped past 2^256 since the position last checkpointed.
	pos.FeeGrowthInside0Last = fixedpoint.SubWrap256(new(uint256.Int), q128Times(3))
	pos.TokensOwed0 = uint256.NewInt(7)

	pool := model.PoolSnapshot{
		CurrentTick:      0,
		FeeGrowthGlobal0: q128Times(2),
		FeeGrowthGlobal1: q128Times(4),
	}
	lower := boundary(-600, new(uint256.Int), new(uint256.Int))
	upper := boundary(600, new(uint256.Int), q128Times(1))

	fees, err := UncollectedFees(pos, pool, lower, upper)
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if !fees.Available {
		t.Fatal("expected fees to be available")
	}
	if fees.Owed0.Uint64() != 5007 {
		t.Fatalf("owed0: got %s want 5007", fees.Owed0.Dec())
	}
	if fees.Owed1.Uint64() != 3000 {
		t.Fatalf("owed1: got %s want 3000", fees.Owed1.Dec())
	}
}

func TestUncollectedFeesOutOfRange(t *testing.T) {
	pos := testPosition(1000)
	pos.FeeGrowthInside0Last = q128Times(1)
	pos.FeeGrowthInside1Last = q128Times(1)

	lower := boundary(-600, q128Times(3), q128Times(1))
	upper := boundary(600, q128Times(1), q128Times(4))

	// Global values are not needed outside the range.
	below := model.PoolSnapshot{CurrentTick: -1200}
	fees, err := UncollectedFees(pos, below, lower, upper)
	if err != nil {
		t.Fatalf("below: %v", err)
	}
	// token0: (3 - 1) - 1 = 1 unit.
	if fees.Owed0.Uint64() != 1000 {
		t.Fatalf("below owed0: got %s want 1000", fees.Owed0.Dec())
	}

	above := model.PoolSnapshot{CurrentTick: 600}
	fees, err = UncollectedFees(pos, above, lower, upper)
	if err != nil {
		t.Fatalf("above: %v", err)
	}
	// token1: (4 - 1) - 1 = 2 units.
	if fees.Owed1.Uint64() != 2000 {
		t.Fatalf("above owed1: got %s want 2000", fees.Owed1.Dec())
	}
}

func TestUncollectedFeesRoundsDown(t *testing.T) {
	pos := testPosition(3)
	half := new(uint256.Int).Rsh(fixedpoint.Q128, 1)
	pool := model.PoolSnapshot{CurrentTick: 0, FeeGrowthGlobal0: half, FeeGrowthGlobal1: new(uint256.Int)}
	lower := boundary(-600, new(uint256.Int), new(uint256.Int))
	upper := boundary(600, new(uint256.Int), new(uint256.Int))

	fees, err := UncollectedFees(pos, pool, lower, upper)
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if fees.Owed0.Uint64() != 1 || !fees.Owed1.IsZero() {
		t.Fatalf("expected (1, 0), got (%s, %s)", fees.Owed0.Dec(), fees.Owed1.Dec())
	}
}

func TestUncollectedFeesIdempotent(t *testing.T) {
	pos := testPosition(123456789)
	pos.FeeGrowthInside0Last = q128Times(5)
	pool := model.PoolSnapshot{CurrentTick: 10, FeeGrowthGlobal0: q128Times(9), FeeGrowthGlobal1: q128Times(1)}
	lower := boundary(-600, q128Times(1), new(uint256.Int))
	upper := boundary(600, q128Times(2), new(uint256.Int))

	first, err := UncollectedFees(pos, pool, lower, upper)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := UncollectedFees(pos, pool, lower, upper)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if first.Owed0.Uint64() != 123456789 {
		t.Fatalf("owed0: got %s", first.Owed0.Dec())
	}
}

func TestUncollectedFeesNeverNegative(t *testing.T) {
	// A checkpoint ahead of the current inside value wraps to a large delta instead of going negative.
	pos := testPosition(1)
	pos.FeeGrowthInside0Last = q128Times(2)
	pool := model.PoolSnapshot{CurrentTick: 0, FeeGrowthGlobal0: q128Times(1), FeeGrowthGlobal1: new(uint256.Int)}
	lower := boundary(-600, new(uint256.Int), new(uint256.Int))
	upper := boundary(600, new(uint256.Int), new(uint256.Int))

	fees, err := UncollectedFees(pos, pool, lower, upper)
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	want := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	if !fees.Owed0.Eq(want) {
		t.Fatalf("owed0: got %s want %s", fees.Owed0.Dec(), want.Dec())
	}
}

func TestUncollectedFeesDataErrors(t *testing.T) {
	pos := testPosition(1000)
	pool := model.PoolSnapshot{CurrentTick: 0, FeeGrowthGlobal0: q128Times(1), FeeGrowthGlobal1: q128Times(1)}
	lower := boundary(-600, new(uint256.Int), new(uint256.Int))
	upper := boundary(600, new(uint256.Int), new(uint256.Int))

	if _, err := UncollectedFees(pos, pool, nil, upper); !errors.Is(err, errs.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable for missing boundary, got %v", err)
	}

	missingOutside := boundary(600, nil, new(uint256.Int))
	if _, err := UncollectedFees(pos, pool, lower, missingOutside); !errors.Is(err, errs.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable for missing outside value, got %v", err)
	}

	noGlobal := model.PoolSnapshot{CurrentTick: 0}
	if _, err := UncollectedFees(pos, noGlobal, lower, upper); !errors.Is(err, errs.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable for missing global, got %v", err)
	}

	uninitialized := &model.TickBoundary{Tick: 600, FeeGrowthOutside0: new(uint256.Int), FeeGrowthOutside1: new(uint256.Int)}
	if _, err := UncollectedFees(pos, pool, lower, uninitialized); !errors.Is(err, errs.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable for uninitialized boundary, got %v", err)
	}

	wrongTick := boundary(660, new(uint256.Int), new(uint256.Int))
	if _, err := UncollectedFees(pos, pool, lower, wrongTick); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input for mismatched boundary, got %v", err)
	}
}

func TestUncollectedFeesZeroLiquidity(t *testing.T) {
	pos := testPosition(0)
	pos.TokensOwed0 = uint256.NewInt(11)
	pos.TokensOwed1 = uint256.NewInt(22)

	fees, err := UncollectedFees(pos, model.PoolSnapshot{}, nil, nil)
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if fees.Owed0.Uint64() != 11 || fees.Owed1.Uint64() != 22 {
		t.Fatalf("expected tokens owed only, got (%s, %s)", fees.Owed0.Dec(), fees.Owed1.Dec())
	}
}
