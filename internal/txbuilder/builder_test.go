package txbuilder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"positionScope/internal/dex"
	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
)

type fakeEstimator struct {
	gas   uint64
	err   error
	calls int
	last  ethereum.CallMsg
}

func (f *fakeEstimator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.calls++
	f.last = msg
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.gas, f.err
}

var (
	testManager = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	testRouter  = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	testFrom    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testToken0  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken1  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	fixedNow    = time.Unix(1700000000, 0)
)

func newTestBuilder(t *testing.T, estimator *fakeEstimator) *Builder {
	t.Helper()
	b, err := New(testManager, testRouter, estimator, Options{Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return b
}

func decodeCall(t *testing.T, parsed abi.ABI, data []byte) (*abi.Method, []interface{}) {
	t.Helper()
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		t.Fatalf("method by id: %v", err)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack %s: %v", method.Name, err)
	}
	return method, values
}

func txData(t *testing.T, hexData string) []byte {
	t.Helper()
	data, err := hexutil.Decode(hexData)
	if err != nil {
		t.Fatalf("decode tx data: %v", err)
	}
	return data
}

func validCreateParams() CreatePositionParams {
	return CreatePositionParams{
		From:           testFrom,
		Token0:         testToken0,
		Token1:         testToken1,
		FeeTier:        3000,
		TickSpacing:    60,
		TickLower:      -600,
		TickUpper:      600,
		Amount0Desired: big.NewInt(1000),
		Amount1Desired: big.NewInt(2000),
		Slippage:       decimal.RequireFromString("0.5"),
		Deadline:       20 * time.Minute,
	}
}

func TestMinAmount(t *testing.T) {
	tests := []struct {
		expected int64
		slippage string
		want     int64
	}{
		{expected: 1000, slippage: "0.5", want: 995},
		{expected: 999, slippage: "1", want: 989},
		{expected: 1000, slippage: "0", want: 1000},
		{expected: 1000, slippage: "100", want: 0},
		{expected: 7, slippage: "33.3", want: 4},
	}
	for _, tt := range tests {
		got, err := MinAmount(big.NewInt(tt.expected), decimal.RequireFromString(tt.slippage))
		if err != nil {
			t.Fatalf("min amount %d/%s: %v", tt.expected, tt.slippage, err)
		}
		if got.Int64() != tt.want {
			t.Fatalf("min amount %d/%s: got %s want %d", tt.expected, tt.slippage, got.String(), tt.want)
		}
	}

	for _, bad := range []string{"-0.1", "100.01"} {
		if _, err := MinAmount(big.NewInt(1), decimal.RequireFromString(bad)); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("slippage %s: expected invalid input, got %v", bad, err)
		}
	}
}

func TestCreatePosition(t *testing.T) {
	estimator := &fakeEstimator{gas: 100000}
	b := newTestBuilder(t, estimator)

	tx, err := b.CreatePosition(context.Background(), validCreateParams())
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if tx.To != testManager.Hex() || tx.From != testFrom.Hex() {
		t.Fatalf("unexpected addresses: %+v", tx)
	}
	if tx.Gas != 120000 {
		t.Fatalf("expected buffered gas 120000, got %d", tx.Gas)
	}
	if tx.Value.Sign() != 0 {
		t.Fatalf("expected zero value, got %s", tx.Value.String())
	}
	if estimator.calls != 1 || *estimator.last.To != testManager || estimator.last.From != testFrom {
		t.Fatalf("unexpected estimation call: %+v", estimator.last)
	}

	managerABI, err := dex.PositionManagerABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	method, values := decodeCall(t, managerABI, txData(t, tx.Data))
	if method.Name != "mint" {
		t.Fatalf("expected mint, got %s", method.Name)
	}
	args := *abi.ConvertType(values[0], new(mintArgs)).(*mintArgs)
	if args.Token0 != testToken0 || args.Token1 != testToken1 || args.Fee.Int64() != 3000 {
		t.Fatalf("unexpected pool key: %+v", args)
	}
	if args.TickLower.Int64() != -600 || args.TickUpper.Int64() != 600 {
		t.Fatalf("unexpected ticks: %s %s", args.TickLower, args.TickUpper)
	}
	if args.Amount0Min.Int64() != 995 || args.Amount1Min.Int64() != 1990 {
		t.Fatalf("unexpected minimums: %s %s", args.Amount0Min, args.Amount1Min)
	}
	if args.Recipient != testFrom {
		t.Fatalf("recipient should default to sender, got %s", args.Recipient.Hex())
	}
	if args.Deadline.Int64() != fixedNow.Add(20*time.Minute).Unix() {
		t.Fatalf("unexpected deadline %s", args.Deadline)
	}
}

func TestCreatePositionValidationBeforeNetwork(t *testing.T) {
	cases := map[string]func(p *CreatePositionParams){
		"zero sender":        func(p *CreatePositionParams) { p.From = common.Address{} },
		"unsorted tokens":    func(p *CreatePositionParams) { p.Token0, p.Token1 = p.Token1, p.Token0 },
		"misaligned ticks":   func(p *CreatePositionParams) { p.TickLower = -610 },
		"inverted range":     func(p *CreatePositionParams) { p.TickLower, p.TickUpper = 600, -600 },
		"no amounts":         func(p *CreatePositionParams) { p.Amount0Desired, p.Amount1Desired = nil, big.NewInt(0) },
		"negative amount":    func(p *CreatePositionParams) { p.Amount0Desired = big.NewInt(-1) },
		"slippage too large": func(p *CreatePositionParams) { p.Slippage = decimal.NewFromInt(101) },
		"zero deadline":      func(p *CreatePositionParams) { p.Deadline = 0 },
	}
	for name, mutate := range cases {
		estimator := &fakeEstimator{gas: 100000}
		b := newTestBuilder(t, estimator)
		params := validCreateParams()
		mutate(&params)

		_, err := b.CreatePosition(context.Background(), params)
		if !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
		if estimator.calls != 0 {
			t.Fatalf("%s: estimator called before validation", name)
		}
	}
}

func TestEstimationFailureWouldRevert(t *testing.T) {
	estimator := &fakeEstimator{err: errors.New("execution reverted: Price slippage check")}
	b := newTestBuilder(t, estimator)

	tx, err := b.CreatePosition(context.Background(), validCreateParams())
	if !errors.Is(err, errs.ErrTransactionWouldRevert) {
		t.Fatalf("expected would-revert error, got %v", err)
	}
	if tx.Gas != 0 || tx.Data != "" {
		t.Fatalf("expected no transaction, got %+v", tx)
	}
}

type revertError struct{}

func (revertError) Error() string  { return "execution reverted: STF" }
func (revertError) ErrorCode() int { return 3 }

func TestEstimationErrorClassification(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"node revert", revertError{}, errs.ErrTransactionWouldRevert},
		{"connection refused", fmt.Errorf("post: %w", refused), errs.ErrDataUnavailable},
	}
	for _, tc := range cases {
		estimator := &fakeEstimator{err: tc.err}
		b := newTestBuilder(t, estimator)
		_, err := b.CollectFees(context.Background(), CollectFeesParams{From: testFrom, TokenID: big.NewInt(1)})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if estimator.calls != 1 {
			t.Fatalf("%s: estimation retried %d times", tc.name, estimator.calls)
		}
	}
}

func TestEstimationTimeout(t *testing.T) {
	estimator := &fakeEstimator{gas: 1}
	b := newTestBuilder(t, estimator)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := b.CollectFees(ctx, CollectFeesParams{From: testFrom, TokenID: big.NewInt(1)})
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDecreaseLiquidity(t *testing.T) {
	estimator := &fakeEstimator{gas: 50000}
	b := newTestBuilder(t, estimator)

	tx, err := b.DecreaseLiquidity(context.Background(), DecreaseLiquidityParams{
		From:            testFrom,
		TokenID:         big.NewInt(42),
		Liquidity:       big.NewInt(500000),
		Amount0Expected: big.NewInt(14776),
		Amount1Expected: big.NewInt(14776),
		Slippage:        decimal.NewFromInt(1),
		Deadline:        time.Minute,
	})
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	managerABI, _ := dex.PositionManagerABI()
	method, values := decodeCall(t, managerABI, txData(t, tx.Data))
	if method.Name != "decreaseLiquidity" {
		t.Fatalf("expected decreaseLiquidity, got %s", method.Name)
	}
	args := *abi.ConvertType(values[0], new(decreaseLiquidityArgs)).(*decreaseLiquidityArgs)
	if args.TokenId.Int64() != 42 || args.Liquidity.Int64() != 500000 {
		t.Fatalf("unexpected args: %+v", args)
	}
	if args.Amount0Min.Int64() != 14628 || args.Amount1Min.Int64() != 14628 {
		t.Fatalf("unexpected minimums: %s %s", args.Amount0Min, args.Amount1Min)
	}

	tooMuch := new(big.Int).Add(fixedpoint.MaxUint128.ToBig(), big.NewInt(1))
	_, err = b.DecreaseLiquidity(context.Background(), DecreaseLiquidityParams{
		From: testFrom, TokenID: big.NewInt(42), Liquidity: tooMuch, Deadline: time.Minute,
	})
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input for liquidity above uint128, got %v", err)
	}
}

func TestCollectFees(t *testing.T) {
	b := newTestBuilder(t, &fakeEstimator{gas: 80000})
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")

	tx, err := b.CollectFees(context.Background(), CollectFeesParams{From: testFrom, TokenID: big.NewInt(7), Recipient: recipient})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	managerABI, _ := dex.PositionManagerABI()
	method, values := decodeCall(t, managerABI, txData(t, tx.Data))
	if method.Name != "collect" {
		t.Fatalf("expected collect, got %s", method.Name)
	}
	args := *abi.ConvertType(values[0], new(collectArgs)).(*collectArgs)
	if args.Recipient != recipient || args.TokenId.Int64() != 7 {
		t.Fatalf("unexpected args: %+v", args)
	}
	if args.Amount0Max.Cmp(fixedpoint.MaxUint128.ToBig()) != 0 || args.Amount1Max.Cmp(fixedpoint.MaxUint128.ToBig()) != 0 {
		t.Fatalf("collect must request the uint128 maximum")
	}

	if _, err := b.CollectFees(context.Background(), CollectFeesParams{From: testFrom}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing id, got %v", err)
	}
}

func TestClosePosition(t *testing.T) {
	managerABI, _ := dex.PositionManagerABI()
	b := newTestBuilder(t, &fakeEstimator{gas: 200000})

	tx, err := b.ClosePosition(context.Background(), ClosePositionParams{
		From:            testFrom,
		TokenID:         big.NewInt(9),
		Liquidity:       big.NewInt(1000),
		Amount0Expected: big.NewInt(100),
		Amount1Expected: big.NewInt(0),
		Slippage:        decimal.NewFromInt(2),
		Deadline:        time.Minute,
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	method, values := decodeCall(t, managerABI, txData(t, tx.Data))
	if method.Name != "multicall" {
		t.Fatalf("expected multicall, got %s", method.Name)
	}
	calls := values[0].([][]byte)
	wantOrder := []string{"decreaseLiquidity", "collect", "burn"}
	if len(calls) != len(wantOrder) {
		t.Fatalf("expected %d calls, got %d", len(wantOrder), len(calls))
	}
	for i, name := range wantOrder {
		if !bytes.Equal(calls[i][:4], managerABI.Methods[name].ID) {
			t.Fatalf("call %d is not %s", i, name)
		}
	}

	// Without liquidity only collect and burn remain.
	tx, err = b.ClosePosition(context.Background(), ClosePositionParams{From: testFrom, TokenID: big.NewInt(9), Deadline: time.Minute})
	if err != nil {
		t.Fatalf("close empty: %v", err)
	}
	_, values = decodeCall(t, managerABI, txData(t, tx.Data))
	if calls := values[0].([][]byte); len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
}

func TestSwap(t *testing.T) {
	routerABI, _ := dex.SwapRouterABI()
	estimator := &fakeEstimator{gas: 150000}
	b := newTestBuilder(t, estimator)

	params := SwapParams{
		From:              testFrom,
		TokenIn:           testToken0,
		TokenOut:          testToken1,
		FeeTier:           500,
		AmountIn:          big.NewInt(1000000),
		AmountOutExpected: big.NewInt(2000000),
		Slippage:          decimal.RequireFromString("0.3"),
		Deadline:          5 * time.Minute,
	}
	tx, err := b.Swap(context.Background(), params)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if tx.To != testRouter.Hex() {
		t.Fatalf("swap must target the router, got %s", tx.To)
	}
	method, values := decodeCall(t, routerABI, txData(t, tx.Data))
	if method.Name != "exactInputSingle" {
		t.Fatalf("expected exactInputSingle, got %s", method.Name)
	}
	args := *abi.ConvertType(values[0], new(exactInputSingleArgs)).(*exactInputSingleArgs)
	if args.AmountOutMinimum.Int64() != 1994000 || args.Fee.Int64() != 500 || args.SqrtPriceLimitX96.Sign() != 0 {
		t.Fatalf("unexpected args: %+v", args)
	}

	params.AmountOutMinimum = big.NewInt(1)
	tx, err = b.Swap(context.Background(), params)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	_, values = decodeCall(t, routerABI, txData(t, tx.Data))
	args = *abi.ConvertType(values[0], new(exactInputSingleArgs)).(*exactInputSingleArgs)
	if args.AmountOutMinimum.Int64() != 1 {
		t.Fatalf("explicit minimum ignored: %s", args.AmountOutMinimum)
	}

	params.AmountIn = big.NewInt(0)
	if _, err := b.Swap(context.Background(), params); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero amount, got %v", err)
	}
}

func TestSwapWithoutRouter(t *testing.T) {
	b, err := New(testManager, common.Address{}, &fakeEstimator{gas: 1}, Options{})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	_, err = b.Swap(context.Background(), SwapParams{From: testFrom})
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
