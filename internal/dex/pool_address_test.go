package dex

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestComputePoolAddressUniswapMainnet(t *testing.T) {
	factory := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	initCodeHash := common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	tests := []struct {
		fee  uint32
		want string
	}{
		{fee: 500, want: "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"},
		{fee: 3000, want: "0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"},
	}
	for _, tt := range tests {
		// Argument order must not matter.
		for _, pair := range [][2]common.Address{{usdc, weth}, {weth, usdc}} {
			got, err := ComputePoolAddress(factory, initCodeHash, pair[0], pair[1], tt.fee)
			if err != nil {
				t.Fatalf("compute pool address: %v", err)
			}
			if got != common.HexToAddress(tt.want) {
				t.Fatalf("fee %d: got %s want %s", tt.fee, got.Hex(), tt.want)
			}
		}
	}
}

func TestComputePoolAddressIdenticalTokens(t *testing.T) {
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if _, err := ComputePoolAddress(common.Address{}, common.Hash{}, token, token, 500); err == nil {
		t.Fatal("expected error for identical tokens")
	}
}

func TestSortTokens(t *testing.T) {
	a := common.HexToAddress("0x2222222222222222222222222222222222222222")
	b := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0, token1 := SortTokens(a, b)
	if token0 != b || token1 != a {
		t.Fatalf("unexpected order %s %s", token0.Hex(), token1.Hex())
	}
}
