package dex

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var poolSaltArgs = mustPoolSaltArgs()

func mustPoolSaltArgs() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint24Type, err := abi.NewType("uint24", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: uint24Type}}
}

// SortTokens orders a token pair the way pools store it.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// ComputePoolAddress derives the CREATE2 address of a V3 pool from its deployer
// (the factory on Uniswap, the pool deployer on PancakeSwap) and the pool init code hash.
func ComputePoolAddress(deployer common.Address, initCodeHash common.Hash, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, fmt.Errorf("identical tokens %s", tokenA.Hex())
	}
	token0, token1 := SortTokens(tokenA, tokenB)
	encoded, err := poolSaltArgs.Pack(token0, token1, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("encode pool key: %w", err)
	}
	salt := crypto.Keccak256Hash(encoded)
	return crypto.CreateAddress2(deployer, salt, initCodeHash.Bytes()), nil
}
