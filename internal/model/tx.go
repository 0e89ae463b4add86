package model

import "math/big"

// UnsignedTx is a transaction ready to be handed to an external signer.
type UnsignedTx struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Data  string   `json:"data"`
	Value *big.Int `json:"value"`
	Gas   uint64   `json:"gas"`
	// Description is a short human label such as "mint" or "close position 42".
	Description string `json:"description,omitempty"`
}
