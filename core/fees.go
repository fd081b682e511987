package core

import (
	"fmt"
	"math/big"

	"powergrid/storage"
)

// feePoolBalance reads the accumulated submission fees. The pool is a plain
// credit ledger; escrow and payout live outside this module.
func feePoolBalance(db storage.Database) (*big.Int, error) {
	ok, err := db.Has(feePoolKey)
	if err != nil {
		return nil, fmt.Errorf("fees: read pool: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	raw, err := db.Get(feePoolKey)
	if err != nil {
		return nil, fmt.Errorf("fees: read pool: %w", err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// stageFeeCredit adds amount to the pool inside the caller's batch so the
// credit lands atomically with the rest of the transition.
func stageFeeCredit(db storage.Database, batch storage.Batch, amount *big.Int) error {
	balance, err := feePoolBalance(db)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	batch.Put(feePoolKey, balance.Bytes())
	return nil
}
