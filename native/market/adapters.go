package market

import "math/big"

// NativeMedium is the zero-address sentinel for chain-native value. It is
// always accepted without consulting the medium oracle.
var NativeMedium = [20]byte{}

// AssetRegistry reports holdings and performs custodial transfer of the traded
// item. Implementations are capability-typed: a singleton registry tracks one
// owner per item (HoldingOf returns 0 or 1), a quantity registry tracks
// per-holder balances. Transfers must be atomic and fail loudly.
type AssetRegistry interface {
	Kind() AssetKind
	HoldingOf(holder [20]byte, itemID *big.Int) (uint64, error)
	IsApprovedForAll(holder, operator [20]byte) (bool, error)
	Transfer(from, to [20]byte, itemID *big.Int, quantity uint64) error
}

// AssetResolver maps an asset address to its registry adapter. The engine
// resolves the registry once per call and never re-probes mid-operation.
type AssetResolver interface {
	Resolve(asset [20]byte) (AssetRegistry, error)
}

// Payment is one outbound transfer from the engine's custody.
type Payment struct {
	To     [20]byte
	Medium [20]byte
	Amount *big.Int
}

// PaymentAdapter moves fungible value between parties and the engine's
// custody. Every call site checks the returned error and aborts the whole
// operation on failure. PushBatch must be atomic: either every payment
// commits or none does.
type PaymentAdapter interface {
	Pull(from [20]byte, medium [20]byte, amount *big.Int) error
	Push(to [20]byte, medium [20]byte, amount *big.Int) error
	PushBatch(payments []Payment) error
}

// MediumOracle answers whether a payment medium is accepted for new listings
// and bids. The native medium bypasses the oracle entirely.
type MediumOracle interface {
	Enabled(medium [20]byte) bool
}
