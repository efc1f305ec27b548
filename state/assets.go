package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"marketd/native/market"
	"marketd/storage"
)

const (
	assetPrefix    = "market/asset/"
	itemPrefix     = "market/item/"
	holdingPrefix  = "market/holding/"
	approvalPrefix = "market/approval/"
)

func assetKey(asset [20]byte) []byte { return append([]byte(assetPrefix), asset[:]...) }

func itemKey(asset [20]byte, itemID *big.Int) []byte {
	key := make([]byte, 0, len(itemPrefix)+53)
	key = append(key, itemPrefix...)
	key = append(key, asset[:]...)
	key = append(key, '/')
	key = append(key, itemIDBytes(itemID)...)
	return key
}

func holdingKey(asset [20]byte, itemID *big.Int, holder [20]byte) []byte {
	key := make([]byte, 0, len(holdingPrefix)+74)
	key = append(key, holdingPrefix...)
	key = append(key, asset[:]...)
	key = append(key, '/')
	key = append(key, itemIDBytes(itemID)...)
	key = append(key, '/')
	key = append(key, holder[:]...)
	return key
}

func approvalKey(asset, holder, operator [20]byte) []byte {
	key := make([]byte, 0, len(approvalPrefix)+62)
	key = append(key, approvalPrefix...)
	key = append(key, asset[:]...)
	key = append(key, '/')
	key = append(key, holder[:]...)
	key = append(key, '/')
	key = append(key, operator[:]...)
	return key
}

func itemIDBytes(itemID *big.Int) []byte {
	if itemID == nil {
		itemID = big.NewInt(0)
	}
	return common.LeftPadBytes(itemID.Bytes(), 32)
}

// AssetBook stores the asset collections known to the daemon and their
// per-item custody state: single owners for singleton collections, per-holder
// balances for quantity collections, plus operator approvals. It resolves
// collection addresses to registry adapters for the market engine.
type AssetBook struct {
	db storage.Database
}

// NewAssetBook creates an asset book over the given database.
func NewAssetBook(db storage.Database) *AssetBook {
	return &AssetBook{db: db}
}

// Register records a collection address with its custody kind. Re-registering
// with a different kind is rejected.
func (b *AssetBook) Register(asset [20]byte, kind market.AssetKind) error {
	if !kind.Valid() {
		return fmt.Errorf("assets: invalid asset kind %d", kind)
	}
	if existing, err := b.kindOf(asset); err == nil && existing != kind {
		return fmt.Errorf("assets: collection %x already registered with kind %d", asset, existing)
	}
	return b.db.Put(assetKey(asset), []byte{byte(kind)})
}

func (b *AssetBook) kindOf(asset [20]byte) (market.AssetKind, error) {
	raw, err := b.db.Get(assetKey(asset))
	if err != nil || len(raw) != 1 {
		return 0, fmt.Errorf("assets: unknown collection %x", asset)
	}
	kind := market.AssetKind(raw[0])
	if !kind.Valid() {
		return 0, fmt.Errorf("assets: corrupt kind for collection %x", asset)
	}
	return kind, nil
}

// Resolve returns the registry adapter for a registered collection.
func (b *AssetBook) Resolve(asset [20]byte) (market.AssetRegistry, error) {
	kind, err := b.kindOf(asset)
	if err != nil {
		return nil, err
	}
	return &bookRegistry{book: b, asset: asset, kind: kind}, nil
}

// SetOwner assigns the single owner of a singleton item. Used by genesis
// loading and deposit processing.
func (b *AssetBook) SetOwner(asset [20]byte, itemID *big.Int, owner [20]byte) error {
	kind, err := b.kindOf(asset)
	if err != nil {
		return err
	}
	if kind != market.AssetSingleton {
		return fmt.Errorf("assets: collection %x is not singleton", asset)
	}
	return b.db.Put(itemKey(asset, itemID), owner[:])
}

// SetHolding assigns a holder's balance of a quantity item.
func (b *AssetBook) SetHolding(asset [20]byte, itemID *big.Int, holder [20]byte, quantity uint64) error {
	kind, err := b.kindOf(asset)
	if err != nil {
		return err
	}
	if kind != market.AssetQuantity {
		return fmt.Errorf("assets: collection %x is not quantity-based", asset)
	}
	return b.putHolding(asset, itemID, holder, quantity)
}

func (b *AssetBook) putHolding(asset [20]byte, itemID *big.Int, holder [20]byte, quantity uint64) error {
	key := holdingKey(asset, itemID, holder)
	if quantity == 0 {
		return b.db.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(quantity)
	if err != nil {
		return fmt.Errorf("assets: encode holding: %w", err)
	}
	return b.db.Put(key, encoded)
}

func (b *AssetBook) getHolding(asset [20]byte, itemID *big.Int, holder [20]byte) (uint64, error) {
	key := holdingKey(asset, itemID, holder)
	ok, err := b.db.Has(key)
	if err != nil {
		return 0, fmt.Errorf("assets: holding lookup: %w", err)
	}
	if !ok {
		return 0, nil
	}
	raw, err := b.db.Get(key)
	if err != nil {
		return 0, fmt.Errorf("assets: holding lookup: %w", err)
	}
	var quantity uint64
	if err := rlp.DecodeBytes(raw, &quantity); err != nil {
		return 0, fmt.Errorf("assets: decode holding: %w", err)
	}
	return quantity, nil
}

// SetApproval grants or revokes the operator's right to move the holder's
// items in this collection.
func (b *AssetBook) SetApproval(asset, holder, operator [20]byte, approved bool) error {
	key := approvalKey(asset, holder, operator)
	if !approved {
		return b.db.Delete(key)
	}
	return b.db.Put(key, []byte{1})
}

// bookRegistry adapts one registered collection to the market engine's
// registry contract.
type bookRegistry struct {
	book  *AssetBook
	asset [20]byte
	kind  market.AssetKind
}

func (r *bookRegistry) Kind() market.AssetKind { return r.kind }

func (r *bookRegistry) HoldingOf(holder [20]byte, itemID *big.Int) (uint64, error) {
	if r.kind == market.AssetSingleton {
		raw, err := r.book.db.Get(itemKey(r.asset, itemID))
		if err != nil || len(raw) != 20 {
			return 0, nil
		}
		var owner [20]byte
		copy(owner[:], raw)
		if owner == holder {
			return 1, nil
		}
		return 0, nil
	}
	return r.book.getHolding(r.asset, itemID, holder)
}

func (r *bookRegistry) IsApprovedForAll(holder, operator [20]byte) (bool, error) {
	ok, err := r.book.db.Has(approvalKey(r.asset, holder, operator))
	if err != nil {
		return false, fmt.Errorf("assets: approval lookup: %w", err)
	}
	return ok, nil
}

func (r *bookRegistry) Transfer(from, to [20]byte, itemID *big.Int, quantity uint64) error {
	if r.kind == market.AssetSingleton {
		if quantity != 1 {
			return fmt.Errorf("assets: singleton transfers move exactly one item")
		}
		held, err := r.HoldingOf(from, itemID)
		if err != nil {
			return err
		}
		if held != 1 {
			return fmt.Errorf("assets: %x does not own item %s", from, itemID)
		}
		return r.book.db.Put(itemKey(r.asset, itemID), to[:])
	}
	fromHeld, err := r.book.getHolding(r.asset, itemID, from)
	if err != nil {
		return err
	}
	if fromHeld < quantity {
		return fmt.Errorf("assets: %x holds %d of required %d", from, fromHeld, quantity)
	}
	toHeld, err := r.book.getHolding(r.asset, itemID, to)
	if err != nil {
		return err
	}
	if err := r.book.putHolding(r.asset, itemID, from, fromHeld-quantity); err != nil {
		return err
	}
	return r.book.putHolding(r.asset, itemID, to, toHeld+quantity)
}
