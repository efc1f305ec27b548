package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AssetKind distinguishes the two custody models understood by the registry
// adapter: items with exactly one owner, and items held as per-holder
// quantity balances.
type AssetKind uint8

const (
	AssetSingleton AssetKind = iota + 1
	AssetQuantity
)

// Valid reports whether the kind value is within the supported range.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetSingleton, AssetQuantity:
		return true
	default:
		return false
	}
}

// Listing is a fixed-price sale record keyed by (asset, item, seller). Buyer
// and Sold are unset until a purchase settles; the record is deleted on
// cancellation or on delivery confirmation.
type Listing struct {
	ID        [32]byte
	Asset     [20]byte
	ItemID    *big.Int
	Seller    [20]byte
	Quantity  uint64
	UnitPrice *big.Int
	Medium    [20]byte
	StartTime int64
	Buyer     [20]byte
	Sold      bool
	CreatedAt int64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.ItemID = cloneBigInt(l.ItemID)
	clone.UnitPrice = cloneBigInt(l.UnitPrice)
	return &clone
}

// Total returns unitPrice x quantity, the full purchase amount.
func (l *Listing) Total() *big.Int {
	if l == nil || l.UnitPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(l.UnitPrice, new(big.Int).SetUint64(l.Quantity))
}

// Auction is a timed ascending-bid sale record keyed by (asset, item). Winner
// and WinningBid are fixed when the auction resolves; the record is deleted on
// cancellation or after delivery confirmation.
type Auction struct {
	ID           [32]byte
	Asset        [20]byte
	ItemID       *big.Int
	Owner        [20]byte
	Quantity     uint64
	Medium       [20]byte
	ReservePrice *big.Int
	StartTime    int64
	EndTime      int64
	Active       bool
	Sold         bool
	Winner       [20]byte
	WinningBid   *big.Int
	CreatedAt    int64
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.ItemID = cloneBigInt(a.ItemID)
	clone.ReservePrice = cloneBigInt(a.ReservePrice)
	clone.WinningBid = cloneBigInt(a.WinningBid)
	return &clone
}

// BidSlot is one entry in the bid ledger's append-only sequence. A refunded or
// withdrawn bid has its slot zeroed in place, never removed, so stored slot
// indices stay valid.
type BidSlot struct {
	Bidder [20]byte
	Amount *big.Int
}

// Live reports whether the slot still escrows funds.
func (s BidSlot) Live() bool {
	return s.Amount != nil && s.Amount.Sign() > 0
}

// BidderRecord is the per-bidder bookkeeping attached to a bid ledger. A
// bidder holds at most one live record per auction.
type BidderRecord struct {
	Bidder    [20]byte
	BidTime   int64
	Amount    *big.Int
	SlotIndex uint64
}

// BidLedger tracks every active bid for one auction: the slot arena, the
// current highest bid, and one record per distinct live bidder.
type BidLedger struct {
	AuctionID     [32]byte
	HighestAmount *big.Int
	HighestBidder [20]byte
	NextSlot      uint64
	Slots         []BidSlot
	Records       []BidderRecord
}

// Clone returns a deep copy of the ledger.
func (b *BidLedger) Clone() *BidLedger {
	if b == nil {
		return nil
	}
	clone := *b
	clone.HighestAmount = cloneBigInt(b.HighestAmount)
	clone.Slots = make([]BidSlot, len(b.Slots))
	for i, slot := range b.Slots {
		clone.Slots[i] = BidSlot{Bidder: slot.Bidder, Amount: cloneBigInt(slot.Amount)}
	}
	clone.Records = make([]BidderRecord, len(b.Records))
	for i, rec := range b.Records {
		clone.Records[i] = BidderRecord{
			Bidder:    rec.Bidder,
			BidTime:   rec.BidTime,
			Amount:    cloneBigInt(rec.Amount),
			SlotIndex: rec.SlotIndex,
		}
	}
	return &clone
}

// EscrowEntry is one seller-bound credit awaiting payout. Amount is net of the
// platform fee.
type EscrowEntry struct {
	Asset   [20]byte
	ItemID  *big.Int
	Buyer   [20]byte
	Medium  [20]byte
	Amount  *big.Int
	Pending bool
}

// Clone returns a deep copy of the entry.
func (e EscrowEntry) Clone() EscrowEntry {
	clone := e
	clone.ItemID = cloneBigInt(e.ItemID)
	clone.Amount = cloneBigInt(e.Amount)
	return clone
}

// Params is the engine-wide configuration read by every settlement. It is
// mutated only through the operator-gated setters on the engine.
type Params struct {
	MinBidIncrement   *big.Int
	BidWithdrawalLock int64
	FeeBps            uint32
	FeeRecipient      [20]byte
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.MinBidIncrement = cloneBigInt(p.MinBidIncrement)
	return clone
}

// ListingKey derives the storage identifier for a fixed-price listing.
func ListingKey(asset [20]byte, itemID *big.Int, seller [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(asset[:], itemIDBytes(itemID), seller[:])
}

// AuctionKey derives the storage identifier for an auction.
func AuctionKey(asset [20]byte, itemID *big.Int) [32]byte {
	return ethcrypto.Keccak256Hash(asset[:], itemIDBytes(itemID))
}

func itemIDBytes(itemID *big.Int) []byte {
	if itemID == nil {
		itemID = big.NewInt(0)
	}
	return common.LeftPadBytes(itemID.Bytes(), 32)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizeListing validates and normalises a listing definition, returning a
// cloned instance with non-nil amount fields. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if clone.Quantity == 0 {
		return nil, fmt.Errorf("listing quantity must be positive")
	}
	if clone.UnitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("listing unit price must be positive")
	}
	if clone.ItemID.Sign() < 0 {
		return nil, fmt.Errorf("listing item id must be non-negative")
	}
	return clone, nil
}

// SanitizeAuction validates and normalises an auction definition.
func SanitizeAuction(a *Auction) (*Auction, error) {
	if a == nil {
		return nil, fmt.Errorf("nil auction")
	}
	clone := a.Clone()
	if clone.Quantity == 0 {
		return nil, fmt.Errorf("auction quantity must be positive")
	}
	if clone.StartTime >= clone.EndTime {
		return nil, fmt.Errorf("auction start must precede end")
	}
	if clone.ItemID.Sign() < 0 {
		return nil, fmt.Errorf("auction item id must be non-negative")
	}
	return clone, nil
}
