package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"marketd/native/market"
	"marketd/storage"
)

const (
	listingPrefix = "market/listing/"
	auctionPrefix = "market/auction/"
	bidsPrefix    = "market/bids/"
	escrowPrefix  = "market/escrow/"
)

func listingKey(id [32]byte) []byte { return append([]byte(listingPrefix), id[:]...) }
func auctionKey(id [32]byte) []byte { return append([]byte(auctionPrefix), id[:]...) }
func bidsKey(id [32]byte) []byte    { return append([]byte(bidsPrefix), id[:]...) }

func escrowKey(seller [20]byte) []byte { return append([]byte(escrowPrefix), seller[:]...) }

// Manager persists the market engine's records in a key-value store. Records
// are RLP-encoded; timestamps are stored unsigned because RLP has no signed
// integer encoding.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager over the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedListing struct {
	Asset     [20]byte
	ItemID    *big.Int
	Seller    [20]byte
	Quantity  uint64
	UnitPrice *big.Int
	Medium    [20]byte
	StartTime uint64
	Buyer     [20]byte
	Sold      bool
	CreatedAt uint64
}

type storedAuction struct {
	Asset        [20]byte
	ItemID       *big.Int
	Owner        [20]byte
	Quantity     uint64
	Medium       [20]byte
	ReservePrice *big.Int
	StartTime    uint64
	EndTime      uint64
	Active       bool
	Sold         bool
	Winner       [20]byte
	WinningBid   *big.Int
	CreatedAt    uint64
}

type storedBidSlot struct {
	Bidder [20]byte
	Amount *big.Int
}

type storedBidderRecord struct {
	Bidder    [20]byte
	BidTime   uint64
	Amount    *big.Int
	SlotIndex uint64
}

type storedBidLedger struct {
	HighestAmount *big.Int
	HighestBidder [20]byte
	NextSlot      uint64
	Slots         []storedBidSlot
	Records       []storedBidderRecord
}

type storedEscrowEntry struct {
	Asset   [20]byte
	ItemID  *big.Int
	Buyer   [20]byte
	Medium  [20]byte
	Amount  *big.Int
	Pending bool
}

func (m *Manager) put(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return m.db.Put(key, encoded)
}

// ListingPut stores the listing under its derived identifier.
func (m *Manager) ListingPut(l *market.Listing) error {
	if l == nil {
		return fmt.Errorf("state: nil listing")
	}
	return m.put(listingKey(l.ID), &storedListing{
		Asset:     l.Asset,
		ItemID:    l.ItemID,
		Seller:    l.Seller,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		Medium:    l.Medium,
		StartTime: uint64(l.StartTime),
		Buyer:     l.Buyer,
		Sold:      l.Sold,
		CreatedAt: uint64(l.CreatedAt),
	})
}

// ListingGet loads the listing stored under the given identifier.
func (m *Manager) ListingGet(id [32]byte) (*market.Listing, bool) {
	raw, err := m.db.Get(listingKey(id))
	if err != nil {
		return nil, false
	}
	var dto storedListing
	if err := rlp.DecodeBytes(raw, &dto); err != nil {
		return nil, false
	}
	return &market.Listing{
		ID:        id,
		Asset:     dto.Asset,
		ItemID:    dto.ItemID,
		Seller:    dto.Seller,
		Quantity:  dto.Quantity,
		UnitPrice: dto.UnitPrice,
		Medium:    dto.Medium,
		StartTime: int64(dto.StartTime),
		Buyer:     dto.Buyer,
		Sold:      dto.Sold,
		CreatedAt: int64(dto.CreatedAt),
	}, true
}

// ListingDelete removes the listing record.
func (m *Manager) ListingDelete(id [32]byte) error {
	return m.db.Delete(listingKey(id))
}

// AuctionPut stores the auction under its derived identifier.
func (m *Manager) AuctionPut(a *market.Auction) error {
	if a == nil {
		return fmt.Errorf("state: nil auction")
	}
	return m.put(auctionKey(a.ID), &storedAuction{
		Asset:        a.Asset,
		ItemID:       a.ItemID,
		Owner:        a.Owner,
		Quantity:     a.Quantity,
		Medium:       a.Medium,
		ReservePrice: a.ReservePrice,
		StartTime:    uint64(a.StartTime),
		EndTime:      uint64(a.EndTime),
		Active:       a.Active,
		Sold:         a.Sold,
		Winner:       a.Winner,
		WinningBid:   a.WinningBid,
		CreatedAt:    uint64(a.CreatedAt),
	})
}

// AuctionGet loads the auction stored under the given identifier.
func (m *Manager) AuctionGet(id [32]byte) (*market.Auction, bool) {
	raw, err := m.db.Get(auctionKey(id))
	if err != nil {
		return nil, false
	}
	var dto storedAuction
	if err := rlp.DecodeBytes(raw, &dto); err != nil {
		return nil, false
	}
	return &market.Auction{
		ID:           id,
		Asset:        dto.Asset,
		ItemID:       dto.ItemID,
		Owner:        dto.Owner,
		Quantity:     dto.Quantity,
		Medium:       dto.Medium,
		ReservePrice: dto.ReservePrice,
		StartTime:    int64(dto.StartTime),
		EndTime:      int64(dto.EndTime),
		Active:       dto.Active,
		Sold:         dto.Sold,
		Winner:       dto.Winner,
		WinningBid:   dto.WinningBid,
		CreatedAt:    int64(dto.CreatedAt),
	}, true
}

// AuctionDelete removes the auction record.
func (m *Manager) AuctionDelete(id [32]byte) error {
	return m.db.Delete(auctionKey(id))
}

// BidLedgerPut stores the bid ledger under its auction identifier.
func (m *Manager) BidLedgerPut(b *market.BidLedger) error {
	if b == nil {
		return fmt.Errorf("state: nil bid ledger")
	}
	dto := &storedBidLedger{
		HighestAmount: b.HighestAmount,
		HighestBidder: b.HighestBidder,
		NextSlot:      b.NextSlot,
		Slots:         make([]storedBidSlot, len(b.Slots)),
		Records:       make([]storedBidderRecord, len(b.Records)),
	}
	for i, slot := range b.Slots {
		dto.Slots[i] = storedBidSlot{Bidder: slot.Bidder, Amount: slot.Amount}
	}
	for i, rec := range b.Records {
		dto.Records[i] = storedBidderRecord{
			Bidder:    rec.Bidder,
			BidTime:   uint64(rec.BidTime),
			Amount:    rec.Amount,
			SlotIndex: rec.SlotIndex,
		}
	}
	return m.put(bidsKey(b.AuctionID), dto)
}

// BidLedgerGet loads the bid ledger stored under the given auction identifier.
func (m *Manager) BidLedgerGet(id [32]byte) (*market.BidLedger, bool) {
	raw, err := m.db.Get(bidsKey(id))
	if err != nil {
		return nil, false
	}
	var dto storedBidLedger
	if err := rlp.DecodeBytes(raw, &dto); err != nil {
		return nil, false
	}
	ledger := &market.BidLedger{
		AuctionID:     id,
		HighestAmount: dto.HighestAmount,
		HighestBidder: dto.HighestBidder,
		NextSlot:      dto.NextSlot,
		Slots:         make([]market.BidSlot, len(dto.Slots)),
		Records:       make([]market.BidderRecord, len(dto.Records)),
	}
	for i, slot := range dto.Slots {
		ledger.Slots[i] = market.BidSlot{Bidder: slot.Bidder, Amount: slot.Amount}
	}
	for i, rec := range dto.Records {
		ledger.Records[i] = market.BidderRecord{
			Bidder:    rec.Bidder,
			BidTime:   int64(rec.BidTime),
			Amount:    rec.Amount,
			SlotIndex: rec.SlotIndex,
		}
	}
	return ledger, true
}

// BidLedgerDelete removes the bid ledger record.
func (m *Manager) BidLedgerDelete(id [32]byte) error {
	return m.db.Delete(bidsKey(id))
}

// EscrowGet loads the seller's escrow entries. A missing record is an empty
// list, not an error.
func (m *Manager) EscrowGet(seller [20]byte) ([]market.EscrowEntry, error) {
	key := escrowKey(seller)
	ok, err := m.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("state: escrow lookup: %w", err)
	}
	if !ok {
		return nil, nil
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("state: escrow lookup: %w", err)
	}
	var dtos []storedEscrowEntry
	if err := rlp.DecodeBytes(raw, &dtos); err != nil {
		return nil, fmt.Errorf("state: decode escrow: %w", err)
	}
	entries := make([]market.EscrowEntry, len(dtos))
	for i, dto := range dtos {
		entries[i] = market.EscrowEntry{
			Asset:   dto.Asset,
			ItemID:  dto.ItemID,
			Buyer:   dto.Buyer,
			Medium:  dto.Medium,
			Amount:  dto.Amount,
			Pending: dto.Pending,
		}
	}
	return entries, nil
}

// EscrowPut replaces the seller's escrow entries. An empty list clears the
// record.
func (m *Manager) EscrowPut(seller [20]byte, entries []market.EscrowEntry) error {
	key := escrowKey(seller)
	if len(entries) == 0 {
		return m.db.Delete(key)
	}
	dtos := make([]storedEscrowEntry, len(entries))
	for i, entry := range entries {
		dtos[i] = storedEscrowEntry{
			Asset:   entry.Asset,
			ItemID:  entry.ItemID,
			Buyer:   entry.Buyer,
			Medium:  entry.Medium,
			Amount:  entry.Amount,
			Pending: entry.Pending,
		}
	}
	return m.put(key, dtos)
}
