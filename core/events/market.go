package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"marketd/core/types"
	"marketd/crypto"
)

const (
	TypeListingCreated   = "market.listing.created"
	TypeListingUpdated   = "market.listing.updated"
	TypeListingCancelled = "market.listing.cancelled"
	TypeListingSold      = "market.listing.sold"
	TypeListingDelivered = "market.listing.delivered"

	TypeAuctionCreated      = "market.auction.created"
	TypeAuctionUpdated      = "market.auction.updated"
	TypeAuctionCancelled    = "market.auction.cancelled"
	TypeAuctionBidPlaced    = "market.auction.bid"
	TypeAuctionBidWithdrawn = "market.auction.bid_withdrawn"
	TypeAuctionResolved     = "market.auction.resolved"
	TypeAuctionDelivered    = "market.auction.delivered"

	TypeEscrowCredited = "market.escrow.credited"
	TypeEscrowPaid     = "market.escrow.paid"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}

func addrString(a [20]byte) string {
	return crypto.NewAddress(crypto.MktPrefix, a[:]).String()
}

type ListingCreated struct {
	ID        [32]byte
	Asset     [20]byte
	ItemID    *big.Int
	Seller    [20]byte
	Quantity  uint64
	UnitPrice *big.Int
	Medium    [20]byte
	StartTime int64
}

func (ListingCreated) EventType() string { return TypeListingCreated }

func (e ListingCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeListingCreated,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"asset":     addrString(e.Asset),
			"itemId":    formatAmount(e.ItemID),
			"seller":    addrString(e.Seller),
			"quantity":  strconv.FormatUint(e.Quantity, 10),
			"unitPrice": formatAmount(e.UnitPrice),
			"medium":    addrString(e.Medium),
			"startTime": intToString(e.StartTime),
		},
	}
}

type ListingUpdated struct {
	ID        [32]byte
	Quantity  uint64
	UnitPrice *big.Int
	Medium    [20]byte
}

func (ListingUpdated) EventType() string { return TypeListingUpdated }

func (e ListingUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeListingUpdated,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"quantity":  strconv.FormatUint(e.Quantity, 10),
			"unitPrice": formatAmount(e.UnitPrice),
			"medium":    addrString(e.Medium),
		},
	}
}

type ListingCancelled struct {
	ID     [32]byte
	Seller [20]byte
}

func (ListingCancelled) EventType() string { return TypeListingCancelled }

func (e ListingCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeListingCancelled,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"seller": addrString(e.Seller),
		},
	}
}

type ListingSold struct {
	ID     [32]byte
	Buyer  [20]byte
	Amount *big.Int
	Medium [20]byte
}

func (ListingSold) EventType() string { return TypeListingSold }

func (e ListingSold) Event() *types.Event {
	return &types.Event{
		Type: TypeListingSold,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"buyer":  addrString(e.Buyer),
			"amount": formatAmount(e.Amount),
			"medium": addrString(e.Medium),
		},
	}
}

type ListingDelivered struct {
	ID     [32]byte
	Seller [20]byte
	Buyer  [20]byte
	Fee    *big.Int
	Net    *big.Int
}

func (ListingDelivered) EventType() string { return TypeListingDelivered }

func (e ListingDelivered) Event() *types.Event {
	return &types.Event{
		Type: TypeListingDelivered,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"seller": addrString(e.Seller),
			"buyer":  addrString(e.Buyer),
			"fee":    formatAmount(e.Fee),
			"net":    formatAmount(e.Net),
		},
	}
}

type AuctionCreated struct {
	ID           [32]byte
	Asset        [20]byte
	ItemID       *big.Int
	Owner        [20]byte
	Quantity     uint64
	ReservePrice *big.Int
	Medium       [20]byte
	StartTime    int64
	EndTime      int64
}

func (AuctionCreated) EventType() string { return TypeAuctionCreated }

func (e AuctionCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionCreated,
		Attributes: map[string]string{
			"id":           hex.EncodeToString(e.ID[:]),
			"asset":        addrString(e.Asset),
			"itemId":       formatAmount(e.ItemID),
			"owner":        addrString(e.Owner),
			"quantity":     strconv.FormatUint(e.Quantity, 10),
			"reservePrice": formatAmount(e.ReservePrice),
			"medium":       addrString(e.Medium),
			"startTime":    intToString(e.StartTime),
			"endTime":      intToString(e.EndTime),
		},
	}
}

type AuctionUpdated struct {
	ID           [32]byte
	ReservePrice *big.Int
	StartTime    int64
	EndTime      int64
}

func (AuctionUpdated) EventType() string { return TypeAuctionUpdated }

func (e AuctionUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionUpdated,
		Attributes: map[string]string{
			"id":           hex.EncodeToString(e.ID[:]),
			"reservePrice": formatAmount(e.ReservePrice),
			"startTime":    intToString(e.StartTime),
			"endTime":      intToString(e.EndTime),
		},
	}
}

type AuctionCancelled struct {
	ID       [32]byte
	Owner    [20]byte
	Refunded int
}

func (AuctionCancelled) EventType() string { return TypeAuctionCancelled }

func (e AuctionCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionCancelled,
		Attributes: map[string]string{
			"id":       hex.EncodeToString(e.ID[:]),
			"owner":    addrString(e.Owner),
			"refunded": strconv.Itoa(e.Refunded),
		},
	}
}

type AuctionBidPlaced struct {
	ID      [32]byte
	Bidder  [20]byte
	Amount  *big.Int
	Slot    uint64
	BidTime int64
}

func (AuctionBidPlaced) EventType() string { return TypeAuctionBidPlaced }

func (e AuctionBidPlaced) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionBidPlaced,
		Attributes: map[string]string{
			"id":      hex.EncodeToString(e.ID[:]),
			"bidder":  addrString(e.Bidder),
			"amount":  formatAmount(e.Amount),
			"slot":    strconv.FormatUint(e.Slot, 10),
			"bidTime": intToString(e.BidTime),
		},
	}
}

type AuctionBidWithdrawn struct {
	ID     [32]byte
	Bidder [20]byte
	Amount *big.Int
}

func (AuctionBidWithdrawn) EventType() string { return TypeAuctionBidWithdrawn }

func (e AuctionBidWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionBidWithdrawn,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"bidder": addrString(e.Bidder),
			"amount": formatAmount(e.Amount),
		},
	}
}

type AuctionResolved struct {
	ID     [32]byte
	Winner [20]byte
	Amount *big.Int
}

func (AuctionResolved) EventType() string { return TypeAuctionResolved }

func (e AuctionResolved) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionResolved,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"winner": addrString(e.Winner),
			"amount": formatAmount(e.Amount),
		},
	}
}

type AuctionDelivered struct {
	ID     [32]byte
	Owner  [20]byte
	Winner [20]byte
	Fee    *big.Int
	Net    *big.Int
}

func (AuctionDelivered) EventType() string { return TypeAuctionDelivered }

func (e AuctionDelivered) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionDelivered,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"owner":  addrString(e.Owner),
			"winner": addrString(e.Winner),
			"fee":    formatAmount(e.Fee),
			"net":    formatAmount(e.Net),
		},
	}
}

type EscrowCredited struct {
	Seller [20]byte
	Buyer  [20]byte
	Asset  [20]byte
	ItemID *big.Int
	Amount *big.Int
	Medium [20]byte
}

func (EscrowCredited) EventType() string { return TypeEscrowCredited }

func (e EscrowCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowCredited,
		Attributes: map[string]string{
			"seller": addrString(e.Seller),
			"buyer":  addrString(e.Buyer),
			"asset":  addrString(e.Asset),
			"itemId": formatAmount(e.ItemID),
			"amount": formatAmount(e.Amount),
			"medium": addrString(e.Medium),
		},
	}
}

type EscrowPaid struct {
	Seller  [20]byte
	Entries int
	Total   *big.Int
}

func (EscrowPaid) EventType() string { return TypeEscrowPaid }

func (e EscrowPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowPaid,
		Attributes: map[string]string{
			"seller":  addrString(e.Seller),
			"entries": strconv.Itoa(e.Entries),
			"total":   formatAmount(e.Total),
		},
	}
}
