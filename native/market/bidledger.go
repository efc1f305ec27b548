package market

import "math/big"

// NewBidLedger returns an empty ledger for the given auction.
func NewBidLedger(auctionID [32]byte) *BidLedger {
	return &BidLedger{
		AuctionID:     auctionID,
		HighestAmount: big.NewInt(0),
	}
}

// Record returns the live bidder record for the given address, if any.
func (b *BidLedger) Record(bidder [20]byte) (BidderRecord, bool) {
	if b == nil {
		return BidderRecord{}, false
	}
	for _, rec := range b.Records {
		if rec.Bidder == bidder {
			return rec, true
		}
	}
	return BidderRecord{}, false
}

// LiveBidders returns the live records in slot order.
func (b *BidLedger) LiveBidders() []BidderRecord {
	if b == nil || len(b.Records) == 0 {
		return nil
	}
	out := make([]BidderRecord, len(b.Records))
	copy(out, b.Records)
	for i := range out {
		out[i].Amount = cloneBigInt(out[i].Amount)
	}
	sortRecordsBySlot(out)
	return out
}

func sortRecordsBySlot(records []BidderRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j-1].SlotIndex > records[j].SlotIndex; j-- {
			records[j-1], records[j] = records[j], records[j-1]
		}
	}
}

// appendBid writes a new slot at the running counter, records the bidder, and
// adopts the amount as the new highest. Admission checks happen in the engine
// before funds are pulled; by the time this runs the amount is known to exceed
// the previous high.
func (b *BidLedger) appendBid(bidder [20]byte, amount *big.Int, bidTime int64) uint64 {
	slot := b.NextSlot
	b.NextSlot++
	b.Slots = append(b.Slots, BidSlot{Bidder: bidder, Amount: cloneBigInt(amount)})
	b.Records = append(b.Records, BidderRecord{
		Bidder:    bidder,
		BidTime:   bidTime,
		Amount:    cloneBigInt(amount),
		SlotIndex: slot,
	})
	b.HighestAmount = cloneBigInt(amount)
	b.HighestBidder = bidder
	return slot
}

// zeroSlot blanks the slot in place. Indices are stable: slots are never
// removed while the ledger lives.
func (b *BidLedger) zeroSlot(index uint64) {
	if index >= uint64(len(b.Slots)) {
		return
	}
	b.Slots[index] = BidSlot{Amount: big.NewInt(0)}
}

// removeRecord drops the bidder's bookkeeping entry.
func (b *BidLedger) removeRecord(bidder [20]byte) {
	for i, rec := range b.Records {
		if rec.Bidder == bidder {
			b.Records = append(b.Records[:i], b.Records[i+1:]...)
			return
		}
	}
}

// recomputeHighest scans the full live slot set for the true maximum and
// adopts it as the new high. An empty live set resets the high to zero. The
// scan is deliberately not the positional backward walk of older marketplace
// contracts, which misidentifies the next-highest bid once withdrawals leave
// non-contiguous gaps.
func (b *BidLedger) recomputeHighest() {
	best := big.NewInt(0)
	var bestBidder [20]byte
	for _, slot := range b.Slots {
		if !slot.Live() {
			continue
		}
		if slot.Amount.Cmp(best) > 0 {
			best = cloneBigInt(slot.Amount)
			bestBidder = slot.Bidder
		}
	}
	b.HighestAmount = best
	b.HighestBidder = bestBidder
}

// liveCount reports how many slots still escrow funds.
func (b *BidLedger) liveCount() int {
	n := 0
	for _, slot := range b.Slots {
		if slot.Live() {
			n++
		}
	}
	return n
}
