package market

import (
	"math/big"

	"marketd/core/events"
	nativecommon "marketd/native/common"
)

// AuctionEngine runs the timed ascending-bid flow on top of the base market
// engine, sharing its custody, settlement, configuration and reentrancy
// primitives. Outbid refunds are pull-based: placing a higher bid never pays
// the previous bidder back automatically, the outbid party withdraws once the
// lock elapses.
type AuctionEngine struct {
	engine *Engine
}

// NewAuctionEngine constructs an auction engine bound to the supplied market
// engine.
func NewAuctionEngine(engine *Engine) *AuctionEngine {
	return &AuctionEngine{engine: engine}
}

// GetAuction returns a copy of the auction stored for (asset, item).
func (e *AuctionEngine) GetAuction(asset [20]byte, itemID *big.Int) (*Auction, bool) {
	if e == nil || e.engine == nil || e.engine.state == nil {
		return nil, false
	}
	auction, ok := e.engine.state.AuctionGet(AuctionKey(asset, itemID))
	if !ok {
		return nil, false
	}
	return auction.Clone(), true
}

// GetBidLedger returns a copy of the bid ledger stored for (asset, item).
func (e *AuctionEngine) GetBidLedger(asset [20]byte, itemID *big.Int) (*BidLedger, bool) {
	if e == nil || e.engine == nil || e.engine.state == nil {
		return nil, false
	}
	ledger, ok := e.engine.state.BidLedgerGet(AuctionKey(asset, itemID))
	if !ok {
		return nil, false
	}
	return ledger.Clone(), true
}

func (e *AuctionEngine) ready() error {
	if e == nil || e.engine == nil {
		return errNilState
	}
	return e.engine.ready()
}

func (e *AuctionEngine) loadAuction(asset [20]byte, itemID *big.Int) (*Auction, error) {
	auction, ok := e.engine.state.AuctionGet(AuctionKey(asset, itemID))
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return auction, nil
}

func (e *AuctionEngine) loadLedger(id [32]byte) *BidLedger {
	ledger, ok := e.engine.state.BidLedgerGet(id)
	if !ok {
		return NewBidLedger(id)
	}
	return ledger
}

// CreateAuction opens a timed auction. Start must be strictly in the future
// and precede end; the owner must hold the quantity offered and must have
// approved the engine as a transfer operator.
func (e *AuctionEngine) CreateAuction(owner, asset [20]byte, itemID *big.Int, quantity uint64, reservePrice *big.Int, medium [20]byte, startTime, endTime int64) (*Auction, error) {
	if err := e.engine.enter(); err != nil {
		return nil, err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.engine.pauses, marketModuleName); err != nil {
		return nil, err
	}
	if quantity == 0 {
		return nil, preconditionf("quantity must be positive")
	}
	if reservePrice != nil && reservePrice.Sign() < 0 {
		return nil, preconditionf("reserve price must be non-negative")
	}
	now := e.engine.now()
	if startTime <= now {
		return nil, preconditionf("auction start must be in the future")
	}
	if startTime >= endTime {
		return nil, preconditionf("auction start must precede end")
	}
	if !e.engine.mediumAccepted(medium) {
		return nil, preconditionf("payment medium %x not accepted", medium)
	}
	reg, err := e.engine.resolveRegistry(asset)
	if err != nil {
		return nil, err
	}
	if err := e.engine.requireHolding(reg, owner, itemID, quantity); err != nil {
		return nil, err
	}
	if err := e.engine.requireApproval(reg, owner); err != nil {
		return nil, err
	}
	id := AuctionKey(asset, itemID)
	if _, ok := e.engine.state.AuctionGet(id); ok {
		return nil, ErrAuctionExists
	}
	auction := &Auction{
		ID:           id,
		Asset:        asset,
		ItemID:       cloneBigInt(itemID),
		Owner:        owner,
		Quantity:     quantity,
		Medium:       medium,
		ReservePrice: cloneBigInt(reservePrice),
		StartTime:    startTime,
		EndTime:      endTime,
		Active:       true,
		CreatedAt:    now,
	}
	sanitized, err := SanitizeAuction(auction)
	if err != nil {
		return nil, preconditionf("%v", err)
	}
	if err := e.engine.state.AuctionPut(sanitized); err != nil {
		return nil, err
	}
	if err := e.engine.state.BidLedgerPut(NewBidLedger(id)); err != nil {
		return nil, err
	}
	e.engine.emit(events.AuctionCreated{
		ID:           id,
		Asset:        asset,
		ItemID:       cloneBigInt(itemID),
		Owner:        owner,
		Quantity:     quantity,
		ReservePrice: cloneBigInt(reservePrice),
		Medium:       medium,
		StartTime:    startTime,
		EndTime:      endTime,
	}.Event())
	return sanitized.Clone(), nil
}

// beforeStartUpdate loads the auction and enforces the shared update
// preconditions: owner-only, not sold, and strictly before the start time.
func (e *AuctionEngine) beforeStartUpdate(owner, asset [20]byte, itemID *big.Int) (*Auction, error) {
	auction, err := e.loadAuction(asset, itemID)
	if err != nil {
		return nil, err
	}
	if auction.Owner != owner {
		return nil, ErrUnauthorized
	}
	if auction.Sold {
		return nil, preconditionf("auction already settled")
	}
	if e.engine.now() >= auction.StartTime {
		return nil, preconditionf("auction already started")
	}
	return auction, nil
}

func (e *AuctionEngine) putAndEmitUpdate(auction *Auction) (*Auction, error) {
	if err := e.engine.state.AuctionPut(auction); err != nil {
		return nil, err
	}
	e.engine.emit(events.AuctionUpdated{
		ID:           auction.ID,
		ReservePrice: cloneBigInt(auction.ReservePrice),
		StartTime:    auction.StartTime,
		EndTime:      auction.EndTime,
	}.Event())
	return auction.Clone(), nil
}

// UpdateReservePrice changes the reserve before the auction starts.
func (e *AuctionEngine) UpdateReservePrice(owner, asset [20]byte, itemID *big.Int, reservePrice *big.Int) (*Auction, error) {
	if err := e.engine.enter(); err != nil {
		return nil, err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if reservePrice != nil && reservePrice.Sign() < 0 {
		return nil, preconditionf("reserve price must be non-negative")
	}
	auction, err := e.beforeStartUpdate(owner, asset, itemID)
	if err != nil {
		return nil, err
	}
	auction.ReservePrice = cloneBigInt(reservePrice)
	return e.putAndEmitUpdate(auction)
}

// UpdateStartTime moves the opening time before the auction starts.
func (e *AuctionEngine) UpdateStartTime(owner, asset [20]byte, itemID *big.Int, startTime int64) (*Auction, error) {
	if err := e.engine.enter(); err != nil {
		return nil, err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	auction, err := e.beforeStartUpdate(owner, asset, itemID)
	if err != nil {
		return nil, err
	}
	if startTime <= e.engine.now() {
		return nil, preconditionf("auction start must be in the future")
	}
	if startTime >= auction.EndTime {
		return nil, preconditionf("auction start must precede end")
	}
	auction.StartTime = startTime
	return e.putAndEmitUpdate(auction)
}

// UpdateEndTime moves the closing time before the auction starts. The new end
// must be after both the current time and the start time.
func (e *AuctionEngine) UpdateEndTime(owner, asset [20]byte, itemID *big.Int, endTime int64) (*Auction, error) {
	if err := e.engine.enter(); err != nil {
		return nil, err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	auction, err := e.beforeStartUpdate(owner, asset, itemID)
	if err != nil {
		return nil, err
	}
	if endTime <= e.engine.now() {
		return nil, preconditionf("auction end must be in the future")
	}
	if endTime <= auction.StartTime {
		return nil, preconditionf("auction end must follow start")
	}
	auction.EndTime = endTime
	return e.putAndEmitUpdate(auction)
}

// PlaceBid escrows a new bid. The funds pull happens before any state
// mutation; a failed pull aborts with nothing written. A bidder may not hold
// two live bids on the same auction; the previous highest bidder is not
// refunded here but withdraws once the lock elapses.
func (e *AuctionEngine) PlaceBid(bidder, asset [20]byte, itemID *big.Int, amount *big.Int, medium [20]byte) (BidderRecord, error) {
	if err := e.engine.enter(); err != nil {
		return BidderRecord{}, err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return BidderRecord{}, err
	}
	if err := nativecommon.Guard(e.engine.pauses, marketModuleName); err != nil {
		return BidderRecord{}, err
	}
	auction, err := e.loadAuction(asset, itemID)
	if err != nil {
		return BidderRecord{}, err
	}
	if !auction.Active || auction.Sold {
		return BidderRecord{}, preconditionf("auction not open for bids")
	}
	now := e.engine.now()
	if now < auction.StartTime {
		return BidderRecord{}, preconditionf("auction not started")
	}
	if now > auction.EndTime {
		return BidderRecord{}, preconditionf("auction already ended")
	}
	if medium != auction.Medium {
		return BidderRecord{}, preconditionf("bid medium must match auction medium")
	}
	if bidder == auction.Owner {
		return BidderRecord{}, preconditionf("owner cannot bid on own auction")
	}
	if amount == nil || amount.Sign() <= 0 {
		return BidderRecord{}, preconditionf("bid amount must be positive")
	}
	ledger := e.loadLedger(auction.ID)
	if _, ok := ledger.Record(bidder); ok {
		return BidderRecord{}, ErrDuplicateBid
	}
	required := new(big.Int).Add(ledger.HighestAmount, e.engine.params.MinBidIncrement)
	if ledger.HighestAmount.Sign() == 0 && auction.ReservePrice != nil && auction.ReservePrice.Cmp(required) > 0 {
		// The reserve acts as the starting price for the opening bid.
		required = cloneBigInt(auction.ReservePrice)
	}
	if amount.Cmp(required) < 0 {
		return BidderRecord{}, preconditionf("bid %s below required minimum %s", amount, required)
	}
	if err := e.engine.payments.Pull(bidder, medium, amount); err != nil {
		return BidderRecord{}, transferFailed(err)
	}
	slot := ledger.appendBid(bidder, amount, now)
	if err := e.engine.state.BidLedgerPut(ledger); err != nil {
		return BidderRecord{}, err
	}
	e.engine.emit(events.AuctionBidPlaced{
		ID:      auction.ID,
		Bidder:  bidder,
		Amount:  cloneBigInt(amount),
		Slot:    slot,
		BidTime: now,
	}.Event())
	return BidderRecord{Bidder: bidder, BidTime: now, Amount: cloneBigInt(amount), SlotIndex: slot}, nil
}

// WithdrawBid refunds the caller's live bid once the withdrawal lock has
// elapsed. A failed push leaves the record and slot intact so the caller can
// retry. When the withdrawing bidder held the high, the new highest bid is
// recomputed over the full live slot set.
func (e *AuctionEngine) WithdrawBid(caller, asset [20]byte, itemID *big.Int) error {
	if err := e.engine.enter(); err != nil {
		return err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.engine.pauses, marketModuleName); err != nil {
		return err
	}
	auction, err := e.loadAuction(asset, itemID)
	if err != nil {
		return err
	}
	ledger, ok := e.engine.state.BidLedgerGet(auction.ID)
	if !ok {
		return ErrNoLiveBid
	}
	record, ok := ledger.Record(caller)
	if !ok {
		return ErrNoLiveBid
	}
	if auction.Sold && caller == auction.Winner {
		return preconditionf("winning bid cannot be withdrawn")
	}
	now := e.engine.now()
	if now <= record.BidTime+e.engine.params.BidWithdrawalLock {
		return preconditionf("bid locked until %d", record.BidTime+e.engine.params.BidWithdrawalLock)
	}
	if err := e.engine.payments.Push(caller, auction.Medium, record.Amount); err != nil {
		return transferFailed(err)
	}
	ledger.zeroSlot(record.SlotIndex)
	ledger.removeRecord(caller)
	if !auction.Sold && ledger.HighestBidder == caller {
		ledger.recomputeHighest()
	}
	if err := e.engine.state.BidLedgerPut(ledger); err != nil {
		return err
	}
	e.engine.emit(events.AuctionBidWithdrawn{
		ID:     auction.ID,
		Bidder: caller,
		Amount: cloneBigInt(record.Amount),
	}.Event())
	return nil
}

// CancelAuction closes an unsold auction before its end time, refunding every
// live bidder in slot order. The owner must still hold the asset; the
// operator may cancel unconditionally.
func (e *AuctionEngine) CancelAuction(caller, asset [20]byte, itemID *big.Int) error {
	if err := e.engine.enter(); err != nil {
		return err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.engine.pauses, marketModuleName); err != nil {
		return err
	}
	auction, err := e.loadAuction(asset, itemID)
	if err != nil {
		return err
	}
	if auction.Sold {
		return preconditionf("auction already settled")
	}
	if e.engine.now() > auction.EndTime {
		return preconditionf("auction already ended")
	}
	if caller != e.engine.operator {
		if caller != auction.Owner {
			return ErrUnauthorized
		}
		reg, err := e.engine.resolveRegistry(asset)
		if err != nil {
			return err
		}
		if err := e.engine.requireHolding(reg, auction.Owner, itemID, auction.Quantity); err != nil {
			return err
		}
	}
	ledger := e.loadLedger(auction.ID)
	refunds := make([]Payment, 0, ledger.liveCount())
	for _, slot := range ledger.Slots {
		if !slot.Live() {
			continue
		}
		refunds = append(refunds, Payment{To: slot.Bidder, Medium: auction.Medium, Amount: cloneBigInt(slot.Amount)})
	}
	if len(refunds) > 0 {
		if err := e.engine.payments.PushBatch(refunds); err != nil {
			return transferFailed(err)
		}
	}
	if err := e.engine.state.BidLedgerDelete(auction.ID); err != nil {
		return err
	}
	if err := e.engine.state.AuctionDelete(auction.ID); err != nil {
		return err
	}
	e.engine.emit(events.AuctionCancelled{
		ID:       auction.ID,
		Owner:    auction.Owner,
		Refunded: len(refunds),
	}.Event())
	return nil
}

// ResolveAuction finalises the winner after the end time. The asset is pulled
// into the engine's custody first; only then is the auction marked sold with
// the winner and amount frozen. Fails when no live bid exists.
func (e *AuctionEngine) ResolveAuction(asset [20]byte, itemID *big.Int) (*Auction, error) {
	if err := e.engine.enter(); err != nil {
		return nil, err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.engine.pauses, marketModuleName); err != nil {
		return nil, err
	}
	auction, err := e.loadAuction(asset, itemID)
	if err != nil {
		return nil, err
	}
	if auction.Sold {
		return nil, preconditionf("auction already settled")
	}
	if e.engine.now() <= auction.EndTime {
		return nil, preconditionf("auction not ended")
	}
	ledger := e.loadLedger(auction.ID)
	if ledger.HighestAmount.Sign() == 0 {
		return nil, preconditionf("no winning bid to settle")
	}
	reg, err := e.engine.resolveRegistry(asset)
	if err != nil {
		return nil, err
	}
	if err := e.engine.requireHolding(reg, auction.Owner, itemID, auction.Quantity); err != nil {
		return nil, err
	}
	if err := e.engine.requireApproval(reg, auction.Owner); err != nil {
		return nil, err
	}
	if err := reg.Transfer(auction.Owner, e.engine.address, itemID, auction.Quantity); err != nil {
		return nil, transferFailed(err)
	}
	auction.Sold = true
	auction.Active = false
	auction.Winner = ledger.HighestBidder
	auction.WinningBid = cloneBigInt(ledger.HighestAmount)
	if err := e.engine.state.AuctionPut(auction); err != nil {
		return nil, err
	}
	e.engine.emit(events.AuctionResolved{
		ID:     auction.ID,
		Winner: auction.Winner,
		Amount: cloneBigInt(auction.WinningBid),
	}.Event())
	return auction.Clone(), nil
}

// ConfirmAuctionDelivery completes a resolved auction: the custodied asset
// moves to the winner, every remaining live non-winning bid is refunded, the
// fee split runs over the winning amount, the net accrues to the owner's
// escrow ledger, and the auction with its bid ledger is cleared.
func (e *AuctionEngine) ConfirmAuctionDelivery(caller, asset [20]byte, itemID *big.Int) error {
	if err := e.engine.enter(); err != nil {
		return err
	}
	defer e.engine.exit()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.engine.pauses, marketModuleName); err != nil {
		return err
	}
	auction, err := e.loadAuction(asset, itemID)
	if err != nil {
		return err
	}
	if !auction.Sold {
		return preconditionf("auction not settled")
	}
	if caller != auction.Winner && caller != e.engine.operator {
		return ErrUnauthorized
	}
	reg, err := e.engine.resolveRegistry(asset)
	if err != nil {
		return err
	}
	if err := reg.Transfer(e.engine.address, auction.Winner, itemID, auction.Quantity); err != nil {
		return transferFailed(err)
	}
	ledger := e.loadLedger(auction.ID)
	refunds := make([]Payment, 0, ledger.liveCount())
	for _, slot := range ledger.Slots {
		if !slot.Live() || slot.Bidder == auction.Winner {
			continue
		}
		refunds = append(refunds, Payment{To: slot.Bidder, Medium: auction.Medium, Amount: cloneBigInt(slot.Amount)})
	}
	if len(refunds) > 0 {
		if err := e.engine.payments.PushBatch(refunds); err != nil {
			return transferFailed(err)
		}
	}
	split, err := e.engine.settleSale(auction.Owner, auction.Winner, asset, itemID, auction.Medium, auction.WinningBid)
	if err != nil {
		return err
	}
	if err := e.engine.state.BidLedgerDelete(auction.ID); err != nil {
		return err
	}
	if err := e.engine.state.AuctionDelete(auction.ID); err != nil {
		return err
	}
	e.engine.emit(events.AuctionDelivered{
		ID:     auction.ID,
		Owner:  auction.Owner,
		Winner: auction.Winner,
		Fee:    split.Fee,
		Net:    split.Net,
	}.Event())
	return nil
}
