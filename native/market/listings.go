package market

import (
	"math/big"

	"marketd/core/events"
	nativecommon "marketd/native/common"
)

// GetListing returns a copy of the listing stored for (asset, item, seller).
func (e *Engine) GetListing(asset [20]byte, itemID *big.Int, seller [20]byte) (*Listing, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	listing, ok := e.state.ListingGet(ListingKey(asset, itemID, seller))
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

// ListItem opens a fixed-price listing. The seller must currently hold the
// quantity offered and must have approved the engine as a transfer operator;
// the payment medium must be native or enabled in the accepted-medium oracle.
func (e *Engine) ListItem(seller, asset [20]byte, itemID *big.Int, quantity uint64, unitPrice *big.Int, medium [20]byte, startTime int64) (*Listing, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	if quantity == 0 {
		return nil, preconditionf("quantity must be positive")
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, preconditionf("unit price must be positive")
	}
	if !e.mediumAccepted(medium) {
		return nil, preconditionf("payment medium %x not accepted", medium)
	}
	reg, err := e.resolveRegistry(asset)
	if err != nil {
		return nil, err
	}
	if err := e.requireHolding(reg, seller, itemID, quantity); err != nil {
		return nil, err
	}
	if err := e.requireApproval(reg, seller); err != nil {
		return nil, err
	}
	id := ListingKey(asset, itemID, seller)
	if _, ok := e.state.ListingGet(id); ok {
		return nil, ErrListingExists
	}
	listing := &Listing{
		ID:        id,
		Asset:     asset,
		ItemID:    cloneBigInt(itemID),
		Seller:    seller,
		Quantity:  quantity,
		UnitPrice: new(big.Int).Set(unitPrice),
		Medium:    medium,
		StartTime: startTime,
		CreatedAt: e.now(),
	}
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return nil, preconditionf("%v", err)
	}
	if err := e.state.ListingPut(sanitized); err != nil {
		return nil, err
	}
	e.emit(events.ListingCreated{
		ID:        sanitized.ID,
		Asset:     asset,
		ItemID:    cloneBigInt(itemID),
		Seller:    seller,
		Quantity:  quantity,
		UnitPrice: cloneBigInt(unitPrice),
		Medium:    medium,
		StartTime: startTime,
	}.Event())
	return sanitized.Clone(), nil
}

// UpdateListing changes the price, quantity or payment medium of an unsold
// listing. Holdings and approval are re-validated against the new quantity.
func (e *Engine) UpdateListing(seller, asset [20]byte, itemID *big.Int, quantity uint64, unitPrice *big.Int, medium [20]byte) (*Listing, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	listing, ok := e.state.ListingGet(ListingKey(asset, itemID, seller))
	if !ok {
		return nil, ErrListingNotFound
	}
	if listing.Sold {
		return nil, preconditionf("listing already sold")
	}
	if quantity == 0 {
		return nil, preconditionf("quantity must be positive")
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, preconditionf("unit price must be positive")
	}
	if !e.mediumAccepted(medium) {
		return nil, preconditionf("payment medium %x not accepted", medium)
	}
	reg, err := e.resolveRegistry(asset)
	if err != nil {
		return nil, err
	}
	if err := e.requireHolding(reg, seller, itemID, quantity); err != nil {
		return nil, err
	}
	if err := e.requireApproval(reg, seller); err != nil {
		return nil, err
	}
	listing.Quantity = quantity
	listing.UnitPrice = new(big.Int).Set(unitPrice)
	listing.Medium = medium
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	e.emit(events.ListingUpdated{
		ID:        listing.ID,
		Quantity:  quantity,
		UnitPrice: cloneBigInt(unitPrice),
		Medium:    medium,
	}.Event())
	return listing.Clone(), nil
}

// CancelListing removes an unsold listing. The seller may cancel while still
// holding the asset; the operator may cancel unconditionally.
func (e *Engine) CancelListing(caller, asset [20]byte, itemID *big.Int, seller [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(ListingKey(asset, itemID, seller))
	if !ok {
		return ErrListingNotFound
	}
	if listing.Sold {
		return preconditionf("listing already sold")
	}
	if caller != e.operator {
		if caller != seller {
			return ErrUnauthorized
		}
		reg, err := e.resolveRegistry(asset)
		if err != nil {
			return err
		}
		if err := e.requireHolding(reg, seller, itemID, listing.Quantity); err != nil {
			return err
		}
	}
	if err := e.state.ListingDelete(listing.ID); err != nil {
		return err
	}
	e.emit(events.ListingCancelled{ID: listing.ID, Seller: seller}.Event())
	return nil
}

// BuyItem pays the full listed price into custody and marks the listing sold.
// The funds pull happens before any state mutation; a failed pull aborts with
// no state change. Seller holdings and approval are re-checked at purchase
// time, never trusted from listing time.
func (e *Engine) BuyItem(buyer, asset [20]byte, itemID *big.Int, seller [20]byte) (*Listing, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	listing, ok := e.state.ListingGet(ListingKey(asset, itemID, seller))
	if !ok {
		return nil, ErrListingNotFound
	}
	if listing.Sold {
		return nil, preconditionf("listing already sold")
	}
	if e.now() < listing.StartTime {
		return nil, preconditionf("listing not open yet")
	}
	if buyer == seller {
		return nil, preconditionf("seller cannot buy own listing")
	}
	reg, err := e.resolveRegistry(asset)
	if err != nil {
		return nil, err
	}
	if err := e.requireHolding(reg, seller, itemID, listing.Quantity); err != nil {
		return nil, err
	}
	if err := e.requireApproval(reg, seller); err != nil {
		return nil, err
	}
	total := listing.Total()
	if err := e.payments.Pull(buyer, listing.Medium, total); err != nil {
		return nil, transferFailed(err)
	}
	listing.Sold = true
	listing.Buyer = buyer
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	e.emit(events.ListingSold{
		ID:     listing.ID,
		Buyer:  buyer,
		Amount: total,
		Medium: listing.Medium,
	}.Event())
	return listing.Clone(), nil
}

// ConfirmListingDelivery finalises a sold listing: the asset moves to the
// buyer, the platform fee goes to the fee recipient, the net proceeds accrue
// to the seller's escrow ledger, and the listing record is cleared.
func (e *Engine) ConfirmListingDelivery(caller, asset [20]byte, itemID *big.Int, seller [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(ListingKey(asset, itemID, seller))
	if !ok {
		return ErrListingNotFound
	}
	if !listing.Sold {
		return preconditionf("listing not sold")
	}
	if caller != listing.Buyer && caller != e.operator {
		return ErrUnauthorized
	}
	reg, err := e.resolveRegistry(asset)
	if err != nil {
		return err
	}
	if err := reg.Transfer(seller, listing.Buyer, listing.ItemID, listing.Quantity); err != nil {
		return transferFailed(err)
	}
	split, err := e.settleSale(seller, listing.Buyer, asset, itemID, listing.Medium, listing.Total())
	if err != nil {
		return err
	}
	if err := e.state.ListingDelete(listing.ID); err != nil {
		return err
	}
	e.emit(events.ListingDelivered{
		ID:     listing.ID,
		Seller: seller,
		Buyer:  listing.Buyer,
		Fee:    split.Fee,
		Net:    split.Net,
	}.Event())
	return nil
}
