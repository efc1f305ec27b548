package market

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"
)

type mockState struct {
	listings      map[[32]byte]*Listing
	auctions      map[[32]byte]*Auction
	ledgers       map[[32]byte]*BidLedger
	escrows       map[[20]byte][]EscrowEntry
	failEscrowPut bool
}

func newMockState() *mockState {
	return &mockState{
		listings: make(map[[32]byte]*Listing),
		auctions: make(map[[32]byte]*Auction),
		ledgers:  make(map[[32]byte]*BidLedger),
		escrows:  make(map[[20]byte][]EscrowEntry),
	}
}

func (m *mockState) ListingPut(l *Listing) error {
	if l == nil {
		return fmt.Errorf("nil listing")
	}
	m.listings[l.ID] = l.Clone()
	return nil
}

func (m *mockState) ListingGet(id [32]byte) (*Listing, bool) {
	l, ok := m.listings[id]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

func (m *mockState) ListingDelete(id [32]byte) error {
	delete(m.listings, id)
	return nil
}

func (m *mockState) AuctionPut(a *Auction) error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	m.auctions[a.ID] = a.Clone()
	return nil
}

func (m *mockState) AuctionGet(id [32]byte) (*Auction, bool) {
	a, ok := m.auctions[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

func (m *mockState) AuctionDelete(id [32]byte) error {
	delete(m.auctions, id)
	return nil
}

func (m *mockState) BidLedgerPut(b *BidLedger) error {
	if b == nil {
		return fmt.Errorf("nil bid ledger")
	}
	m.ledgers[b.AuctionID] = b.Clone()
	return nil
}

func (m *mockState) BidLedgerGet(id [32]byte) (*BidLedger, bool) {
	b, ok := m.ledgers[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

func (m *mockState) BidLedgerDelete(id [32]byte) error {
	delete(m.ledgers, id)
	return nil
}

func (m *mockState) EscrowGet(seller [20]byte) ([]EscrowEntry, error) {
	entries := m.escrows[seller]
	out := make([]EscrowEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out, nil
}

func (m *mockState) EscrowPut(seller [20]byte, entries []EscrowEntry) error {
	if m.failEscrowPut {
		return fmt.Errorf("escrow write refused")
	}
	if len(entries) == 0 {
		delete(m.escrows, seller)
		return nil
	}
	stored := make([]EscrowEntry, len(entries))
	for i, entry := range entries {
		stored[i] = entry.Clone()
	}
	m.escrows[seller] = stored
	return nil
}

// mockPayments keeps per-address balances per medium with the engine custody
// modelled as the vault address. Pull moves funds into the vault, Push out of
// it.
type mockPayments struct {
	vault    [20]byte
	balances map[[20]byte]map[[20]byte]*big.Int
	failPull bool
	failPush bool
	onPull   func()
}

func newMockPayments(vault [20]byte) *mockPayments {
	return &mockPayments{
		vault:    vault,
		balances: make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

func (m *mockPayments) fund(addr, medium [20]byte, amount int64) {
	m.credit(addr, medium, big.NewInt(amount))
}

func (m *mockPayments) balance(addr, medium [20]byte) *big.Int {
	if byMedium, ok := m.balances[addr]; ok {
		if bal, ok := byMedium[medium]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

func (m *mockPayments) credit(addr, medium [20]byte, amount *big.Int) {
	byMedium, ok := m.balances[addr]
	if !ok {
		byMedium = make(map[[20]byte]*big.Int)
		m.balances[addr] = byMedium
	}
	bal, ok := byMedium[medium]
	if !ok {
		bal = big.NewInt(0)
	}
	byMedium[medium] = new(big.Int).Add(bal, amount)
}

func (m *mockPayments) debit(addr, medium [20]byte, amount *big.Int) error {
	bal := m.balance(addr, medium)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	m.balances[addr][medium] = bal.Sub(bal, amount)
	return nil
}

func (m *mockPayments) transfer(from, to, medium [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount")
	}
	if err := m.debit(from, medium, amount); err != nil {
		return err
	}
	m.credit(to, medium, amount)
	return nil
}

func (m *mockPayments) Pull(from [20]byte, medium [20]byte, amount *big.Int) error {
	if m.onPull != nil {
		m.onPull()
	}
	if m.failPull {
		return fmt.Errorf("pull rejected")
	}
	return m.transfer(from, m.vault, medium, amount)
}

func (m *mockPayments) Push(to [20]byte, medium [20]byte, amount *big.Int) error {
	if m.failPush {
		return fmt.Errorf("push rejected")
	}
	return m.transfer(m.vault, to, medium, amount)
}

func (m *mockPayments) PushBatch(payments []Payment) error {
	if m.failPush {
		return fmt.Errorf("push rejected")
	}
	needed := make(map[[20]byte]*big.Int)
	for _, p := range payments {
		total, ok := needed[p.Medium]
		if !ok {
			total = big.NewInt(0)
		}
		needed[p.Medium] = total.Add(total, p.Amount)
	}
	for medium, total := range needed {
		if m.balance(m.vault, medium).Cmp(total) < 0 {
			return fmt.Errorf("insufficient vault balance")
		}
	}
	for _, p := range payments {
		if err := m.transfer(m.vault, p.To, p.Medium, p.Amount); err != nil {
			return err
		}
	}
	return nil
}

// totalSupply sums every balance of the given medium, vault included. The
// engine must conserve it across any sequence of operations.
func (m *mockPayments) totalSupply(medium [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, byMedium := range m.balances {
		if bal, ok := byMedium[medium]; ok {
			total.Add(total, bal)
		}
	}
	return total
}

type mockRegistry struct {
	kind         AssetKind
	owners       map[string][20]byte
	balances     map[[20]byte]map[string]uint64
	approvals    map[[20]byte]map[[20]byte]bool
	failTransfer bool
}

func newMockRegistry(kind AssetKind) *mockRegistry {
	return &mockRegistry{
		kind:      kind,
		owners:    make(map[string][20]byte),
		balances:  make(map[[20]byte]map[string]uint64),
		approvals: make(map[[20]byte]map[[20]byte]bool),
	}
}

func itemKey(itemID *big.Int) string {
	if itemID == nil {
		return "0"
	}
	return itemID.String()
}

func (m *mockRegistry) setOwner(itemID *big.Int, owner [20]byte) {
	m.owners[itemKey(itemID)] = owner
}

func (m *mockRegistry) setBalance(holder [20]byte, itemID *big.Int, qty uint64) {
	byItem, ok := m.balances[holder]
	if !ok {
		byItem = make(map[string]uint64)
		m.balances[holder] = byItem
	}
	byItem[itemKey(itemID)] = qty
}

func (m *mockRegistry) approve(holder, operator [20]byte) {
	byOp, ok := m.approvals[holder]
	if !ok {
		byOp = make(map[[20]byte]bool)
		m.approvals[holder] = byOp
	}
	byOp[operator] = true
}

func (m *mockRegistry) Kind() AssetKind { return m.kind }

func (m *mockRegistry) HoldingOf(holder [20]byte, itemID *big.Int) (uint64, error) {
	if m.kind == AssetSingleton {
		if m.owners[itemKey(itemID)] == holder {
			return 1, nil
		}
		return 0, nil
	}
	return m.balances[holder][itemKey(itemID)], nil
}

func (m *mockRegistry) IsApprovedForAll(holder, operator [20]byte) (bool, error) {
	return m.approvals[holder][operator], nil
}

func (m *mockRegistry) Transfer(from, to [20]byte, itemID *big.Int, quantity uint64) error {
	if m.failTransfer {
		return fmt.Errorf("transfer rejected")
	}
	if m.kind == AssetSingleton {
		if quantity != 1 {
			return fmt.Errorf("singleton transfer quantity must be 1")
		}
		if m.owners[itemKey(itemID)] != from {
			return fmt.Errorf("not the owner")
		}
		m.owners[itemKey(itemID)] = to
		return nil
	}
	if m.balances[from][itemKey(itemID)] < quantity {
		return fmt.Errorf("insufficient asset balance")
	}
	m.balances[from][itemKey(itemID)] -= quantity
	m.setBalance(to, itemID, m.balances[to][itemKey(itemID)]+quantity)
	return nil
}

type mockResolver map[[20]byte]AssetRegistry

func (m mockResolver) Resolve(asset [20]byte) (AssetRegistry, error) {
	reg, ok := m[asset]
	if !ok {
		return nil, fmt.Errorf("unknown asset")
	}
	return reg, nil
}

type mockOracle map[[20]byte]bool

func (m mockOracle) Enabled(medium [20]byte) bool { return m[medium] }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type testFixture struct {
	engine   *Engine
	auctions *AuctionEngine
	state    *mockState
	payments *mockPayments
	registry *mockRegistry
	asset    [20]byte
	operator [20]byte
	now      int64
}

func newFixture(kind AssetKind) *testFixture {
	operator := newTestAddress(0xF0)
	custody := newTestAddress(0xEE)
	engine := NewEngine(operator, custody)
	state := newMockState()
	payments := newMockPayments(custody)
	registry := newMockRegistry(kind)
	asset := newTestAddress(0xA5)
	engine.SetState(state)
	engine.SetPayments(payments)
	engine.SetAssets(mockResolver{asset: registry})
	fx := &testFixture{
		engine:   engine,
		auctions: NewAuctionEngine(engine),
		state:    state,
		payments: payments,
		registry: registry,
		asset:    asset,
		operator: operator,
		now:      1_700_000_000,
	}
	engine.SetNowFunc(func() int64 { return fx.now })
	return fx
}

func TestListItemValidations(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	item := big.NewInt(7)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	token := newTestAddress(0x42)

	cases := []struct {
		name     string
		quantity uint64
		price    *big.Int
		medium   [20]byte
		wantErr  bool
	}{
		{"ok native", 1, big.NewInt(100), NativeMedium, false},
		{"zero quantity", 0, big.NewInt(100), NativeMedium, true},
		{"zero price", 1, big.NewInt(0), NativeMedium, true},
		{"nil price", 1, nil, NativeMedium, true},
		{"token medium without oracle", 1, big.NewInt(100), token, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(AssetSingleton)
			fx.registry.setOwner(item, seller)
			fx.registry.approve(seller, fx.engine.Address())
			_, err := fx.engine.ListItem(seller, fx.asset, item, tc.quantity, tc.price, tc.medium, fx.now)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !errors.Is(err, ErrPrecondition) {
					t.Fatalf("expected precondition violation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestListItemHoldingAndApproval(t *testing.T) {
	seller := newTestAddress(0x01)
	item := big.NewInt(7)

	fx := newFixture(AssetSingleton)
	fx.registry.setOwner(item, newTestAddress(0x99))
	fx.registry.approve(seller, fx.engine.Address())
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected precondition for non-owner, got %v", err)
	}

	fx = newFixture(AssetSingleton)
	fx.registry.setOwner(item, seller)
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected precondition for missing approval, got %v", err)
	}
}

func TestListItemRejectsDuplicate(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	item := big.NewInt(7)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now); err != nil {
		t.Fatalf("first listing: %v", err)
	}
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(200), NativeMedium, fx.now); !errors.Is(err, ErrListingExists) {
		t.Fatalf("expected ErrListingExists, got %v", err)
	}
}

func TestListItemTokenMediumConsultsOracle(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	item := big.NewInt(7)
	token := newTestAddress(0x42)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	if err := fx.engine.SetMediumOracle(fx.operator, mockOracle{token: true}); err != nil {
		t.Fatalf("set oracle: %v", err)
	}
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), token, fx.now); err != nil {
		t.Fatalf("token listing: %v", err)
	}
	other := newTestAddress(0x43)
	if _, err := fx.engine.ListItem(seller, fx.asset, big.NewInt(8), 1, big.NewInt(100), other, fx.now); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected disabled medium rejection, got %v", err)
	}
}

func TestBuyItemScenario(t *testing.T) {
	// List qty=1 price=2 native; buyer pays 2 exactly; delivery splits
	// fee = 2*feeBps/10000 to the recipient and credits 2-fee to escrow,
	// then deletes the listing.
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	recipient := newTestAddress(0x03)
	item := big.NewInt(1)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	fx.payments.fund(buyer, NativeMedium, 10)
	if err := fx.engine.SetFeeRecipient(fx.operator, recipient); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if err := fx.engine.SetFeeRate(fx.operator, 1000); err != nil {
		t.Fatalf("set fee: %v", err)
	}

	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(2), NativeMedium, fx.now); err != nil {
		t.Fatalf("list: %v", err)
	}
	listing, err := fx.engine.BuyItem(buyer, fx.asset, item, seller)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !listing.Sold || listing.Buyer != buyer {
		t.Fatalf("listing not marked sold for buyer")
	}
	if got := fx.payments.balance(buyer, NativeMedium); got.Int64() != 8 {
		t.Fatalf("buyer balance after purchase: %s", got)
	}
	if err := fx.engine.ConfirmListingDelivery(buyer, fx.asset, item, seller); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if owner := fx.registry.owners[itemKey(item)]; owner != buyer {
		t.Fatalf("asset not delivered to buyer")
	}
	// fee = floor(2*1000/10000) = 0, so the full 2 accrues to escrow.
	if got := fx.payments.balance(recipient, NativeMedium); got.Sign() != 0 {
		t.Fatalf("unexpected fee payout: %s", got)
	}
	entries, err := fx.engine.Escrow(seller)
	if err != nil {
		t.Fatalf("escrow: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount.Int64() != 2 || !entries[0].Pending {
		t.Fatalf("unexpected escrow entries: %+v", entries)
	}
	if _, ok := fx.engine.GetListing(fx.asset, item, seller); ok {
		t.Fatalf("listing should be deleted after delivery")
	}
}

func TestDeliverySplitsNonZeroFee(t *testing.T) {
	fx := newFixture(AssetQuantity)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	recipient := newTestAddress(0x03)
	item := big.NewInt(55)
	fx.registry.setBalance(seller, item, 10)
	fx.registry.approve(seller, fx.engine.Address())
	fx.payments.fund(buyer, NativeMedium, 100_000)
	if err := fx.engine.SetFeeRecipient(fx.operator, recipient); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if err := fx.engine.SetFeeRate(fx.operator, 250); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 4, big.NewInt(2_500), NativeMedium, fx.now); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := fx.engine.BuyItem(buyer, fx.asset, item, seller); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := fx.engine.ConfirmListingDelivery(buyer, fx.asset, item, seller); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// total = 10_000, fee = 250, net = 9_750
	if got := fx.payments.balance(recipient, NativeMedium); got.Int64() != 250 {
		t.Fatalf("fee recipient balance: %s", got)
	}
	entries, _ := fx.engine.Escrow(seller)
	if len(entries) != 1 || entries[0].Amount.Int64() != 9_750 {
		t.Fatalf("unexpected escrow: %+v", entries)
	}
	if got, _ := fx.registry.HoldingOf(buyer, item); got != 4 {
		t.Fatalf("buyer holds %d, want 4", got)
	}
	if got, _ := fx.registry.HoldingOf(seller, item); got != 6 {
		t.Fatalf("seller holds %d, want 6", got)
	}
}

func TestDeliveryEscrowWriteFailureLeavesFeeUnpaid(t *testing.T) {
	fx := newFixture(AssetQuantity)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	recipient := newTestAddress(0x03)
	item := big.NewInt(55)
	fx.registry.setBalance(seller, item, 4)
	fx.registry.approve(seller, fx.engine.Address())
	fx.payments.fund(buyer, NativeMedium, 10_000)
	if err := fx.engine.SetFeeRecipient(fx.operator, recipient); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if err := fx.engine.SetFeeRate(fx.operator, 250); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 4, big.NewInt(2_500), NativeMedium, fx.now); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := fx.engine.BuyItem(buyer, fx.asset, item, seller); err != nil {
		t.Fatalf("buy: %v", err)
	}

	fx.state.failEscrowPut = true
	if err := fx.engine.ConfirmListingDelivery(buyer, fx.asset, item, seller); err == nil {
		t.Fatalf("expected delivery to fail on escrow write")
	}
	// The escrow credit precedes the fee push, so a refused write keeps the
	// whole purchase amount in custody with no partial fee paid out.
	if got := fx.payments.balance(recipient, NativeMedium); got.Sign() != 0 {
		t.Fatalf("fee paid despite failed escrow write: %s", got)
	}
	if got := fx.payments.balance(fx.payments.vault, NativeMedium); got.Int64() != 10_000 {
		t.Fatalf("custody balance: %s, want 10000", got)
	}
	entries, err := fx.engine.Escrow(seller)
	if err != nil {
		t.Fatalf("escrow: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("unexpected escrow entries: %+v", entries)
	}
}

func TestBuyItemPreconditions(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	item := big.NewInt(9)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	fx.payments.fund(buyer, NativeMedium, 1_000)
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now+50); err != nil {
		t.Fatalf("list: %v", err)
	}

	if _, err := fx.engine.BuyItem(buyer, fx.asset, item, seller); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected not-open rejection, got %v", err)
	}
	fx.now += 50
	if _, err := fx.engine.BuyItem(seller, fx.asset, item, seller); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected self-purchase rejection, got %v", err)
	}
	// Seller transferring the asset away after listing must block the sale.
	fx.registry.setOwner(item, newTestAddress(0x77))
	if _, err := fx.engine.BuyItem(buyer, fx.asset, item, seller); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected stale-ownership rejection, got %v", err)
	}
	fx.registry.setOwner(item, seller)
	poor := newTestAddress(0x55)
	if _, err := fx.engine.BuyItem(poor, fx.asset, item, seller); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if l, ok := fx.engine.GetListing(fx.asset, item, seller); !ok || l.Sold {
		t.Fatalf("failed purchase must leave listing unsold")
	}
}

func TestConfirmListingDeliveryAuthorization(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	stranger := newTestAddress(0x09)
	item := big.NewInt(3)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	fx.payments.fund(buyer, NativeMedium, 500)
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(500), NativeMedium, fx.now); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := fx.engine.ConfirmListingDelivery(buyer, fx.asset, item, seller); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected unsold rejection, got %v", err)
	}
	if _, err := fx.engine.BuyItem(buyer, fx.asset, item, seller); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := fx.engine.ConfirmListingDelivery(stranger, fx.asset, item, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := fx.engine.ConfirmListingDelivery(fx.operator, fx.asset, item, seller); err != nil {
		t.Fatalf("operator delivery: %v", err)
	}
}

func TestCancelListing(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	item := big.NewInt(4)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := fx.engine.CancelListing(newTestAddress(0x09), fx.asset, item, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	// A seller that no longer holds the item cannot cancel; the operator can.
	fx.registry.setOwner(item, newTestAddress(0x77))
	if err := fx.engine.CancelListing(seller, fx.asset, item, seller); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected holder check, got %v", err)
	}
	if err := fx.engine.CancelListing(fx.operator, fx.asset, item, seller); err != nil {
		t.Fatalf("operator cancel: %v", err)
	}
	if _, ok := fx.engine.GetListing(fx.asset, item, seller); ok {
		t.Fatalf("listing should be gone")
	}
}

func TestPayoutEscrow(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)

	if err := fx.engine.PayoutEscrow(fx.operator, seller); !errors.Is(err, ErrEscrowEmpty) {
		t.Fatalf("expected empty escrow failure, got %v", err)
	}
	if err := fx.engine.PayoutEscrow(seller, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	fx.payments.fund(fx.engine.Address(), NativeMedium, 900)
	entries := []EscrowEntry{
		{Asset: fx.asset, ItemID: big.NewInt(1), Buyer: newTestAddress(0x02), Medium: NativeMedium, Amount: big.NewInt(400), Pending: true},
		{Asset: fx.asset, ItemID: big.NewInt(2), Buyer: newTestAddress(0x03), Medium: NativeMedium, Amount: big.NewInt(500), Pending: true},
	}
	if err := fx.state.EscrowPut(seller, entries); err != nil {
		t.Fatalf("seed escrow: %v", err)
	}

	fx.payments.failPush = true
	if err := fx.engine.PayoutEscrow(fx.operator, seller); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	remaining, _ := fx.engine.Escrow(seller)
	if len(remaining) != 2 {
		t.Fatalf("failed payout must leave entries intact, have %d", len(remaining))
	}

	fx.payments.failPush = false
	if err := fx.engine.PayoutEscrow(fx.operator, seller); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got := fx.payments.balance(seller, NativeMedium); got.Int64() != 900 {
		t.Fatalf("seller balance after payout: %s", got)
	}
	remaining, _ = fx.engine.Escrow(seller)
	if len(remaining) != 0 {
		t.Fatalf("payout must empty the list, have %d", len(remaining))
	}
}

func TestConfigSetters(t *testing.T) {
	fx := newFixture(AssetSingleton)
	stranger := newTestAddress(0x09)
	recipient := newTestAddress(0x03)

	if err := fx.engine.SetFeeRate(stranger, 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := fx.engine.SetFeeRecipient(fx.operator, [20]byte{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected zero recipient rejection, got %v", err)
	}
	if err := fx.engine.SetFeeRecipient(fx.operator, recipient); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if err := fx.engine.SetFeeRate(fx.operator, 1001); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected fee cap rejection, got %v", err)
	}
	if err := fx.engine.SetFeeRate(fx.operator, 1000); err != nil {
		t.Fatalf("set fee at cap: %v", err)
	}
	if err := fx.engine.SetMinBidIncrement(fx.operator, big.NewInt(0)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected increment rejection, got %v", err)
	}
	if err := fx.engine.SetMinBidIncrement(fx.operator, big.NewInt(5)); err != nil {
		t.Fatalf("set increment: %v", err)
	}
	if err := fx.engine.SetBidWithdrawalLock(fx.operator, -1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected lock rejection, got %v", err)
	}
	params := fx.engine.Params()
	if params.FeeBps != 1000 || params.FeeRecipient != recipient || params.MinBidIncrement.Int64() != 5 {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestReentrancyGuard(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	item := big.NewInt(6)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	fx.payments.fund(buyer, NativeMedium, 1_000)
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now); err != nil {
		t.Fatalf("list: %v", err)
	}

	var nested error
	called := false
	fx.payments.onPull = func() {
		if called {
			return
		}
		called = true
		_, nested = fx.engine.BuyItem(buyer, fx.asset, item, seller)
	}
	if _, err := fx.engine.BuyItem(buyer, fx.asset, item, seller); err != nil {
		t.Fatalf("outer purchase: %v", err)
	}
	if !errors.Is(nested, ErrReentrancy) {
		t.Fatalf("nested call should hit the reentrancy guard, got %v", nested)
	}
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func TestPausedModuleRejectsMutations(t *testing.T) {
	fx := newFixture(AssetSingleton)
	seller := newTestAddress(0x01)
	item := big.NewInt(2)
	fx.registry.setOwner(item, seller)
	fx.registry.approve(seller, fx.engine.Address())
	fx.engine.SetPauses(pausedModules{marketModuleName: true})
	if _, err := fx.engine.ListItem(seller, fx.asset, item, 1, big.NewInt(100), NativeMedium, fx.now); err == nil {
		t.Fatalf("expected pause rejection")
	}
}
