package market

import (
	"fmt"
	"math/big"
	"time"

	"marketd/core/events"
	"marketd/core/types"
	nativecommon "marketd/native/common"
	"marketd/native/fees"
)

const marketModuleName = "market"

// defaultBidWithdrawalLock is the fallback lock between placing a bid and
// pulling it back, in seconds.
const defaultBidWithdrawalLock int64 = 900

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(id [32]byte) (*Listing, bool)
	ListingDelete(id [32]byte) error
	AuctionPut(*Auction) error
	AuctionGet(id [32]byte) (*Auction, bool)
	AuctionDelete(id [32]byte) error
	BidLedgerPut(*BidLedger) error
	BidLedgerGet(id [32]byte) (*BidLedger, bool)
	BidLedgerDelete(id [32]byte) error
	EscrowGet(seller [20]byte) ([]EscrowEntry, error)
	EscrowPut(seller [20]byte, entries []EscrowEntry) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine owns the marketplace ledgers: fixed-price listings, the per-seller
// escrow ledger, and the platform fee configuration. The auction flow layers
// on top of it via AuctionEngine and shares its custody, settlement and
// reentrancy primitives. All mutating entry points are non-reentrant.
type Engine struct {
	state    engineState
	payments PaymentAdapter
	assets   AssetResolver
	oracle   MediumOracle
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	guard    nativecommon.CallGuard
	operator [20]byte
	address  [20]byte
	params   Params
	nowFn    func() int64
}

// NewEngine creates a market engine. The operator is the privileged identity
// gating configuration and payout calls; address is the engine's own custody
// identity, the operator participants approve on their asset registries.
func NewEngine(operator, address [20]byte) *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		operator: operator,
		address:  address,
		params: Params{
			MinBidIncrement:   big.NewInt(1),
			BidWithdrawalLock: defaultBidWithdrawalLock,
		},
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPayments configures the payment adapter moving fungible value.
func (e *Engine) SetPayments(p PaymentAdapter) { e.payments = p }

// SetAssets configures the asset registry resolver.
func (e *Engine) SetAssets(r AssetResolver) { e.assets = r }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// enter acquires the reentrancy guard shared by every mutating entry point of
// the market and auction engines.
func (e *Engine) enter() error {
	if err := e.guard.Enter(); err != nil {
		return ErrReentrancy
	}
	return nil
}

func (e *Engine) exit() { e.guard.Exit() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.payments == nil {
		return errNilPayments
	}
	if e.assets == nil {
		return errNilAssets
	}
	return nil
}

// Operator returns the privileged configuration identity.
func (e *Engine) Operator() [20]byte { return e.operator }

// Address returns the engine's custody identity.
func (e *Engine) Address() [20]byte { return e.address }

// Params returns a copy of the current engine configuration.
func (e *Engine) Params() Params { return e.params.Clone() }

func (e *Engine) requireOperator(caller [20]byte) error {
	if caller != e.operator {
		return ErrUnauthorized
	}
	return nil
}

// --- Privileged configuration surface ---

// SetFeeRate updates the platform fee rate. The cap is enforced here and
// trusted at settlement.
func (e *Engine) SetFeeRate(caller [20]byte, bps uint32) error {
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	policy := fees.Policy{FeeBps: bps, Recipient: e.params.FeeRecipient}
	if err := policy.Validate(); err != nil {
		return configViolation("%v", err)
	}
	e.params.FeeBps = bps
	return nil
}

// SetFeeRecipient updates the platform fee recipient.
func (e *Engine) SetFeeRecipient(caller, recipient [20]byte) error {
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if recipient == ([20]byte{}) {
		return configViolation("fee recipient must not be zero")
	}
	e.params.FeeRecipient = recipient
	return nil
}

// SetMinBidIncrement updates the global minimum bid increment.
func (e *Engine) SetMinBidIncrement(caller [20]byte, increment *big.Int) error {
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if increment == nil || increment.Sign() <= 0 {
		return configViolation("bid increment must be positive")
	}
	e.params.MinBidIncrement = new(big.Int).Set(increment)
	return nil
}

// SetBidWithdrawalLock updates the global bid withdrawal lock in seconds.
func (e *Engine) SetBidWithdrawalLock(caller [20]byte, seconds int64) error {
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if seconds < 0 {
		return configViolation("withdrawal lock must be non-negative")
	}
	e.params.BidWithdrawalLock = seconds
	return nil
}

// SetMediumOracle updates the accepted-medium oracle reference.
func (e *Engine) SetMediumOracle(caller [20]byte, oracle MediumOracle) error {
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	e.oracle = oracle
	return nil
}

// --- Shared checks ---

func (e *Engine) mediumAccepted(medium [20]byte) bool {
	if medium == NativeMedium {
		return true
	}
	if e.oracle == nil {
		return false
	}
	return e.oracle.Enabled(medium)
}

func (e *Engine) resolveRegistry(asset [20]byte) (AssetRegistry, error) {
	if e.assets == nil {
		return nil, errNilAssets
	}
	reg, err := e.assets.Resolve(asset)
	if err != nil {
		return nil, preconditionf("unknown asset %x", asset)
	}
	if reg == nil || !reg.Kind().Valid() {
		return nil, preconditionf("unknown asset %x", asset)
	}
	return reg, nil
}

// requireHolding re-validates that holder currently controls the required
// quantity. Ownership is never cached between calls.
func (e *Engine) requireHolding(reg AssetRegistry, holder [20]byte, itemID *big.Int, quantity uint64) error {
	if reg.Kind() == AssetSingleton && quantity != 1 {
		return preconditionf("singleton assets trade with quantity 1")
	}
	held, err := reg.HoldingOf(holder, itemID)
	if err != nil {
		return fmt.Errorf("market: holding query: %w", err)
	}
	if held < quantity {
		return preconditionf("holder controls %d of required %d", held, quantity)
	}
	return nil
}

// requireApproval re-validates that holder has approved the engine as a
// transfer operator.
func (e *Engine) requireApproval(reg AssetRegistry, holder [20]byte) error {
	ok, err := reg.IsApprovedForAll(holder, e.address)
	if err != nil {
		return fmt.Errorf("market: approval query: %w", err)
	}
	if !ok {
		return preconditionf("engine not approved as transfer operator")
	}
	return nil
}

// --- Escrow ledger ---

// Escrow returns a copy of the seller's pending escrow entries.
func (e *Engine) Escrow(seller [20]byte) ([]EscrowEntry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	entries, err := e.state.EscrowGet(seller)
	if err != nil {
		return nil, err
	}
	out := make([]EscrowEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out, nil
}

func (e *Engine) creditEscrow(seller [20]byte, entry EscrowEntry) error {
	entries, err := e.state.EscrowGet(seller)
	if err != nil {
		return err
	}
	entries = append(entries, entry.Clone())
	if err := e.state.EscrowPut(seller, entries); err != nil {
		return err
	}
	e.emit(events.EscrowCredited{
		Seller: seller,
		Buyer:  entry.Buyer,
		Asset:  entry.Asset,
		ItemID: cloneBigInt(entry.ItemID),
		Amount: cloneBigInt(entry.Amount),
		Medium: entry.Medium,
	}.Event())
	return nil
}

// PayoutEscrow pays every pending entry of the seller's escrow list and
// empties it. Operator-only; all-or-nothing per call: any failed push aborts
// with nothing committed so the operator can retry after resolving the cause.
func (e *Engine) PayoutEscrow(caller, seller [20]byte) error {
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
	if err := e.requireOperator(caller); err != nil {
		return err
	}
	entries, err := e.state.EscrowGet(seller)
	if err != nil {
		return err
	}
	payments := make([]Payment, 0, len(entries))
	total := big.NewInt(0)
	for _, entry := range entries {
		if !entry.Pending {
			continue
		}
		payments = append(payments, Payment{To: seller, Medium: entry.Medium, Amount: cloneBigInt(entry.Amount)})
		total.Add(total, entry.Amount)
	}
	if len(payments) == 0 {
		return ErrEscrowEmpty
	}
	if err := e.payments.PushBatch(payments); err != nil {
		return transferFailed(err)
	}
	if err := e.state.EscrowPut(seller, nil); err != nil {
		return err
	}
	e.emit(events.EscrowPaid{Seller: seller, Entries: len(payments), Total: total}.Event())
	return nil
}

// settleSale splits the sale proceeds held in custody: the net amount is
// credited to the seller's escrow ledger pending an explicit payout, then the
// platform fee is pushed to the fee recipient. The escrow write always
// precedes the external fee push.
func (e *Engine) settleSale(seller, buyer, asset [20]byte, itemID *big.Int, medium [20]byte, total *big.Int) (fees.Split, error) {
	split := fees.Apply(total, e.params.FeeBps)
	entry := EscrowEntry{
		Asset:   asset,
		ItemID:  cloneBigInt(itemID),
		Buyer:   buyer,
		Medium:  medium,
		Amount:  cloneBigInt(split.Net),
		Pending: true,
	}
	if err := e.creditEscrow(seller, entry); err != nil {
		return split, err
	}
	if split.Fee.Sign() > 0 {
		if err := e.payments.Push(e.params.FeeRecipient, medium, split.Fee); err != nil {
			return split, transferFailed(err)
		}
	}
	return split, nil
}
