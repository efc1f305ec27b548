package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"marketd/native/market"
	"marketd/storage"
)

const accountPrefix = "market/account/"

func accountKey(addr, medium [20]byte) []byte {
	key := make([]byte, 0, len(accountPrefix)+41)
	key = append(key, accountPrefix...)
	key = append(key, medium[:]...)
	key = append(key, '/')
	key = append(key, addr[:]...)
	return key
}

// Ledger tracks fungible balances per (address, medium) pair and implements
// the payment adapter the market engine settles through. The vault address is
// the engine's custody identity: Pull credits it, Push debits it.
type Ledger struct {
	db    storage.Database
	vault [20]byte
}

// NewLedger creates a fund ledger over the given database with the supplied
// custody address.
func NewLedger(db storage.Database, vault [20]byte) *Ledger {
	return &Ledger{db: db, vault: vault}
}

// Vault returns the custody address funds settle through.
func (l *Ledger) Vault() [20]byte { return l.vault }

// Balance returns the stored balance for the address in the given medium. A
// missing account reads as zero.
func (l *Ledger) Balance(addr, medium [20]byte) (*big.Int, error) {
	key := accountKey(addr, medium)
	ok, err := l.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("ledger: balance lookup: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	raw, err := l.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("ledger: balance lookup: %w", err)
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return nil, fmt.Errorf("ledger: decode balance: %w", err)
	}
	return balance, nil
}

func (l *Ledger) setBalance(addr, medium [20]byte, balance *big.Int) error {
	key := accountKey(addr, medium)
	if balance.Sign() == 0 {
		return l.db.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("ledger: encode balance: %w", err)
	}
	return l.db.Put(key, encoded)
}

// Mint credits newly issued funds to the address. Used by genesis loading and
// deposit processing, never by settlement.
func (l *Ledger) Mint(addr, medium [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: mint amount must be non-negative")
	}
	balance, err := l.Balance(addr, medium)
	if err != nil {
		return err
	}
	return l.setBalance(addr, medium, balance.Add(balance, amount))
}

// Transfer moves funds between two accounts in the same medium.
func (l *Ledger) Transfer(from, to, medium [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.Balance(from, medium)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: insufficient balance: have %s, need %s", fromBalance, amount)
	}
	toBalance, err := l.Balance(to, medium)
	if err != nil {
		return err
	}
	if err := l.setBalance(from, medium, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.setBalance(to, medium, toBalance.Add(toBalance, amount))
}

// Pull moves funds from the payer into custody.
func (l *Ledger) Pull(from [20]byte, medium [20]byte, amount *big.Int) error {
	return l.Transfer(from, l.vault, medium, amount)
}

// Push moves funds out of custody to the recipient.
func (l *Ledger) Push(to [20]byte, medium [20]byte, amount *big.Int) error {
	return l.Transfer(l.vault, to, medium, amount)
}

// PushBatch pays every entry or none: custody coverage is verified per medium
// before any transfer is applied, so an underfunded batch fails without moving
// funds.
func (l *Ledger) PushBatch(payments []market.Payment) error {
	type mediumTotal struct {
		medium [20]byte
		total  *big.Int
	}
	totals := make([]mediumTotal, 0, 1)
	for _, p := range payments {
		if p.Amount == nil || p.Amount.Sign() < 0 {
			return fmt.Errorf("ledger: batch amount must be non-negative")
		}
		found := false
		for i := range totals {
			if totals[i].medium == p.Medium {
				totals[i].total.Add(totals[i].total, p.Amount)
				found = true
				break
			}
		}
		if !found {
			totals = append(totals, mediumTotal{medium: p.Medium, total: new(big.Int).Set(p.Amount)})
		}
	}
	for _, mt := range totals {
		balance, err := l.Balance(l.vault, mt.medium)
		if err != nil {
			return err
		}
		if balance.Cmp(mt.total) < 0 {
			return fmt.Errorf("ledger: custody underfunded in medium %x: have %s, need %s", mt.medium, balance, mt.total)
		}
	}
	for _, p := range payments {
		if err := l.Transfer(l.vault, p.To, p.Medium, p.Amount); err != nil {
			return err
		}
	}
	return nil
}
