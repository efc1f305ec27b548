package core

import (
	"fmt"
	"log/slog"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"marketd/config"
	"marketd/core/events"
	"marketd/core/types"
	"marketd/crypto"
	"marketd/native/market"
	"marketd/observability"
	"marketd/state"
	"marketd/storage"
)

// Node wires the persistent stores to the market engines and fans engine
// events out to structured logging and metrics. It is the single assembly
// point the RPC server and the daemon entry point talk to.
type Node struct {
	db       storage.Database
	state    *state.Manager
	ledger   *state.Ledger
	assets   *state.AssetBook
	media    *state.MediumRegistry
	engine   *market.Engine
	auctions *market.AuctionEngine
	logger   *slog.Logger
	metrics  *observability.MarketMetrics
}

// CustodyAddress derives the engine's custody identity. Funds and resolved
// auction assets sit under this address between settlement steps; no private
// key exists for it.
func CustodyAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("marketd/custody"))[12:])
	return addr
}

// NewNode assembles a node from the given database and configuration.
func NewNode(db storage.Database, cfg config.Config, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	operator, err := crypto.DecodeAddress(cfg.Operator)
	if err != nil {
		return nil, fmt.Errorf("node: operator address: %w", err)
	}
	var operatorAddr [20]byte
	copy(operatorAddr[:], operator.Bytes())

	custody := CustodyAddress()
	if cfg.Custody != "" {
		decoded, err := crypto.DecodeAddress(cfg.Custody)
		if err != nil {
			return nil, fmt.Errorf("node: custody address: %w", err)
		}
		copy(custody[:], decoded.Bytes())
	}

	node := &Node{
		db:      db,
		state:   state.NewManager(db),
		ledger:  state.NewLedger(db, custody),
		assets:  state.NewAssetBook(db),
		media:   state.NewMediumRegistry(db),
		logger:  logger,
		metrics: observability.Market(),
	}

	engine := market.NewEngine(operatorAddr, custody)
	engine.SetState(node.state)
	engine.SetPayments(node.ledger)
	engine.SetAssets(node.assets)
	engine.SetEmitter(node)
	node.engine = engine
	node.auctions = market.NewAuctionEngine(engine)

	if err := node.applyConfig(operatorAddr, cfg); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *Node) applyConfig(operator [20]byte, cfg config.Config) error {
	if cfg.FeeRecipient != "" {
		recipient, err := crypto.DecodeAddress(cfg.FeeRecipient)
		if err != nil {
			return fmt.Errorf("node: fee recipient: %w", err)
		}
		var addr [20]byte
		copy(addr[:], recipient.Bytes())
		if err := n.engine.SetFeeRecipient(operator, addr); err != nil {
			return fmt.Errorf("node: fee recipient: %w", err)
		}
	}
	if cfg.FeeBps > 0 {
		if err := n.engine.SetFeeRate(operator, cfg.FeeBps); err != nil {
			return fmt.Errorf("node: fee rate: %w", err)
		}
	}
	increment, err := cfg.ParseMinBidIncrement()
	if err != nil {
		return err
	}
	if err := n.engine.SetMinBidIncrement(operator, increment); err != nil {
		return fmt.Errorf("node: bid increment: %w", err)
	}
	if err := n.engine.SetBidWithdrawalLock(operator, cfg.BidWithdrawalLockSecs); err != nil {
		return fmt.Errorf("node: withdrawal lock: %w", err)
	}
	if err := n.engine.SetMediumOracle(operator, n.media); err != nil {
		return fmt.Errorf("node: medium oracle: %w", err)
	}
	for _, encoded := range cfg.AcceptedMedia {
		medium, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return fmt.Errorf("node: accepted medium %q: %w", encoded, err)
		}
		var addr [20]byte
		copy(addr[:], medium.Bytes())
		if err := n.media.Enable(addr); err != nil {
			return fmt.Errorf("node: enable medium %q: %w", encoded, err)
		}
	}
	return nil
}

// Emit satisfies the engine's emitter contract: every settlement event is
// counted and logged.
func (n *Node) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	n.metrics.ObserveEvent(evt.EventType())
	attrs := []any{}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	n.logger.Info(evt.EventType(), attrs...)
}

// Engine returns the fixed-price market engine.
func (n *Node) Engine() *market.Engine { return n.engine }

// Auctions returns the auction engine.
func (n *Node) Auctions() *market.AuctionEngine { return n.auctions }

// Ledger returns the fund ledger.
func (n *Node) Ledger() *state.Ledger { return n.ledger }

// Assets returns the asset book.
func (n *Node) Assets() *state.AssetBook { return n.assets }

// Media returns the accepted-medium registry.
func (n *Node) Media() *state.MediumRegistry { return n.media }

// Close releases the underlying database.
func (n *Node) Close() {
	if n.db != nil {
		n.db.Close()
	}
}
