package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"marketd/native/market"
	"marketd/storage"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestListingRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)

	listing := &market.Listing{
		Asset:     addr(0xA1),
		ItemID:    big.NewInt(77),
		Seller:    addr(0x01),
		Quantity:  3,
		UnitPrice: big.NewInt(2_500),
		Medium:    market.NativeMedium,
		StartTime: 1_700_000_000,
		CreatedAt: 1_699_999_999,
	}
	listing.ID = market.ListingKey(listing.Asset, listing.ItemID, listing.Seller)

	require.NoError(t, manager.ListingPut(listing))
	loaded, ok := manager.ListingGet(listing.ID)
	require.True(t, ok)
	require.Equal(t, listing, loaded)

	require.NoError(t, manager.ListingDelete(listing.ID))
	_, ok = manager.ListingGet(listing.ID)
	require.False(t, ok)
}

func TestAuctionRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)

	auction := &market.Auction{
		Asset:        addr(0xA1),
		ItemID:       big.NewInt(9),
		Owner:        addr(0x01),
		Quantity:     1,
		Medium:       market.NativeMedium,
		ReservePrice: big.NewInt(100),
		StartTime:    1_700_000_010,
		EndTime:      1_700_000_100,
		Active:       true,
		Winner:       [20]byte{},
		WinningBid:   big.NewInt(0),
		CreatedAt:    1_700_000_000,
	}
	auction.ID = market.AuctionKey(auction.Asset, auction.ItemID)

	require.NoError(t, manager.AuctionPut(auction))
	loaded, ok := manager.AuctionGet(auction.ID)
	require.True(t, ok)
	require.Equal(t, auction, loaded)
}

func TestBidLedgerRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)

	id := market.AuctionKey(addr(0xA1), big.NewInt(9))
	ledger := &market.BidLedger{
		AuctionID:     id,
		HighestAmount: big.NewInt(106),
		HighestBidder: addr(0x03),
		NextSlot:      2,
		Slots: []market.BidSlot{
			{Bidder: addr(0x02), Amount: big.NewInt(0)},
			{Bidder: addr(0x03), Amount: big.NewInt(106)},
		},
		Records: []market.BidderRecord{
			{Bidder: addr(0x03), BidTime: 1_700_000_020, Amount: big.NewInt(106), SlotIndex: 1},
		},
	}

	require.NoError(t, manager.BidLedgerPut(ledger))
	loaded, ok := manager.BidLedgerGet(id)
	require.True(t, ok)
	require.Equal(t, ledger, loaded)

	require.NoError(t, manager.BidLedgerDelete(id))
	_, ok = manager.BidLedgerGet(id)
	require.False(t, ok)
}

func TestEscrowRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	manager := NewManager(db)
	seller := addr(0x01)

	entries, err := manager.EscrowGet(seller)
	require.NoError(t, err)
	require.Empty(t, entries)

	stored := []market.EscrowEntry{
		{Asset: addr(0xA1), ItemID: big.NewInt(1), Buyer: addr(0x02), Medium: market.NativeMedium, Amount: big.NewInt(104), Pending: true},
		{Asset: addr(0xA1), ItemID: big.NewInt(2), Buyer: addr(0x03), Medium: market.NativeMedium, Amount: big.NewInt(9_750), Pending: true},
	}
	require.NoError(t, manager.EscrowPut(seller, stored))

	entries, err = manager.EscrowGet(seller)
	require.NoError(t, err)
	require.Equal(t, stored, entries)

	require.NoError(t, manager.EscrowPut(seller, nil))
	entries, err = manager.EscrowGet(seller)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLedgerTransfers(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	vault := addr(0xEE)
	ledger := NewLedger(db, vault)
	alice := addr(0x01)
	bob := addr(0x02)

	require.NoError(t, ledger.Mint(alice, market.NativeMedium, big.NewInt(1_000)))

	require.NoError(t, ledger.Pull(alice, market.NativeMedium, big.NewInt(400)))
	balance, err := ledger.Balance(alice, market.NativeMedium)
	require.NoError(t, err)
	require.Equal(t, int64(600), balance.Int64())
	balance, err = ledger.Balance(vault, market.NativeMedium)
	require.NoError(t, err)
	require.Equal(t, int64(400), balance.Int64())

	require.Error(t, ledger.Pull(bob, market.NativeMedium, big.NewInt(1)))

	require.NoError(t, ledger.Push(bob, market.NativeMedium, big.NewInt(100)))
	balance, err = ledger.Balance(bob, market.NativeMedium)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Int64())
}

func TestLedgerPushBatchAllOrNothing(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	vault := addr(0xEE)
	ledger := NewLedger(db, vault)
	require.NoError(t, ledger.Mint(vault, market.NativeMedium, big.NewInt(500)))

	// Sum exceeds custody; nothing may move.
	err := ledger.PushBatch([]market.Payment{
		{To: addr(0x01), Medium: market.NativeMedium, Amount: big.NewInt(300)},
		{To: addr(0x02), Medium: market.NativeMedium, Amount: big.NewInt(300)},
	})
	require.Error(t, err)
	balance, err := ledger.Balance(vault, market.NativeMedium)
	require.NoError(t, err)
	require.Equal(t, int64(500), balance.Int64())
	balance, err = ledger.Balance(addr(0x01), market.NativeMedium)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, ledger.PushBatch([]market.Payment{
		{To: addr(0x01), Medium: market.NativeMedium, Amount: big.NewInt(300)},
		{To: addr(0x02), Medium: market.NativeMedium, Amount: big.NewInt(200)},
	}))
	balance, err = ledger.Balance(vault, market.NativeMedium)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestAssetBook(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	book := NewAssetBook(db)
	collection := addr(0xA1)
	owner := addr(0x01)
	buyer := addr(0x02)
	item := big.NewInt(7)

	_, err := book.Resolve(collection)
	require.Error(t, err)

	require.NoError(t, book.Register(collection, market.AssetSingleton))
	require.Error(t, book.Register(collection, market.AssetQuantity))
	require.NoError(t, book.SetOwner(collection, item, owner))

	reg, err := book.Resolve(collection)
	require.NoError(t, err)
	require.Equal(t, market.AssetSingleton, reg.Kind())

	held, err := reg.HoldingOf(owner, item)
	require.NoError(t, err)
	require.Equal(t, uint64(1), held)

	approved, err := reg.IsApprovedForAll(owner, addr(0xEE))
	require.NoError(t, err)
	require.False(t, approved)
	require.NoError(t, book.SetApproval(collection, owner, addr(0xEE), true))
	approved, err = reg.IsApprovedForAll(owner, addr(0xEE))
	require.NoError(t, err)
	require.True(t, approved)

	require.Error(t, reg.Transfer(buyer, owner, item, 1))
	require.NoError(t, reg.Transfer(owner, buyer, item, 1))
	held, err = reg.HoldingOf(buyer, item)
	require.NoError(t, err)
	require.Equal(t, uint64(1), held)
}

func TestAssetBookQuantity(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	book := NewAssetBook(db)
	collection := addr(0xB2)
	holder := addr(0x01)
	item := big.NewInt(55)

	require.NoError(t, book.Register(collection, market.AssetQuantity))
	require.NoError(t, book.SetHolding(collection, item, holder, 10))

	reg, err := book.Resolve(collection)
	require.NoError(t, err)

	require.Error(t, reg.Transfer(holder, addr(0x02), item, 11))
	require.NoError(t, reg.Transfer(holder, addr(0x02), item, 4))
	held, err := reg.HoldingOf(holder, item)
	require.NoError(t, err)
	require.Equal(t, uint64(6), held)
	held, err = reg.HoldingOf(addr(0x02), item)
	require.NoError(t, err)
	require.Equal(t, uint64(4), held)
}

func TestMediumRegistry(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	registry := NewMediumRegistry(db)
	token := addr(0x42)

	require.False(t, registry.Enabled(token))
	require.NoError(t, registry.Enable(token))
	require.True(t, registry.Enabled(token))
	require.NoError(t, registry.Disable(token))
	require.False(t, registry.Enabled(token))
}
