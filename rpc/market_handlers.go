package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"marketd/crypto"
	"marketd/native/market"
)

type addressedItemParams struct {
	Asset  string `json:"asset"`
	ItemID string `json:"itemId"`
	Seller string `json:"seller,omitempty"`
	Caller string `json:"caller,omitempty"`
}

type listItemParams struct {
	Seller    string `json:"seller"`
	Asset     string `json:"asset"`
	ItemID    string `json:"itemId"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Medium    string `json:"medium,omitempty"`
	StartTime int64  `json:"startTime"`
}

type buyItemParams struct {
	Buyer  string `json:"buyer"`
	Asset  string `json:"asset"`
	ItemID string `json:"itemId"`
	Seller string `json:"seller"`
}

type createAuctionParams struct {
	Owner        string `json:"owner"`
	Asset        string `json:"asset"`
	ItemID       string `json:"itemId"`
	Quantity     uint64 `json:"quantity"`
	ReservePrice string `json:"reservePrice,omitempty"`
	Medium       string `json:"medium,omitempty"`
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
}

type auctionUpdateParams struct {
	Owner        string `json:"owner"`
	Asset        string `json:"asset"`
	ItemID       string `json:"itemId"`
	ReservePrice string `json:"reservePrice,omitempty"`
	StartTime    int64  `json:"startTime,omitempty"`
	EndTime      int64  `json:"endTime,omitempty"`
}

type placeBidParams struct {
	Bidder string `json:"bidder"`
	Asset  string `json:"asset"`
	ItemID string `json:"itemId"`
	Amount string `json:"amount"`
	Medium string `json:"medium,omitempty"`
}

type sellerParams struct {
	Seller string `json:"seller"`
	Caller string `json:"caller,omitempty"`
}

type registerAssetParams struct {
	Asset string `json:"asset"`
	Kind  string `json:"kind"`
}

type setApprovalParams struct {
	Asset    string `json:"asset"`
	Holder   string `json:"holder"`
	Approved bool   `json:"approved"`
}

type depositParams struct {
	To     string `json:"to"`
	Medium string `json:"medium,omitempty"`
	Amount string `json:"amount"`
}

type depositItemParams struct {
	Asset    string `json:"asset"`
	ItemID   string `json:"itemId"`
	Holder   string `json:"holder"`
	Quantity uint64 `json:"quantity,omitempty"`
}

type balanceParams struct {
	Address string `json:"address"`
	Medium  string `json:"medium,omitempty"`
}

type listingJSON struct {
	ID        string `json:"id"`
	Asset     string `json:"asset"`
	ItemID    string `json:"itemId"`
	Seller    string `json:"seller"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Medium    string `json:"medium"`
	StartTime int64  `json:"startTime"`
	Buyer     string `json:"buyer,omitempty"`
	Sold      bool   `json:"sold"`
	CreatedAt int64  `json:"createdAt"`
}

type auctionJSON struct {
	ID           string `json:"id"`
	Asset        string `json:"asset"`
	ItemID       string `json:"itemId"`
	Owner        string `json:"owner"`
	Quantity     uint64 `json:"quantity"`
	Medium       string `json:"medium"`
	ReservePrice string `json:"reservePrice"`
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	Active       bool   `json:"active"`
	Sold         bool   `json:"sold"`
	Winner       string `json:"winner,omitempty"`
	WinningBid   string `json:"winningBid,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

type bidJSON struct {
	Bidder  string `json:"bidder"`
	Amount  string `json:"amount"`
	BidTime int64  `json:"bidTime"`
	Slot    uint64 `json:"slot"`
}

type bidsJSON struct {
	HighestAmount string   `json:"highestAmount"`
	HighestBidder string   `json:"highestBidder,omitempty"`
	LiveBids      []bidJSON `json:"liveBids"`
}

type escrowEntryJSON struct {
	Asset   string `json:"asset"`
	ItemID  string `json:"itemId"`
	Buyer   string `json:"buyer"`
	Medium  string `json:"medium"`
	Amount  string `json:"amount"`
	Pending bool   `json:"pending"`
}

type paramsJSON struct {
	Operator          string `json:"operator"`
	FeeBps            uint32 `json:"feeBps"`
	FeeRecipient      string `json:"feeRecipient,omitempty"`
	MinBidIncrement   string `json:"minBidIncrement"`
	BidWithdrawalLock int64  `json:"bidWithdrawalLockSecs"`
}

func parseAddress(encoded string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(encoded))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.MktPrefix, addr[:]).String()
}

func parseMedium(encoded string) ([20]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" || strings.EqualFold(trimmed, "native") {
		return market.NativeMedium, nil
	}
	return parseAddress(trimmed)
}

func formatMedium(medium [20]byte) string {
	if medium == market.NativeMedium {
		return "native"
	}
	return formatAddress(medium)
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseItemID(value string) (*big.Int, error) {
	itemID, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("item id %q is not a base-10 integer", value)
	}
	if itemID.Sign() < 0 {
		return nil, fmt.Errorf("item id must be non-negative")
	}
	return itemID, nil
}

func formatBigInt(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func listingView(l *market.Listing) listingJSON {
	view := listingJSON{
		ID:        hex.EncodeToString(l.ID[:]),
		Asset:     formatAddress(l.Asset),
		ItemID:    formatBigInt(l.ItemID),
		Seller:    formatAddress(l.Seller),
		Quantity:  l.Quantity,
		UnitPrice: formatBigInt(l.UnitPrice),
		Medium:    formatMedium(l.Medium),
		StartTime: l.StartTime,
		Sold:      l.Sold,
		CreatedAt: l.CreatedAt,
	}
	if l.Buyer != ([20]byte{}) {
		view.Buyer = formatAddress(l.Buyer)
	}
	return view
}

func auctionView(a *market.Auction) auctionJSON {
	view := auctionJSON{
		ID:           hex.EncodeToString(a.ID[:]),
		Asset:        formatAddress(a.Asset),
		ItemID:       formatBigInt(a.ItemID),
		Owner:        formatAddress(a.Owner),
		Quantity:     a.Quantity,
		Medium:       formatMedium(a.Medium),
		ReservePrice: formatBigInt(a.ReservePrice),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Active:       a.Active,
		Sold:         a.Sold,
		CreatedAt:    a.CreatedAt,
	}
	if a.Winner != ([20]byte{}) {
		view.Winner = formatAddress(a.Winner)
		view.WinningBid = formatBigInt(a.WinningBid)
	}
	return view
}

// decodeParams expects exactly one JSON object parameter.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	s.metrics.ObserveRPCError(req.Method, fmt.Sprintf("%d", codeInvalidParams))
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
}

// --- Read surface ---

func (s *Server) handleGetListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	listing, ok := s.node.Engine().GetListing(asset, itemID, seller)
	if !ok {
		s.writeEngineError(w, req, market.ErrListingNotFound)
		return
	}
	writeResult(w, req.ID, listingView(listing))
}

func (s *Server) handleGetAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	auction, ok := s.node.Auctions().GetAuction(asset, itemID)
	if !ok {
		s.writeEngineError(w, req, market.ErrAuctionNotFound)
		return
	}
	writeResult(w, req.ID, auctionView(auction))
}

func (s *Server) handleGetBids(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	ledger, ok := s.node.Auctions().GetBidLedger(asset, itemID)
	if !ok {
		s.writeEngineError(w, req, market.ErrAuctionNotFound)
		return
	}
	view := bidsJSON{
		HighestAmount: formatBigInt(ledger.HighestAmount),
		LiveBids:      []bidJSON{},
	}
	if ledger.HighestBidder != ([20]byte{}) {
		view.HighestBidder = formatAddress(ledger.HighestBidder)
	}
	for _, rec := range ledger.LiveBidders() {
		view.LiveBids = append(view.LiveBids, bidJSON{
			Bidder:  formatAddress(rec.Bidder),
			Amount:  formatBigInt(rec.Amount),
			BidTime: rec.BidTime,
			Slot:    rec.SlotIndex,
		})
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sellerParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	entries, err := s.node.Engine().Escrow(seller)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	views := make([]escrowEntryJSON, 0, len(entries))
	for _, entry := range entries {
		views = append(views, escrowEntryJSON{
			Asset:   formatAddress(entry.Asset),
			ItemID:  formatBigInt(entry.ItemID),
			Buyer:   formatAddress(entry.Buyer),
			Medium:  formatMedium(entry.Medium),
			Amount:  formatBigInt(entry.Amount),
			Pending: entry.Pending,
		})
	}
	writeResult(w, req.ID, views)
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	engineParams := s.node.Engine().Params()
	view := paramsJSON{
		Operator:          formatAddress(s.node.Engine().Operator()),
		FeeBps:            engineParams.FeeBps,
		MinBidIncrement:   formatBigInt(engineParams.MinBidIncrement),
		BidWithdrawalLock: engineParams.BidWithdrawalLock,
	}
	if engineParams.FeeRecipient != ([20]byte{}) {
		view.FeeRecipient = formatAddress(engineParams.FeeRecipient)
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	medium, err := parseMedium(params.Medium)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	balance, err := s.node.Ledger().Balance(addr, medium)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": formatAddress(addr),
		"medium":  formatMedium(medium),
		"balance": formatBigInt(balance),
	})
}

// --- Listing surface ---

func (s *Server) handleListItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	unitPrice, err := parsePositiveBigInt(params.UnitPrice)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	medium, err := parseMedium(params.Medium)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	listing, err := s.node.Engine().ListItem(seller, asset, itemID, params.Quantity, unitPrice, medium, params.StartTime)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, listingView(listing))
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	unitPrice, err := parsePositiveBigInt(params.UnitPrice)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	medium, err := parseMedium(params.Medium)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	listing, err := s.node.Engine().UpdateListing(seller, asset, itemID, params.Quantity, unitPrice, medium)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, listingView(listing))
}

func (s *Server) handleCancelListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Engine().CancelListing(caller, asset, itemID, seller); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}

func (s *Server) handleBuyItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params buyItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	listing, err := s.node.Engine().BuyItem(buyer, asset, itemID, seller)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, listingView(listing))
}

func (s *Server) handleConfirmListingDelivery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Engine().ConfirmListingDelivery(caller, asset, itemID, seller); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"delivered": true})
}

// --- Auction surface ---

func (s *Server) handleCreateAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createAuctionParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var reserve *big.Int
	if strings.TrimSpace(params.ReservePrice) != "" {
		reserve, err = parsePositiveBigInt(params.ReservePrice)
		if err != nil {
			s.invalidParams(w, req, err)
			return
		}
	}
	medium, err := parseMedium(params.Medium)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	auction, err := s.node.Auctions().CreateAuction(owner, asset, itemID, params.Quantity, reserve, medium, params.StartTime, params.EndTime)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, auctionView(auction))
}

func (s *Server) handleUpdateReservePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params auctionUpdateParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	owner, asset, itemID, err := parseAuctionUpdate(&params)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var reserve *big.Int
	if strings.TrimSpace(params.ReservePrice) != "" {
		reserve, err = parsePositiveBigInt(params.ReservePrice)
		if err != nil {
			s.invalidParams(w, req, err)
			return
		}
	}
	auction, err := s.node.Auctions().UpdateReservePrice(owner, asset, itemID, reserve)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, auctionView(auction))
}

func (s *Server) handleUpdateStartTime(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params auctionUpdateParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	owner, asset, itemID, err := parseAuctionUpdate(&params)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	auction, err := s.node.Auctions().UpdateStartTime(owner, asset, itemID, params.StartTime)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, auctionView(auction))
}

func (s *Server) handleUpdateEndTime(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params auctionUpdateParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	owner, asset, itemID, err := parseAuctionUpdate(&params)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	auction, err := s.node.Auctions().UpdateEndTime(owner, asset, itemID, params.EndTime)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, auctionView(auction))
}

func parseAuctionUpdate(params *auctionUpdateParams) ([20]byte, [20]byte, *big.Int, error) {
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return [20]byte{}, [20]byte{}, nil, err
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		return [20]byte{}, [20]byte{}, nil, err
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		return [20]byte{}, [20]byte{}, nil, err
	}
	return owner, asset, itemID, nil
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params placeBidParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	medium, err := parseMedium(params.Medium)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	record, err := s.node.Auctions().PlaceBid(bidder, asset, itemID, amount, medium)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, bidJSON{
		Bidder:  formatAddress(record.Bidder),
		Amount:  formatBigInt(record.Amount),
		BidTime: record.BidTime,
		Slot:    record.SlotIndex,
	})
}

func (s *Server) handleWithdrawBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Auctions().WithdrawBid(caller, asset, itemID); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"withdrawn": true})
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Auctions().CancelAuction(caller, asset, itemID); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}

func (s *Server) handleResolveAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	auction, err := s.node.Auctions().ResolveAuction(asset, itemID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, auctionView(auction))
}

func (s *Server) handleConfirmAuctionDelivery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressedItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Auctions().ConfirmAuctionDelivery(caller, asset, itemID); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"delivered": true})
}

// --- Escrow and administration ---

func (s *Server) handlePayoutEscrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sellerParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Engine().PayoutEscrow(caller, seller); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paid": true})
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerAssetParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	var kind market.AssetKind
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case "singleton":
		kind = market.AssetSingleton
	case "quantity":
		kind = market.AssetQuantity
	default:
		s.invalidParams(w, req, fmt.Errorf("kind must be singleton or quantity"))
		return
	}
	if err := s.node.Assets().Register(asset, kind); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"registered": true})
}

func (s *Server) handleSetApproval(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setApprovalParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Assets().SetApproval(asset, holder, s.node.Engine().Address(), params.Approved); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"approved": params.Approved})
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	medium, err := parseMedium(params.Medium)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	if err := s.node.Ledger().Mint(to, medium, amount); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"credited": true})
}

func (s *Server) handleDepositItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositItemParams
	if err := decodeParams(req, &params); err != nil {
		s.invalidParams(w, req, err)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	itemID, err := parseItemID(params.ItemID)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		s.invalidParams(w, req, err)
		return
	}
	reg, err := s.node.Assets().Resolve(asset)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	if reg.Kind() == market.AssetSingleton {
		err = s.node.Assets().SetOwner(asset, itemID, holder)
	} else {
		err = s.node.Assets().SetHolding(asset, itemID, holder, params.Quantity)
	}
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"credited": true})
}
