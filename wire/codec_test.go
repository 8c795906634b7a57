package wire

import (
	"bufio"
	"bytes"
	"io"
	"math/big"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"meridian/domain/market"
)

func TestRecordFraming(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("alpha"), {}, []byte("gamma")}
	for _, p := range payloads {
		if err := WriteRecord(&buf, p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for i, want := range payloads {
		got, err := ReadRecord(r)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("record %d = %q, want %q", i, got, want)
		}
	}
	if _, err := ReadRecord(r); err != io.EOF {
		t.Errorf("end of stream err = %v, want io.EOF", err)
	}
}

func TestRecordTruncationDetected(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecord(&buf, []byte("truncate me")); err != nil {
		t.Fatal(err)
	}
	cut := buf.Bytes()[:buf.Len()-3]

	if _, err := ReadRecord(bufio.NewReader(bytes.NewReader(cut))); err != io.ErrUnexpectedEOF {
		t.Errorf("truncated read err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestOrderBatchRequestRoundTrip(t *testing.T) {
	req := &Request{
		Seq:  42,
		GUID: "c1f4b9a0",
		Kind: KindApplyOrderBatch,
		OrderBatch: &OrderBatchRequest{
			MarketID: market.MarketID{Base: "BTC", Quote: "ETH"},
			Wallet:   7,
			Cancels:  []uint64{11, 12},
			Changes: []market.OrderChange{
				{GUID: 13, Amount: big.NewInt(500), Price: decimal.RequireFromString("17.550")},
			},
			Adds: []market.Order{
				{
					GUID:      14,
					Type:      market.LimitSell,
					Amount:    big.NewInt(43210),
					Price:     decimal.RequireFromString("17.600"),
					Wallet:    7,
					Nonce:     9,
					Signature: []byte{0xde, 0xad},
				},
				{GUID: 15, Type: market.MarketBuy, Amount: big.NewInt(1), Wallet: 7},
			},
		},
	}

	got, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seq != req.Seq || got.GUID != req.GUID || got.Kind != req.Kind {
		t.Errorf("envelope = %d/%q/%d", got.Seq, got.GUID, got.Kind)
	}
	ob := got.OrderBatch
	if ob == nil {
		t.Fatal("order batch missing after round trip")
	}
	if ob.MarketID != req.OrderBatch.MarketID || ob.Wallet != 7 {
		t.Errorf("batch header = %s wallet %d", ob.MarketID, ob.Wallet)
	}
	if !reflect.DeepEqual(ob.Cancels, req.OrderBatch.Cancels) {
		t.Errorf("cancels = %v", ob.Cancels)
	}
	if len(ob.Changes) != 1 || ob.Changes[0].GUID != 13 ||
		ob.Changes[0].Amount.Int64() != 500 ||
		!ob.Changes[0].Price.Equal(req.OrderBatch.Changes[0].Price) {
		t.Errorf("changes = %+v", ob.Changes)
	}
	if len(ob.Adds) != 2 {
		t.Fatalf("adds = %d, want 2", len(ob.Adds))
	}
	a := ob.Adds[0]
	if a.GUID != 14 || a.Type != market.LimitSell || a.Amount.Int64() != 43210 ||
		!a.Price.Equal(req.OrderBatch.Adds[0].Price) || a.Nonce != 9 ||
		!bytes.Equal(a.Signature, []byte{0xde, 0xad}) {
		t.Errorf("add[0] = %+v", a)
	}
	// Market orders travel without a price.
	if ob.Adds[1].Type != market.MarketBuy || !ob.Adds[1].Price.IsZero() {
		t.Errorf("add[1] = %+v", ob.Adds[1])
	}
}

func TestBalanceBatchRequestRoundTrip(t *testing.T) {
	req := &Request{
		Seq:  7,
		GUID: "bb-1",
		Kind: KindApplyBalanceBatch,
		BalanceBatch: &BalanceBatchRequest{
			Deposits: []Deposit{{Wallet: 1, Asset: "BTC", Amount: big.NewInt(100000)}},
			Withdrawals: []Withdrawal{
				{Wallet: 2, Asset: "ETH", Amount: big.NewInt(999), ExternalGUID: "0xabc"},
			},
			FailedWithdrawals: []BalanceAdjustment{{Wallet: 2, Asset: "ETH", Amount: big.NewInt(999)}},
			FailedSettlements: []BalanceAdjustment{{Wallet: 3, Asset: "BTC", Amount: big.NewInt(-50)}},
		},
	}

	got, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bb := got.BalanceBatch
	if bb == nil {
		t.Fatal("balance batch missing after round trip")
	}
	if len(bb.Deposits) != 1 || bb.Deposits[0].Amount.Int64() != 100000 {
		t.Errorf("deposits = %+v", bb.Deposits)
	}
	if len(bb.Withdrawals) != 1 || bb.Withdrawals[0].ExternalGUID != "0xabc" {
		t.Errorf("withdrawals = %+v", bb.Withdrawals)
	}
	if len(bb.FailedWithdrawals) != 1 || bb.FailedWithdrawals[0].Wallet != 2 {
		t.Errorf("failed withdrawals = %+v", bb.FailedWithdrawals)
	}
	if len(bb.FailedSettlements) != 1 || bb.FailedSettlements[0].Amount.Int64() != -50 {
		t.Errorf("failed settlements = %+v", bb.FailedSettlements)
	}
}

func TestConfigRequestsRoundTrip(t *testing.T) {
	am := &Request{
		Seq:  1,
		GUID: "mkt-1",
		Kind: KindAddMarket,
		AddMarket: &AddMarketRequest{
			ID:                market.MarketID{Base: "BTC", Quote: "ETH"},
			TickSize:          decimal.RequireFromString("0.050"),
			MarketPrice:       decimal.RequireFromString("17.525"),
			MaxLevels:         500,
			MaxOrdersPerLevel: 100,
			BaseDecimals:      8,
			QuoteDecimals:     18,
		},
	}
	got, err := DecodeRequest(EncodeRequest(am))
	if err != nil {
		t.Fatalf("decode add market: %v", err)
	}
	if !reflect.DeepEqual(got.AddMarket, am.AddMarket) {
		t.Errorf("add market = %+v", got.AddMarket)
	}

	fees := &Request{
		Seq:      2,
		GUID:     "fees-1",
		Kind:     KindSetFeeRates,
		FeeRates: &market.FeeRates{Maker: 100, Taker: 250},
	}
	got, err = DecodeRequest(EncodeRequest(fees))
	if err != nil {
		t.Fatalf("decode fee rates: %v", err)
	}
	if got.FeeRates == nil || *got.FeeRates != *fees.FeeRates {
		t.Errorf("fee rates = %+v", got.FeeRates)
	}

	wf := &Request{
		Seq:  3,
		GUID: "wf-1",
		Kind: KindSetWithdrawalFees,
		WithdrawalFees: []WithdrawalFee{
			{Asset: "BTC", Amount: big.NewInt(1500)},
			{Asset: "ETH", Amount: big.NewInt(0)},
		},
	}
	got, err = DecodeRequest(EncodeRequest(wf))
	if err != nil {
		t.Fatalf("decode withdrawal fees: %v", err)
	}
	if len(got.WithdrawalFees) != 2 ||
		got.WithdrawalFees[0].Amount.Int64() != 1500 ||
		got.WithdrawalFees[1].Amount.Sign() != 0 {
		t.Errorf("withdrawal fees = %+v", got.WithdrawalFees)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{
		Seq:   42,
		GUID:  "c1f4b9a0",
		Error: ErrNone,
		OrdersChanged: []market.OrderChanged{
			{GUID: 14, Disposition: market.DispositionPartiallyFilled, NewQuantity: big.NewInt(11111)},
			{GUID: 15, Disposition: market.DispositionCanceled},
		},
		OrdersChangeRejected: []market.OrderChangeRejected{
			{GUID: 99, Reason: market.ReasonDoesNotExist},
		},
		TradesCreated: []market.Trade{
			{BuyGUID: 14, SellGUID: 8, Amount: big.NewInt(43210), Price: decimal.RequireFromString("17.550")},
		},
		BalancesChanged: []market.BalanceDelta{
			{Wallet: 7, Asset: "BTC", Delta: big.NewInt(43210)},
			{Wallet: 7, Asset: "ETH", Delta: new(big.Int).Neg(big.NewInt(758335500))},
		},
		ConsumptionChanged: []ConsumptionChanged{
			{MarketID: market.MarketID{Base: "BTC", Quote: "ETH"}, Wallet: 8, Asset: "BTC", Delta: big.NewInt(-43210)},
		},
	}

	got, err := DecodeResponse(EncodeResponse(resp))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seq != resp.Seq || got.GUID != resp.GUID || got.Error != resp.Error {
		t.Errorf("envelope = %d/%q/%v", got.Seq, got.GUID, got.Error)
	}
	if len(got.OrdersChanged) != 2 ||
		got.OrdersChanged[0].NewQuantity.Int64() != 11111 ||
		got.OrdersChanged[1].NewQuantity != nil {
		t.Errorf("orders changed = %+v", got.OrdersChanged)
	}
	if !reflect.DeepEqual(got.OrdersChangeRejected, resp.OrdersChangeRejected) {
		t.Errorf("rejected = %+v", got.OrdersChangeRejected)
	}
	if len(got.TradesCreated) != 1 ||
		got.TradesCreated[0].Amount.Int64() != 43210 ||
		!got.TradesCreated[0].Price.Equal(resp.TradesCreated[0].Price) {
		t.Errorf("trades = %+v", got.TradesCreated)
	}
	if len(got.BalancesChanged) != 2 ||
		got.BalancesChanged[1].Delta.Int64() != -758335500 {
		t.Errorf("balances = %+v", got.BalancesChanged)
	}
	if len(got.ConsumptionChanged) != 1 ||
		got.ConsumptionChanged[0].Delta.Int64() != -43210 {
		t.Errorf("consumption = %+v", got.ConsumptionChanged)
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b := EncodeRequest(&Request{Seq: 5, GUID: "g", Kind: KindApplyOrderBatch})
	// A future writer appends fields this version does not know about.
	b = protowire.AppendTag(b, 200, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)
	b = protowire.AppendTag(b, 201, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future payload"))

	got, err := DecodeRequest(b)
	if err != nil {
		t.Fatalf("decode with unknown fields: %v", err)
	}
	if got.Seq != 5 || got.GUID != "g" || got.Kind != KindApplyOrderBatch {
		t.Errorf("known fields lost: %+v", got)
	}
}

func TestMetaInfoRoundTrip(t *testing.T) {
	mi := &MetaInfo{
		Watermark: 1234567,
		Markets: []market.MarketID{
			{Base: "BTC", Quote: "ETH"},
			{Base: "SOL", Quote: "ETH"},
		},
		Fees: market.FeeRates{Maker: 100, Taker: 250},
		WithdrawalFees: []WithdrawalFee{
			{Asset: "BTC", Amount: big.NewInt(1500)},
		},
	}

	got, err := DecodeMetaInfo(EncodeMetaInfo(mi))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Watermark != mi.Watermark || !reflect.DeepEqual(got.Markets, mi.Markets) ||
		got.Fees != mi.Fees {
		t.Errorf("metainfo = %+v", got)
	}
	if len(got.WithdrawalFees) != 1 || got.WithdrawalFees[0].Amount.Int64() != 1500 {
		t.Errorf("withdrawal fees = %+v", got.WithdrawalFees)
	}
}

func TestBalanceRecordRoundTrip(t *testing.T) {
	br := &BalanceRecord{
		Wallet:  7,
		Asset:   "ETH",
		Balance: new(big.Int).Neg(big.NewInt(42)),
		Consumed: []ConsumptionRecord{
			{MarketID: market.MarketID{Base: "BTC", Quote: "ETH"}, Amount: big.NewInt(100)},
			{MarketID: market.MarketID{Base: "SOL", Quote: "ETH"}, Amount: big.NewInt(7)},
		},
	}

	got, err := DecodeBalanceRecord(EncodeBalanceRecord(br))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, br) {
		t.Errorf("balance record = %+v, want %+v", got, br)
	}
}

func TestMarketCheckpointRecordsRoundTrip(t *testing.T) {
	cp := &market.Checkpoint{
		ID:                market.MarketID{Base: "BTC", Quote: "ETH"},
		TickSize:          decimal.RequireFromString("0.050"),
		MarketPrice:       decimal.RequireFromString("17.525"),
		LevelZeroPrice:    decimal.RequireFromString("5.050"),
		BestBid:           decimal.RequireFromString("17.500"),
		BestOffer:         decimal.RequireFromString("17.550"),
		BestBidIx:         249,
		BestOfferIx:       250,
		MinBidIx:          240,
		MaxOfferIx:        -1,
		MaxLevels:         500,
		MaxOrdersPerLevel: 100,
		BaseDecimals:      8,
		QuoteDecimals:     18,
	}

	got, err := DecodeMarketHeader(EncodeMarketHeader(cp))
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if !reflect.DeepEqual(got, cp) {
		t.Errorf("header = %+v, want %+v", got, cp)
	}

	lc := market.LevelCheckpoint{
		Ix:   249,
		Side: market.SideBuy,
		Orders: []market.OrderCheckpoint{
			{GUID: 1, Wallet: 7, Quantity: big.NewInt(10), OriginalQuantity: big.NewInt(25), FeeRate: 100},
			{GUID: 2, Wallet: 8, Quantity: big.NewInt(5), OriginalQuantity: big.NewInt(5)},
		},
	}
	gotLvl, err := DecodeLevel(EncodeLevel(lc))
	if err != nil {
		t.Fatalf("decode level: %v", err)
	}
	if !reflect.DeepEqual(gotLvl, lc) {
		t.Errorf("level = %+v, want %+v", gotLvl, lc)
	}
}
