package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"meridian/domain/fixedpoint"
	"meridian/domain/market"
)

// MaxRecordSize bounds a single framed record. A frame above this is
// treated as corruption, not as a huge message.
const MaxRecordSize = 16 << 20

// WriteRecord frames a payload as uvarint length plus bytes.
func WriteRecord(w io.Writer, payload []byte) error {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadRecord reads one framed payload. A clean end of stream returns
// io.EOF; a record cut short returns io.ErrUnexpectedEOF.
func ReadRecord(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > MaxRecordSize {
		return nil, fmt.Errorf("wire: record size %d exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// --- low-level field helpers ---
//
// Zero scalars and empty byte fields are omitted; decoders default
// missing fields to their zero values, so the two directions agree.

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBigInt(b []byte, num protowire.Number, v *big.Int) []byte {
	if v == nil {
		return b
	}
	return appendBytes(b, num, fixedpoint.IntToWire(v))
}

func appendDecimal(b []byte, coefNum, expNum protowire.Number, d decimal.Decimal) []byte {
	coef, exp := fixedpoint.DecimalToWire(d)
	b = appendBytes(b, coefNum, coef)
	return appendSint(b, expNum, int64(exp))
}

func consumeUint(buf []byte, typ protowire.Type) (uint64, []byte, error) {
	if typ != protowire.VarintType {
		return 0, nil, fmt.Errorf("wire: unexpected wire type %d for varint field", typ)
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	return v, buf[n:], nil
}

func consumeSint(buf []byte, typ protowire.Type) (int64, []byte, error) {
	v, rest, err := consumeUint(buf, typ)
	if err != nil {
		return 0, nil, err
	}
	return protowire.DecodeZigZag(v), rest, nil
}

func consumeBytes(buf []byte, typ protowire.Type) ([]byte, []byte, error) {
	if typ != protowire.BytesType {
		return nil, nil, fmt.Errorf("wire: unexpected wire type %d for bytes field", typ)
	}
	v, n := protowire.ConsumeBytes(buf)
	if n < 0 {
		return nil, nil, protowire.ParseError(n)
	}
	return v, buf[n:], nil
}

func consumeBigInt(buf []byte, typ protowire.Type) (*big.Int, []byte, error) {
	raw, rest, err := consumeBytes(buf, typ)
	if err != nil {
		return nil, nil, err
	}
	v, err := fixedpoint.IntFromWire(raw)
	if err != nil {
		return nil, nil, err
	}
	return v, rest, nil
}

func skipField(buf []byte, num protowire.Number, typ protowire.Type) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, buf)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return buf[n:], nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func rebuildDecimal(coef []byte, exp int64) (decimal.Decimal, error) {
	if coef == nil {
		return decimal.Decimal{}, nil
	}
	return fixedpoint.DecimalFromWire(coef, int32(exp))
}

// --- order messages ---

func appendOrder(b []byte, o market.Order) []byte {
	b = appendUint(b, 1, o.GUID)
	b = appendUint(b, 2, uint64(o.Type))
	b = appendBigInt(b, 3, o.Amount)
	b = appendDecimal(b, 4, 5, o.Price)
	b = appendUint(b, 6, uint64(o.Wallet))
	b = appendUint(b, 7, o.Nonce)
	b = appendBytes(b, 8, o.Signature)
	return b
}

func decodeOrder(buf []byte) (market.Order, error) {
	var (
		o         market.Order
		priceCoef []byte
		priceExp  int64
	)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return o, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			o.GUID, buf, err = consumeUint(buf, typ)
		case 2:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			o.Type = market.OrderType(v)
		case 3:
			o.Amount, buf, err = consumeBigInt(buf, typ)
		case 4:
			priceCoef, buf, err = consumeBytes(buf, typ)
		case 5:
			priceExp, buf, err = consumeSint(buf, typ)
		case 6:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			o.Wallet = market.Wallet(v)
		case 7:
			o.Nonce, buf, err = consumeUint(buf, typ)
		case 8:
			o.Signature, buf, err = consumeBytes(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return o, err
		}
	}
	o.Amount = orZero(o.Amount)
	var err error
	o.Price, err = rebuildDecimal(priceCoef, priceExp)
	return o, err
}

func appendOrderChange(b []byte, ch market.OrderChange) []byte {
	b = appendUint(b, 1, ch.GUID)
	b = appendBigInt(b, 2, ch.Amount)
	b = appendDecimal(b, 3, 4, ch.Price)
	return b
}

func decodeOrderChange(buf []byte) (market.OrderChange, error) {
	var (
		ch        market.OrderChange
		priceCoef []byte
		priceExp  int64
	)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return ch, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			ch.GUID, buf, err = consumeUint(buf, typ)
		case 2:
			ch.Amount, buf, err = consumeBigInt(buf, typ)
		case 3:
			priceCoef, buf, err = consumeBytes(buf, typ)
		case 4:
			priceExp, buf, err = consumeSint(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return ch, err
		}
	}
	ch.Amount = orZero(ch.Amount)
	var err error
	ch.Price, err = rebuildDecimal(priceCoef, priceExp)
	return ch, err
}

func appendOrderBatch(b []byte, ob *OrderBatchRequest) []byte {
	b = appendString(b, 1, ob.MarketID.String())
	b = appendUint(b, 2, uint64(ob.Wallet))
	for _, guid := range ob.Cancels {
		b = appendUint(b, 3, guid)
	}
	for _, ch := range ob.Changes {
		b = appendBytes(b, 4, appendOrderChange(nil, ch))
	}
	for _, o := range ob.Adds {
		b = appendBytes(b, 5, appendOrder(nil, o))
	}
	return b
}

func decodeOrderBatch(buf []byte) (*OrderBatchRequest, error) {
	ob := &OrderBatchRequest{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				ob.MarketID, err = market.ParseMarketID(string(raw))
			}
		case 2:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			ob.Wallet = market.Wallet(v)
		case 3:
			var guid uint64
			guid, buf, err = consumeUint(buf, typ)
			ob.Cancels = append(ob.Cancels, guid)
		case 4:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var ch market.OrderChange
				ch, err = decodeOrderChange(raw)
				ob.Changes = append(ob.Changes, ch)
			}
		case 5:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var o market.Order
				o, err = decodeOrder(raw)
				ob.Adds = append(ob.Adds, o)
			}
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return ob, nil
}

// --- balance messages ---

func appendWalletAssetAmount(b []byte, w market.Wallet, a market.Asset, amount *big.Int) []byte {
	b = appendUint(b, 1, uint64(w))
	b = appendString(b, 2, string(a))
	b = appendBigInt(b, 3, amount)
	return b
}

func decodeWalletAssetAmount(buf []byte) (market.Wallet, market.Asset, *big.Int, string, error) {
	var (
		w      market.Wallet
		a      market.Asset
		amount *big.Int
		ext    string
	)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return 0, "", nil, "", protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			w = market.Wallet(v)
		case 2:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			a = market.Asset(raw)
		case 3:
			amount, buf, err = consumeBigInt(buf, typ)
		case 4:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			ext = string(raw)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return 0, "", nil, "", err
		}
	}
	return w, a, orZero(amount), ext, nil
}

func appendBalanceBatch(b []byte, bb *BalanceBatchRequest) []byte {
	for _, d := range bb.Deposits {
		b = appendBytes(b, 1, appendWalletAssetAmount(nil, d.Wallet, d.Asset, d.Amount))
	}
	for _, wd := range bb.Withdrawals {
		inner := appendWalletAssetAmount(nil, wd.Wallet, wd.Asset, wd.Amount)
		inner = appendString(inner, 4, wd.ExternalGUID)
		b = appendBytes(b, 2, inner)
	}
	for _, adj := range bb.FailedWithdrawals {
		b = appendBytes(b, 3, appendWalletAssetAmount(nil, adj.Wallet, adj.Asset, adj.Amount))
	}
	for _, adj := range bb.FailedSettlements {
		b = appendBytes(b, 4, appendWalletAssetAmount(nil, adj.Wallet, adj.Asset, adj.Amount))
	}
	return b
}

func decodeBalanceBatch(buf []byte) (*BalanceBatchRequest, error) {
	bb := &BalanceBatchRequest{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		raw, rest, err := consumeBytes(buf, typ)
		if err != nil {
			if buf, err = skipField(buf, num, typ); err != nil {
				return nil, err
			}
			continue
		}
		buf = rest
		w, a, amount, ext, err := decodeWalletAssetAmount(raw)
		if err != nil {
			return nil, err
		}
		switch num {
		case 1:
			bb.Deposits = append(bb.Deposits, Deposit{Wallet: w, Asset: a, Amount: amount})
		case 2:
			bb.Withdrawals = append(bb.Withdrawals, Withdrawal{Wallet: w, Asset: a, Amount: amount, ExternalGUID: ext})
		case 3:
			bb.FailedWithdrawals = append(bb.FailedWithdrawals, BalanceAdjustment{Wallet: w, Asset: a, Amount: amount})
		case 4:
			bb.FailedSettlements = append(bb.FailedSettlements, BalanceAdjustment{Wallet: w, Asset: a, Amount: amount})
		}
	}
	return bb, nil
}

// --- configuration messages ---

func appendAddMarket(b []byte, am *AddMarketRequest) []byte {
	b = appendString(b, 1, am.ID.String())
	b = appendDecimal(b, 2, 3, am.TickSize)
	b = appendDecimal(b, 4, 5, am.MarketPrice)
	b = appendUint(b, 6, uint64(am.MaxLevels))
	b = appendUint(b, 7, uint64(am.MaxOrdersPerLevel))
	b = appendSint(b, 8, int64(am.BaseDecimals))
	b = appendSint(b, 9, int64(am.QuoteDecimals))
	return b
}

func decodeAddMarket(buf []byte) (*AddMarketRequest, error) {
	am := &AddMarketRequest{}
	var (
		tickCoef, priceCoef []byte
		tickExp, priceExp   int64
	)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				am.ID, err = market.ParseMarketID(string(raw))
			}
		case 2:
			tickCoef, buf, err = consumeBytes(buf, typ)
		case 3:
			tickExp, buf, err = consumeSint(buf, typ)
		case 4:
			priceCoef, buf, err = consumeBytes(buf, typ)
		case 5:
			priceExp, buf, err = consumeSint(buf, typ)
		case 6:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			am.MaxLevels = int(v)
		case 7:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			am.MaxOrdersPerLevel = int(v)
		case 8:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			am.BaseDecimals = int32(v)
		case 9:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			am.QuoteDecimals = int32(v)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	var err error
	if am.TickSize, err = rebuildDecimal(tickCoef, tickExp); err != nil {
		return nil, err
	}
	if am.MarketPrice, err = rebuildDecimal(priceCoef, priceExp); err != nil {
		return nil, err
	}
	return am, nil
}

func appendFeeRates(b []byte, fr market.FeeRates) []byte {
	b = appendSint(b, 1, int64(fr.Maker))
	b = appendSint(b, 2, int64(fr.Taker))
	return b
}

func decodeFeeRates(buf []byte) (market.FeeRates, error) {
	var fr market.FeeRates
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fr, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			fr.Maker = market.FeeRate(v)
		case 2:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			fr.Taker = market.FeeRate(v)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return fr, err
		}
	}
	return fr, nil
}

func appendWithdrawalFee(b []byte, wf WithdrawalFee) []byte {
	b = appendString(b, 1, string(wf.Asset))
	b = appendBigInt(b, 2, wf.Amount)
	return b
}

func decodeWithdrawalFee(buf []byte) (WithdrawalFee, error) {
	var wf WithdrawalFee
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return wf, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			wf.Asset = market.Asset(raw)
		case 2:
			wf.Amount, buf, err = consumeBigInt(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return wf, err
		}
	}
	wf.Amount = orZero(wf.Amount)
	return wf, nil
}

// --- request envelope ---

// EncodeRequest serializes a request. The Seq field is included so a
// queue replay can hand back self-describing records.
func EncodeRequest(r *Request) []byte {
	var b []byte
	b = appendUint(b, 1, r.Seq)
	b = appendString(b, 2, r.GUID)
	b = appendUint(b, 3, uint64(r.Kind))
	if r.OrderBatch != nil {
		b = appendBytes(b, 4, appendOrderBatch(nil, r.OrderBatch))
	}
	if r.BalanceBatch != nil {
		b = appendBytes(b, 5, appendBalanceBatch(nil, r.BalanceBatch))
	}
	if r.AddMarket != nil {
		b = appendBytes(b, 6, appendAddMarket(nil, r.AddMarket))
	}
	if r.FeeRates != nil {
		b = appendBytes(b, 7, appendFeeRates(nil, *r.FeeRates))
	}
	for _, wf := range r.WithdrawalFees {
		b = appendBytes(b, 8, appendWithdrawalFee(nil, wf))
	}
	return b
}

func DecodeRequest(buf []byte) (*Request, error) {
	r := &Request{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			r.Seq, buf, err = consumeUint(buf, typ)
		case 2:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			r.GUID = string(raw)
		case 3:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			r.Kind = RequestKind(v)
		case 4:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				r.OrderBatch, err = decodeOrderBatch(raw)
			}
		case 5:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				r.BalanceBatch, err = decodeBalanceBatch(raw)
			}
		case 6:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				r.AddMarket, err = decodeAddMarket(raw)
			}
		case 7:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var fr market.FeeRates
				fr, err = decodeFeeRates(raw)
				r.FeeRates = &fr
			}
		case 8:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var wf WithdrawalFee
				wf, err = decodeWithdrawalFee(raw)
				r.WithdrawalFees = append(r.WithdrawalFees, wf)
			}
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// --- response messages ---

func appendOrderChanged(b []byte, oc market.OrderChanged) []byte {
	b = appendUint(b, 1, oc.GUID)
	b = appendUint(b, 2, uint64(oc.Disposition))
	b = appendBigInt(b, 3, oc.NewQuantity)
	return b
}

func decodeOrderChanged(buf []byte) (market.OrderChanged, error) {
	var oc market.OrderChanged
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return oc, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			oc.GUID, buf, err = consumeUint(buf, typ)
		case 2:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			oc.Disposition = market.Disposition(v)
		case 3:
			oc.NewQuantity, buf, err = consumeBigInt(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return oc, err
		}
	}
	return oc, nil
}

func appendTrade(b []byte, t market.Trade) []byte {
	b = appendUint(b, 1, t.BuyGUID)
	b = appendUint(b, 2, t.SellGUID)
	b = appendBigInt(b, 3, t.Amount)
	b = appendDecimal(b, 4, 5, t.Price)
	return b
}

func decodeTrade(buf []byte) (market.Trade, error) {
	var (
		t         market.Trade
		priceCoef []byte
		priceExp  int64
	)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return t, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			t.BuyGUID, buf, err = consumeUint(buf, typ)
		case 2:
			t.SellGUID, buf, err = consumeUint(buf, typ)
		case 3:
			t.Amount, buf, err = consumeBigInt(buf, typ)
		case 4:
			priceCoef, buf, err = consumeBytes(buf, typ)
		case 5:
			priceExp, buf, err = consumeSint(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return t, err
		}
	}
	t.Amount = orZero(t.Amount)
	var err error
	t.Price, err = rebuildDecimal(priceCoef, priceExp)
	return t, err
}

func appendConsumptionChanged(b []byte, cc ConsumptionChanged) []byte {
	b = appendString(b, 1, cc.MarketID.String())
	b = appendUint(b, 2, uint64(cc.Wallet))
	b = appendString(b, 3, string(cc.Asset))
	b = appendBigInt(b, 4, cc.Delta)
	return b
}

func decodeConsumptionChanged(buf []byte) (ConsumptionChanged, error) {
	var cc ConsumptionChanged
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return cc, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				cc.MarketID, err = market.ParseMarketID(string(raw))
			}
		case 2:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			cc.Wallet = market.Wallet(v)
		case 3:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			cc.Asset = market.Asset(raw)
		case 4:
			cc.Delta, buf, err = consumeBigInt(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return cc, err
		}
	}
	cc.Delta = orZero(cc.Delta)
	return cc, nil
}

func EncodeResponse(r *Response) []byte {
	var b []byte
	b = appendUint(b, 1, r.Seq)
	b = appendString(b, 2, r.GUID)
	b = appendUint(b, 3, uint64(r.Error))
	for _, oc := range r.OrdersChanged {
		b = appendBytes(b, 4, appendOrderChanged(nil, oc))
	}
	for _, rej := range r.OrdersChangeRejected {
		inner := appendUint(nil, 1, rej.GUID)
		inner = appendUint(inner, 2, uint64(rej.Reason))
		b = appendBytes(b, 5, inner)
	}
	for _, t := range r.TradesCreated {
		b = appendBytes(b, 6, appendTrade(nil, t))
	}
	for _, bd := range r.BalancesChanged {
		b = appendBytes(b, 7, appendWalletAssetAmount(nil, bd.Wallet, bd.Asset, bd.Delta))
	}
	for _, cc := range r.ConsumptionChanged {
		b = appendBytes(b, 8, appendConsumptionChanged(nil, cc))
	}
	return b
}

func DecodeResponse(buf []byte) (*Response, error) {
	r := &Response{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			r.Seq, buf, err = consumeUint(buf, typ)
		case 2:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			r.GUID = string(raw)
		case 3:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			r.Error = ResponseError(v)
		case 4:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var oc market.OrderChanged
				oc, err = decodeOrderChanged(raw)
				r.OrdersChanged = append(r.OrdersChanged, oc)
			}
		case 5:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var rej market.OrderChangeRejected
				rej, err = decodeOrderChangeRejected(raw)
				r.OrdersChangeRejected = append(r.OrdersChangeRejected, rej)
			}
		case 6:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var t market.Trade
				t, err = decodeTrade(raw)
				r.TradesCreated = append(r.TradesCreated, t)
			}
		case 7:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var w market.Wallet
				var a market.Asset
				var delta *big.Int
				w, a, delta, _, err = decodeWalletAssetAmount(raw)
				r.BalancesChanged = append(r.BalancesChanged, market.BalanceDelta{Wallet: w, Asset: a, Delta: delta})
			}
		case 8:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var cc ConsumptionChanged
				cc, err = decodeConsumptionChanged(raw)
				r.ConsumptionChanged = append(r.ConsumptionChanged, cc)
			}
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func decodeOrderChangeRejected(buf []byte) (market.OrderChangeRejected, error) {
	var rej market.OrderChangeRejected
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return rej, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			rej.GUID, buf, err = consumeUint(buf, typ)
		case 2:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			rej.Reason = market.RejectionReason(v)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return rej, err
		}
	}
	return rej, nil
}
