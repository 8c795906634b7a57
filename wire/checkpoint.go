package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"meridian/domain/market"
)

// Checkpoint files are streams of framed records. The metainfo file
// holds one MetaInfo record, the balances file one BalanceRecord per
// (wallet, asset) row, and each market file a header record followed by
// one record per populated level.

func EncodeMetaInfo(mi *MetaInfo) []byte {
	var b []byte
	b = appendUint(b, 1, mi.Watermark)
	for _, id := range mi.Markets {
		b = appendString(b, 2, id.String())
	}
	b = appendBytes(b, 3, appendFeeRates(nil, mi.Fees))
	for _, wf := range mi.WithdrawalFees {
		b = appendBytes(b, 4, appendWithdrawalFee(nil, wf))
	}
	return b
}

func DecodeMetaInfo(buf []byte) (*MetaInfo, error) {
	mi := &MetaInfo{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			mi.Watermark, buf, err = consumeUint(buf, typ)
		case 2:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var id market.MarketID
				id, err = market.ParseMarketID(string(raw))
				mi.Markets = append(mi.Markets, id)
			}
		case 3:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				mi.Fees, err = decodeFeeRates(raw)
			}
		case 4:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var wf WithdrawalFee
				wf, err = decodeWithdrawalFee(raw)
				mi.WithdrawalFees = append(mi.WithdrawalFees, wf)
			}
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return mi, nil
}

func appendConsumptionRecord(b []byte, cr ConsumptionRecord) []byte {
	b = appendString(b, 1, cr.MarketID.String())
	b = appendBigInt(b, 2, cr.Amount)
	return b
}

func decodeConsumptionRecord(buf []byte) (ConsumptionRecord, error) {
	var cr ConsumptionRecord
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return cr, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				cr.MarketID, err = market.ParseMarketID(string(raw))
			}
		case 2:
			cr.Amount, buf, err = consumeBigInt(buf, typ)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return cr, err
		}
	}
	cr.Amount = orZero(cr.Amount)
	return cr, nil
}

func EncodeBalanceRecord(br *BalanceRecord) []byte {
	var b []byte
	b = appendUint(b, 1, uint64(br.Wallet))
	b = appendString(b, 2, string(br.Asset))
	b = appendBigInt(b, 3, br.Balance)
	for _, cr := range br.Consumed {
		b = appendBytes(b, 4, appendConsumptionRecord(nil, cr))
	}
	return b
}

func DecodeBalanceRecord(buf []byte) (*BalanceRecord, error) {
	br := &BalanceRecord{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			br.Wallet = market.Wallet(v)
		case 2:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			br.Asset = market.Asset(raw)
		case 3:
			br.Balance, buf, err = consumeBigInt(buf, typ)
		case 4:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var cr ConsumptionRecord
				cr, err = decodeConsumptionRecord(raw)
				br.Consumed = append(br.Consumed, cr)
			}
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	br.Balance = orZero(br.Balance)
	return br, nil
}

// EncodeMarketHeader serializes everything in a market checkpoint except
// the levels, which follow as separate records.
func EncodeMarketHeader(cp *market.Checkpoint) []byte {
	var b []byte
	b = appendString(b, 1, cp.ID.String())
	b = appendDecimal(b, 2, 3, cp.TickSize)
	b = appendDecimal(b, 4, 5, cp.MarketPrice)
	b = appendDecimal(b, 6, 7, cp.LevelZeroPrice)
	b = appendDecimal(b, 8, 9, cp.BestBid)
	b = appendDecimal(b, 10, 11, cp.BestOffer)
	b = appendSint(b, 12, int64(cp.BestBidIx))
	b = appendSint(b, 13, int64(cp.BestOfferIx))
	b = appendSint(b, 14, int64(cp.MinBidIx))
	b = appendSint(b, 15, int64(cp.MaxOfferIx))
	b = appendUint(b, 16, uint64(cp.MaxLevels))
	b = appendUint(b, 17, uint64(cp.MaxOrdersPerLevel))
	b = appendSint(b, 18, int64(cp.BaseDecimals))
	b = appendSint(b, 19, int64(cp.QuoteDecimals))
	return b
}

// DecodeMarketHeader rebuilds a checkpoint with an empty level list.
func DecodeMarketHeader(buf []byte) (*market.Checkpoint, error) {
	cp := &market.Checkpoint{}
	coefs := make(map[protowire.Number][]byte)
	exps := make(map[protowire.Number]int64)
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
				cp.ID, err = market.ParseMarketID(string(raw))
			}
		case 2, 4, 6, 8, 10:
			coefs[num], buf, err = consumeBytes(buf, typ)
		case 3, 5, 7, 9, 11:
			exps[num], buf, err = consumeSint(buf, typ)
		case 12:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			cp.BestBidIx = int(v)
		case 13:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			cp.BestOfferIx = int(v)
		case 14:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			cp.MinBidIx = int(v)
		case 15:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			cp.MaxOfferIx = int(v)
		case 16:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			cp.MaxLevels = int(v)
		case 17:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			cp.MaxOrdersPerLevel = int(v)
		case 18:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			cp.BaseDecimals = int32(v)
		case 19:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			cp.QuoteDecimals = int32(v)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return nil, err
		}
	}
	var err error
	if cp.TickSize, err = rebuildDecimal(coefs[2], exps[3]); err != nil {
		return nil, err
	}
	if cp.MarketPrice, err = rebuildDecimal(coefs[4], exps[5]); err != nil {
		return nil, err
	}
	if cp.LevelZeroPrice, err = rebuildDecimal(coefs[6], exps[7]); err != nil {
		return nil, err
	}
	if cp.BestBid, err = rebuildDecimal(coefs[8], exps[9]); err != nil {
		return nil, err
	}
	if cp.BestOffer, err = rebuildDecimal(coefs[10], exps[11]); err != nil {
		return nil, err
	}
	return cp, nil
}

func appendOrderCheckpoint(b []byte, oc market.OrderCheckpoint) []byte {
	b = appendUint(b, 1, oc.GUID)
	b = appendUint(b, 2, uint64(oc.Wallet))
	b = appendBigInt(b, 3, oc.Quantity)
	b = appendBigInt(b, 4, oc.OriginalQuantity)
	b = appendSint(b, 5, int64(oc.FeeRate))
	return b
}

func decodeOrderCheckpoint(buf []byte) (market.OrderCheckpoint, error) {
	var oc market.OrderCheckpoint
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
			oc.Wallet = market.Wallet(v)
		case 3:
			oc.Quantity, buf, err = consumeBigInt(buf, typ)
		case 4:
			oc.OriginalQuantity, buf, err = consumeBigInt(buf, typ)
		case 5:
			var v int64
			v, buf, err = consumeSint(buf, typ)
			oc.FeeRate = market.FeeRate(v)
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return oc, err
		}
	}
	oc.Quantity = orZero(oc.Quantity)
	oc.OriginalQuantity = orZero(oc.OriginalQuantity)
	return oc, nil
}

func EncodeLevel(lc market.LevelCheckpoint) []byte {
	var b []byte
	b = appendUint(b, 1, uint64(lc.Ix))
	b = appendUint(b, 2, uint64(lc.Side))
	for _, oc := range lc.Orders {
		b = appendBytes(b, 3, appendOrderCheckpoint(nil, oc))
	}
	return b
}

func DecodeLevel(buf []byte) (market.LevelCheckpoint, error) {
	var lc market.LevelCheckpoint
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return lc, protowire.ParseError(n)
		}
		buf = buf[n:]
		var err error
		switch num {
		case 1:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			lc.Ix = int(v)
		case 2:
			var v uint64
			v, buf, err = consumeUint(buf, typ)
			lc.Side = market.Side(v)
		case 3:
			var raw []byte
			raw, buf, err = consumeBytes(buf, typ)
			if err == nil {
				var oc market.OrderCheckpoint
				oc, err = decodeOrderCheckpoint(raw)
				lc.Orders = append(lc.Orders, oc)
			}
		default:
			buf, err = skipField(buf, num, typ)
		}
		if err != nil {
			return lc, err
		}
	}
	return lc, nil
}
