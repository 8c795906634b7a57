package state

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"meridian/domain/market"
	"meridian/wire"
)

const (
	metaInfoFile = "metainfo"
	balancesFile = "balances"
)

func marketFileName(id market.MarketID) string {
	return "market_" + string(id.Base) + "_" + string(id.Quote)
}

// Dump is the checkpoint form of the whole sequencer state, ordered
// deterministically so identical states produce identical bytes.
type Dump struct {
	Meta     wire.MetaInfo
	Balances []wire.BalanceRecord
	Markets  []*market.Checkpoint
}

// GetDump captures the full state. Balance rows cover every (wallet,
// asset) pair holding either a balance or a reservation.
func (s *SequencerState) GetDump() *Dump {
	d := &Dump{
		Meta: wire.MetaInfo{
			Watermark: s.Watermark,
			Markets:   s.MarketIDs(),
			Fees:      s.FeeRates,
		},
	}

	feeAssets := make([]market.Asset, 0, len(s.WithdrawalFees))
	for a := range s.WithdrawalFees {
		feeAssets = append(feeAssets, a)
	}
	sort.Slice(feeAssets, func(i, j int) bool { return feeAssets[i] < feeAssets[j] })
	for _, a := range feeAssets {
		d.Meta.WithdrawalFees = append(d.Meta.WithdrawalFees, wire.WithdrawalFee{
			Asset:  a,
			Amount: new(big.Int).Set(s.WithdrawalFees[a]),
		})
	}

	type row struct {
		wallet market.Wallet
		asset  market.Asset
	}
	seen := make(map[row]struct{})
	var rows []row
	for w, assets := range s.balances {
		for a, v := range assets {
			if v.Sign() == 0 {
				continue
			}
			rows = append(rows, row{w, a})
			seen[row{w, a}] = struct{}{}
		}
	}
	for w, assets := range s.consumed {
		for a, markets := range assets {
			if len(markets) == 0 {
				continue
			}
			if _, dup := seen[row{w, a}]; !dup {
				rows = append(rows, row{w, a})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].wallet != rows[j].wallet {
			return rows[i].wallet < rows[j].wallet
		}
		return rows[i].asset < rows[j].asset
	})
	for _, r := range rows {
		br := wire.BalanceRecord{
			Wallet:  r.wallet,
			Asset:   r.asset,
			Balance: s.Balance(r.wallet, r.asset),
		}
		for _, id := range s.MarketsReserving(r.wallet, r.asset) {
			br.Consumed = append(br.Consumed, wire.ConsumptionRecord{
				MarketID: id,
				Amount:   s.Consumed(r.wallet, r.asset, id),
			})
		}
		d.Balances = append(d.Balances, br)
	}

	for _, id := range d.Meta.Markets {
		d.Markets = append(d.Markets, s.markets[id].ToCheckpoint())
	}
	return d
}

// Persist writes the checkpoint into dir, one file per concern: the
// metainfo header, the balance table and one file per market. The
// caller owns directory-level atomicity (write-then-rename).
func (s *SequencerState) Persist(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	d := s.GetDump()

	if err := writeRecordFile(filepath.Join(dir, metaInfoFile), [][]byte{wire.EncodeMetaInfo(&d.Meta)}); err != nil {
		return fmt.Errorf("checkpoint metainfo: %w", err)
	}

	balances := make([][]byte, 0, len(d.Balances))
	for i := range d.Balances {
		balances = append(balances, wire.EncodeBalanceRecord(&d.Balances[i]))
	}
	if err := writeRecordFile(filepath.Join(dir, balancesFile), balances); err != nil {
		return fmt.Errorf("checkpoint balances: %w", err)
	}

	for _, cp := range d.Markets {
		records := [][]byte{wire.EncodeMarketHeader(cp)}
		for _, lc := range cp.Levels {
			records = append(records, wire.EncodeLevel(lc))
		}
		if err := writeRecordFile(filepath.Join(dir, marketFileName(cp.ID)), records); err != nil {
			return fmt.Errorf("checkpoint market %s: %w", cp.ID, err)
		}
	}
	return nil
}

func writeRecordFile(path string, records [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rec := range records {
		if err := wire.WriteRecord(w, rec); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load rebuilds the state from a checkpoint directory. A market named in
// the metainfo whose file is missing is fatal: restarting with partial
// book state would silently diverge from the recorded watermark.
func Load(dir string) (*SequencerState, error) {
	metaRecords, err := readRecordFile(filepath.Join(dir, metaInfoFile))
	if err != nil {
		return nil, fmt.Errorf("checkpoint metainfo: %w", err)
	}
	if len(metaRecords) != 1 {
		return nil, fmt.Errorf("checkpoint metainfo: %d records, want 1", len(metaRecords))
	}
	mi, err := wire.DecodeMetaInfo(metaRecords[0])
	if err != nil {
		return nil, fmt.Errorf("checkpoint metainfo: %w", err)
	}

	s := New()
	s.Watermark = mi.Watermark
	s.FeeRates = mi.Fees
	for _, wf := range mi.WithdrawalFees {
		s.WithdrawalFees[wf.Asset] = new(big.Int).Set(wf.Amount)
	}

	for _, id := range mi.Markets {
		records, err := readRecordFile(filepath.Join(dir, marketFileName(id)))
		if err != nil {
			return nil, fmt.Errorf("checkpoint market %s: %w", id, err)
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("checkpoint market %s: empty file", id)
		}
		cp, err := wire.DecodeMarketHeader(records[0])
		if err != nil {
			return nil, fmt.Errorf("checkpoint market %s: %w", id, err)
		}
		if cp.ID != id {
			return nil, fmt.Errorf("checkpoint market %s: file holds %s", id, cp.ID)
		}
		for _, rec := range records[1:] {
			lc, err := wire.DecodeLevel(rec)
			if err != nil {
				return nil, fmt.Errorf("checkpoint market %s: %w", id, err)
			}
			cp.Levels = append(cp.Levels, lc)
		}
		m, err := market.FromCheckpoint(cp)
		if err != nil {
			return nil, err
		}
		s.markets[id] = m
	}

	balanceRecords, err := readRecordFile(filepath.Join(dir, balancesFile))
	if err != nil {
		return nil, fmt.Errorf("checkpoint balances: %w", err)
	}
	for _, rec := range balanceRecords {
		br, err := wire.DecodeBalanceRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("checkpoint balances: %w", err)
		}
		if br.Balance.Sign() != 0 {
			s.AdjustBalance(br.Wallet, br.Asset, br.Balance)
		}
		for _, cr := range br.Consumed {
			if _, ok := s.markets[cr.MarketID]; !ok {
				return nil, fmt.Errorf("checkpoint balances: consumption references unknown market %s", cr.MarketID)
			}
			s.AdjustConsumption(br.Wallet, br.Asset, cr.MarketID, cr.Amount)
		}
	}
	return s, nil
}

func readRecordFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records [][]byte
	r := bufio.NewReader(f)
	for {
		rec, err := wire.ReadRecord(r)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
