// Package eod aggregates the daily rebalance journal into a per-symbol CSV
// report: gross buy and sell turnover, average prices, matched realized PnL,
// and how many rebalance runs touched each symbol.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type eodSummarizer struct{}

func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := journalFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	summaries := map[string]*symbolSummary{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line journalLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			// Journal lines are append-only JSON; skip anything torn.
			continue
		}
		row := summaries[line.Symbol]
		if row == nil {
			row = &symbolSummary{Symbol: line.Symbol, Runs: map[string]struct{}{}}
			summaries[line.Symbol] = row
		}
		switch line.Side {
		case "BUY":
			row.BuyQty += line.Qty
			row.BuyValue += float64(line.Qty) * line.Price
		case "SELL":
			row.SellQty += line.Qty
			row.SellValue += float64(line.Qty) * line.Price
		}
		if line.RunID != "" {
			row.Runs[line.RunID] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", nil
	}

	symbols := make([]string, 0, len(summaries))
	for s := range summaries {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	outPath := reportPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value", "runs"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var totalBuy, totalSell, totalPnL float64
	for _, sym := range symbols {
		r := summaries[sym]
		var buyAvg, sellAvg float64
		if r.BuyQty > 0 {
			buyAvg = r.BuyValue / float64(r.BuyQty)
		}
		if r.SellQty > 0 {
			sellAvg = r.SellValue / float64(r.SellQty)
		}
		// PnL only over the quantity that both legs cover; one-sided
		// flow has no realized result yet.
		matched := r.BuyQty
		if r.SellQty < matched {
			matched = r.SellQty
		}
		r.RealizedPnL = float64(matched) * (sellAvg - buyAvg)

		rec := []string{
			r.Symbol,
			strconv.Itoa(r.BuyQty),
			fmt.Sprintf("%.4f", buyAvg),
			strconv.Itoa(r.SellQty),
			fmt.Sprintf("%.4f", sellAvg),
			fmt.Sprintf("%.2f", r.RealizedPnL),
			fmt.Sprintf("%.2f", r.BuyValue),
			fmt.Sprintf("%.2f", r.SellValue),
			strconv.Itoa(len(r.Runs)),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += r.RealizedPnL
	}
	_ = w.Write([]string{"TOTAL", "", "", "", "", fmt.Sprintf("%.2f", totalPnL), fmt.Sprintf("%.2f", totalBuy), fmt.Sprintf("%.2f", totalSell), ""})
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(istNow())
}

func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := istNow()
	outPath := reportPath(now)
	if now.After(marketCloseTime(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
