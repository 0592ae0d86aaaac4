package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/ledger"
)

const (
	historySheet = "History"
	dailySheet   = "Daily"
)

var (
	historyHeader = []any{
		"Timestamp", "Price", "Price USD", "Kind", "Source", "Model Version",
		"Prediction ID", "Confidence", "Tx Hash", "Block",
	}
	dailyHeader = []any{"Day", "Count", "Avg Price", "Min Price", "Max Price", "Avg Price USD"}
)

// WriteHistoryXLSX writes a token's ledger to an .xlsx workbook: every entry
// newest first on the History sheet and daily aggregates on the Daily sheet.
// entries must be ascending by timestamp.
func WriteHistoryXLSX(out io.Writer, entries []domain.PriceHistoryEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("naming history sheet: %w", err)
	}
	if _, err := f.NewSheet(dailySheet); err != nil {
		return fmt.Errorf("creating daily sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	history := make([][]any, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		history = append(history, historyRow(entries[i]))
	}
	if err := writeSheet(f, historySheet, historyHeader, history, bold); err != nil {
		return err
	}

	buckets := ledger.BuildBuckets(entries, ledger.PeriodDay)
	daily := make([][]any, 0, len(buckets))
	for _, b := range buckets {
		daily = append(daily, []any{
			b.BucketKey, b.Count,
			toFloat(b.AvgPrice), toFloat(b.MinPrice), toFloat(b.MaxPrice), toFloat(b.AvgPriceUSD),
		})
	}
	if err := writeSheet(f, dailySheet, dailyHeader, daily, bold); err != nil {
		return err
	}

	if err := f.SetColWidth(historySheet, "A", "A", 22); err != nil {
		return fmt.Errorf("sizing timestamp column: %w", err)
	}
	if err := f.SetColWidth(historySheet, "G", "G", 38); err != nil {
		return fmt.Errorf("sizing prediction column: %w", err)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func historyRow(e domain.PriceHistoryEntry) []any {
	var confidence, txHash, block any
	if e.ConfidenceScore != nil {
		confidence = *e.ConfidenceScore
	}
	if e.ChainRef != nil {
		txHash = e.ChainRef.TxHash
		block = e.ChainRef.BlockNumber
	}
	return []any{
		e.Timestamp.UTC().Format(time.RFC3339),
		toFloat(e.Price),
		toFloat(e.PriceUSD),
		string(e.Source.Kind),
		e.Source.SourceName,
		e.Source.ModelVersion,
		e.Source.PredictionID,
		confidence,
		txHash,
		block,
	}
}
