package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"signalHub/internal/domain"
)

var candleHeader = []string{"open_time", "symbol", "timeframe", "open", "high", "low", "close", "volume"}

// WriteCandlesCSV writes candles as CSV rows with a header line.
func WriteCandlesCSV(w io.Writer, symbol, timeframe string, candles []domain.Candle) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		if err := writer.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			symbol,
			timeframe,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCandlesToFile creates filename (and its directory) and writes candles into it.
func WriteCandlesToFile(filename, symbol, timeframe string, candles []domain.Candle) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filename, err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteCandlesCSV(file, symbol, timeframe, candles)
}
