package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"signalHub/config"
	"signalHub/internal/adapters/binanceclient"
	"signalHub/internal/adapters/logger"
	"signalHub/internal/utils"
)

func main() {
	var (
		symbol    string
		timeframe string
		days      int
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "fetch_candles",
		Short: "Download historical candles from Binance futures into a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return err
			}

			// Klines are public; no keys needed.
			client, err := binanceclient.New(binanceclient.Config{
				UseTestnet: cfg.IsTestnet,
				Logger:     appLogger,
			})
			if err != nil {
				return fmt.Errorf("initialize Binance client: %w", err)
			}

			ctx := cmd.Context()
			end := time.Now().UTC()
			start := end.AddDate(0, 0, -days)

			appLogger.Info(ctx, "Fetching candles", map[string]interface{}{
				"symbol":    symbol,
				"timeframe": timeframe,
				"start":     start.Format(time.RFC3339),
				"end":       end.Format(time.RFC3339),
			})
			candles, err := client.GetCandlesRange(ctx, symbol, timeframe, start, end)
			if err != nil {
				return fmt.Errorf("fetch candles: %w", err)
			}

			filename := fmt.Sprintf("%s/%s_%s_%s_to_%s.csv", outDir, symbol, timeframe, start.Format("20060102"), end.Format("20060102"))
			if err := utils.WriteCandlesToFile(filename, symbol, timeframe, candles); err != nil {
				return fmt.Errorf("write CSV: %w", err)
			}
			appLogger.Info(ctx, "Saved candles", map[string]interface{}{"filename": filename, "count": len(candles)})
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "ETHUSDT", "futures symbol")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1h", "candle interval")
	cmd.Flags().IntVar(&days, "days", 90, "how many days back to fetch")
	cmd.Flags().StringVar(&outDir, "out", "data", "output directory")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Printf("fetch_candles: %v", err)
		os.Exit(1)
	}
}
