package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signalHub/internal/domain"
	"signalHub/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlinesPerRequest = 1500
)

// Client implements ports.MarketData over the Binance USDⓈ-M futures REST API.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	return &Client{
		futuresClient: newFuturesClient(cfg.APIKey, cfg.SecretKey, cfg.UseTestnet),
		logger:        cfg.Logger,
	}, nil
}

func newFuturesClient(apiKey, secretKey string, testnet bool) *futures.Client {
	client := futures.NewClient(apiKey, secretKey)
	// Set BaseURL directly instead of using global futures.UseTestnet
	if testnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	return client
}

// handleError translates common Binance API errors into standardized ports errors.
func handleError(ctx context.Context, logger ports.Logger, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // New order rejected, ReduceOnly rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2014, -2015: // API-key format invalid, or invalid key/IP/permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041, -4047: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014, -4015: // Quantity, price or leverage out of range
			mappedErr = ports.ErrInvalidRequest
		case -4044:
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return handleError(ctx, c.logger, fmt.Errorf("ping failed: %w", err), "Ping")
	}
	return nil
}

// GetRecentCandles returns up to count closed-or-forming candles, oldest first.
func (c *Client) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	op := "GetRecentCandles"
	if count <= 0 {
		return nil, fmt.Errorf("%s: count must be positive: %w", op, ports.ErrInvalidRequest)
	}
	if count > maxKlinesPerRequest {
		count = maxKlinesPerRequest
	}
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(count).Do(ctx)
	if err != nil {
		return nil, handleError(ctx, c.logger, err, op)
	}
	candles, err := translateKlines(klines)
	if err != nil {
		return nil, handleError(ctx, c.logger, err, op)
	}
	return candles, nil
}

// GetCandlesRange fetches all candles for a symbol and timeframe between start and end.
func (c *Client) GetCandlesRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandlesRange"
	var all []domain.Candle
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, handleError(ctx, c.logger, err, op)
		}
		if len(klines) == 0 {
			break
		}
		candles, err := translateKlines(klines)
		if err != nil {
			return nil, handleError(ctx, c.logger, err, op)
		}
		all = append(all, candles...)

		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesPerRequest {
			break
		}
	}
	return all, nil
}
