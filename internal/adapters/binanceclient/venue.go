package binanceclient

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

const (
	defaultQuoteAsset        = "USDT"
	defaultQuantityPrecision = 3
	defaultPricePrecision    = 2
	defaultHealthTTL         = 30 * time.Second
)

// AccountConfig holds the credentials of one trading account.
type AccountConfig struct {
	ID        string
	APIKey    string
	SecretKey string
}

// VenueConfig configures the multi-account execution venue.
type VenueConfig struct {
	Accounts          []AccountConfig
	UseTestnet        bool
	QuoteAsset        string // Balance asset used for sizing, e.g. USDT
	QuantityPrecision int32
	PricePrecision    int32
	HealthTTL         time.Duration // How long a successful connectivity check is trusted
	Logger            ports.Logger
}

type account struct {
	id       string
	client   *futures.Client
	mu       sync.Mutex
	healthy  bool
	lastPing time.Time
}

// Venue implements ports.ExecutionVenue for several Binance futures accounts.
type Venue struct {
	accounts map[string]*account
	cfg      VenueConfig
	logger   ports.Logger
}

// NewVenue creates a venue with one futures client per account.
func NewVenue(cfg VenueConfig) (*Venue, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance venue")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = defaultQuoteAsset
	}
	if cfg.QuantityPrecision <= 0 {
		cfg.QuantityPrecision = defaultQuantityPrecision
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = defaultPricePrecision
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = defaultHealthTTL
	}

	v := &Venue{accounts: make(map[string]*account, len(cfg.Accounts)), cfg: cfg, logger: cfg.Logger}
	for _, a := range cfg.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account id is required: %w", ports.ErrConfigurationError)
		}
		if _, dup := v.accounts[a.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q: %w", a.ID, ports.ErrConfigurationError)
		}
		if a.APIKey == "" || a.SecretKey == "" {
			cfg.Logger.Warn(context.Background(), "Account has no API credentials and will report as disconnected", map[string]interface{}{"accountID": a.ID})
		}
		v.accounts[a.ID] = &account{id: a.ID, client: newFuturesClient(a.APIKey, a.SecretKey, cfg.UseTestnet)}
	}
	cfg.Logger.Info(context.Background(), "Binance venue configured", map[string]interface{}{
		"accounts": len(v.accounts),
		"testnet":  cfg.UseTestnet,
	})
	return v, nil
}

func (v *Venue) account(accountID string) (*account, error) {
	a, ok := v.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", accountID, ports.ErrAccountNotConnected)
	}
	return a, nil
}

// IsConnected reports whether the account has credentials and the venue answered recently.
func (v *Venue) IsConnected(ctx context.Context, accountID string) bool {
	a, err := v.account(accountID)
	if err != nil || a.client.APIKey == "" || a.client.SecretKey == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.healthy && time.Since(a.lastPing) < v.cfg.HealthTTL {
		return true
	}
	if err := a.client.NewPingService().Do(ctx); err != nil {
		a.healthy = false
		v.logger.Warn(ctx, "Venue ping failed", map[string]interface{}{"accountID": accountID, "error": err.Error()})
		return false
	}
	a.healthy = true
	a.lastPing = time.Now()
	return true
}

// OpenPositionCount returns the number of symbols with a non-zero position on the account.
func (v *Venue) OpenPositionCount(ctx context.Context, accountID string) (int, error) {
	op := "OpenPositionCount"
	a, err := v.account(accountID)
	if err != nil {
		return 0, err
	}
	positions, err := a.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return 0, handleError(ctx, v.logger, err, op)
	}
	open := 0
	for _, p := range positions {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64) // Unparseable amounts count as flat
		if amt != 0 {
			open++
		}
	}
	return open, nil
}

// OpenPosition places a market entry sized from the account balance and the candidate's risk fraction,
// then attaches stop-loss and first take-profit orders that close the position.
func (v *Venue) OpenPosition(ctx context.Context, accountID string, c *domain.SignalCandidate) (*domain.Position, error) {
	op := "OpenPosition"
	a, err := v.account(accountID)
	if err != nil {
		return nil, err
	}
	if c == nil || len(c.TakeProfits) == 0 {
		return nil, fmt.Errorf("%s: candidate without take profit: %w", op, ports.ErrInvalidRequest)
	}

	balance, err := v.balance(ctx, a)
	if err != nil {
		return nil, err
	}
	qty, err := Quantity(balance, c.RiskFraction, c.Entry, c.StopLoss, v.cfg.QuantityPrecision)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entrySide := sideFor(c.Direction)
	exitSide := sideFor(c.Direction.Opposite())
	fields := map[string]interface{}{
		"accountID": accountID,
		"symbol":    c.Symbol,
		"side":      entrySide,
		"quantity":  qty,
	}
	v.logger.Info(ctx, "Placing market entry", fields)

	order, err := a.client.NewCreateOrderService().
		Symbol(c.Symbol).
		Side(entrySide).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		Do(ctx)
	if err != nil {
		return nil, handleError(ctx, v.logger, err, op)
	}

	quantity, _ := strconv.ParseFloat(qty, 64)
	entryPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	if entryPrice == 0 {
		entryPrice = c.Entry
	}
	pos := &domain.Position{
		OrderID:    strconv.FormatInt(order.OrderID, 10),
		Symbol:     c.Symbol,
		Side:       c.Direction,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		StopLoss:   c.StopLoss,
		TakeProfit: c.TakeProfits[0],
		OpenedAt:   time.Now().UTC(),
	}

	pos.StopLossOrderID = v.placeProtective(ctx, a, c.Symbol, exitSide, futures.OrderTypeStopMarket, c.StopLoss)
	pos.TakeProfitOrderID = v.placeProtective(ctx, a, c.Symbol, exitSide, futures.OrderTypeTakeProfitMarket, c.TakeProfits[0])
	return pos, nil
}

// placeProtective submits a close-position trigger order. A rejection is logged and leaves the id nil.
func (v *Venue) placeProtective(ctx context.Context, a *account, symbol string, side futures.SideType, orderType futures.OrderType, trigger float64) *string {
	op := "Place" + string(orderType)
	order, err := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(orderType).
		StopPrice(decimal.NewFromFloat(trigger).StringFixed(v.cfg.PricePrecision)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		_ = handleError(ctx, v.logger, err, op)
		v.logger.Warn(ctx, "Position left without protective order", map[string]interface{}{
			"accountID": a.id,
			"symbol":    symbol,
			"type":      orderType,
		})
		return nil
	}
	id := strconv.FormatInt(order.OrderID, 10)
	return &id
}

func (v *Venue) balance(ctx context.Context, a *account) (float64, error) {
	op := "GetAccountBalance"
	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, handleError(ctx, v.logger, err, op)
	}
	for _, bal := range acct.Assets {
		if bal.Asset == v.cfg.QuoteAsset {
			balance, err := strconv.ParseFloat(bal.AvailableBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.AvailableBalance, bal.Asset, err)
				return 0, handleError(ctx, v.logger, parseErr, op)
			}
			return balance, nil
		}
	}
	return 0, fmt.Errorf("%s: asset %s not found: %w", op, v.cfg.QuoteAsset, ports.ErrInsufficientFunds)
}

// Quantity sizes an order so that a stop-out loses riskFraction of balance,
// truncated to precision decimal places.
func Quantity(balance, riskFraction, entry, stopLoss float64, precision int32) (string, error) {
	distance := math.Abs(entry - stopLoss)
	if distance == 0 || entry <= 0 {
		return "", fmt.Errorf("stop distance must be positive: %w", ports.ErrInvalidRequest)
	}
	if balance <= 0 || riskFraction <= 0 {
		return "", fmt.Errorf("nothing to risk: %w", ports.ErrInsufficientFunds)
	}
	qty := decimal.NewFromFloat(balance * riskFraction / distance).Truncate(precision)
	if !qty.IsPositive() {
		return "", fmt.Errorf("position below minimum quantity: %w", ports.ErrInsufficientFunds)
	}
	return qty.String(), nil
}
