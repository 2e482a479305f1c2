package binanceclient

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"signalHub/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
)

func translateKlines(klines []*futures.Kline) ([]domain.Candle, error) {
	candles := make([]domain.Candle, 0, len(klines))
	for _, bk := range klines {
		c, err := translateKline(bk)
		if err != nil {
			return nil, fmt.Errorf("failed to translate kline: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func translateKline(bk *futures.Kline) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(bk.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}

// sideFor maps a signal direction to the entry order side.
func sideFor(d domain.Direction) futures.SideType {
	if d == domain.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}
