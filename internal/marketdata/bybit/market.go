package bybit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	engineerr "github.com/trashpanda-labs/papertrade/internal/errors"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// intervalCodes maps human timeframes to Bybit's kline interval codes.
var intervalCodes = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
}

// GetPrice returns the latest traded price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "bybit", "get_price")
	}

	price, err := parseLatestPriceResponse(result)
	if err != nil {
		return 0, engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_price")
	}
	if price <= 0 {
		return 0, engineerr.New(engineerr.ErrorCategoryValidation, "bybit", "get_price",
			"non-positive price %.8f for %s", price, symbol)
	}

	return price, nil
}

// GetCandles returns up to limit most recent candles, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	code, ok := intervalCodes[timeframe]
	if !ok {
		return nil, engineerr.New(engineerr.ErrorCategoryValidation, "bybit", "get_candles",
			"unsupported timeframe %q", timeframe)
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": code,
		"limit":    limit,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "bybit", "get_candles")
	}

	candles, err := parseKlineResponse(result)
	if err != nil {
		return nil, engineerr.Wrap(err, engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_candles")
	}

	return candles, nil
}

func parseKlineResponse(response interface{}) ([]types.OHLCV, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, engineerr.New(engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_candles",
			"unexpected response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return nil, engineerr.New(engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_candles",
			"API error %d: %s", serverResp.RetCode, serverResp.RetMsg)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, err
	}

	var klineResult struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, err
	}

	// Bybit returns newest first: [startTime, open, high, low, close, volume, turnover].
	candles := make([]types.OHLCV, 0, len(klineResult.List))
	for i := len(klineResult.List) - 1; i >= 0; i-- {
		item := klineResult.List[i]
		if len(item) < 6 {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(parseInt64(item[0])),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}

	return candles, nil
}

func parseLatestPriceResponse(response interface{}) (float64, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return 0, engineerr.New(engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_price",
			"unexpected response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return 0, engineerr.New(engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_price",
			"API error %d: %s", serverResp.RetCode, serverResp.RetMsg)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, err
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &tickerResult); err != nil {
		return 0, err
	}
	if len(tickerResult.List) == 0 {
		return 0, engineerr.New(engineerr.ErrorCategoryTransientNetwork, "bybit", "parse_price",
			"empty ticker list")
	}

	return parseFloat64(tickerResult.List[0].LastPrice), nil
}

func parseFloat64(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
