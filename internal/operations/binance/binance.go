package binance

import (
	"SheetTradeBot/config"
	"SheetTradeBot/internal/models"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var (
	// ErrShortUnsupported is returned for short entries; spot accounts cannot sell what they do not hold
	ErrShortUnsupported = errors.New("short positions are not supported on spot")
	ErrQuantityTooSmall = errors.New("quantity below exchange minimum")
)

const klineLimit = 1000

type lotSize struct {
	step   decimal.Decimal
	minQty decimal.Decimal
}

// Client is the spot market data source and order gateway
type Client struct {
	client      *gobinance.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	quoteAsset  string

	mu       sync.Mutex
	lotSizes map[string]lotSize
}

func NewClient(cfg config.ExchangeConfig) *Client {
	// Create custom HTTP client with timeouts
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	gobinance.UseTestnet = cfg.Testnet
	spotClient := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	spotClient.HTTPClient = httpClient

	// 10 requests per second with burst of 20
	limiter := rate.NewLimiter(rate.Limit(10), 20)

	return &Client{
		client:      spotClient,
		rateLimiter: limiter,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		quoteAsset:  cfg.QuoteAsset,
		lotSizes:    make(map[string]lotSize),
	}
}

// do runs fn behind the rate limiter, retrying with exponential backoff
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err = c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == c.maxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.retryDelay
		log.Printf("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt+1, c.maxRetries+1, waitTime, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// retryable is false for request errors the exchange will keep rejecting
func retryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// -1003 too many requests, -1021 timestamp outside recv window
		return apiErr.Code == -1003 || apiErr.Code == -1021 || apiErr.Code == -1001
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// orderMissing reports whether the exchange answered that no such order exists
func orderMissing(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == -2013
}

// placeOrder submits an order. When an attempt fails without an answer from the
// exchange the order may still have been accepted, so it is looked up by its
// client order id and only resubmitted once the exchange confirms it does not exist.
func (c *Client) placeOrder(ctx context.Context, op string, place, lookup func() (*gobinance.CreateOrderResponse, error)) (*gobinance.CreateOrderResponse, error) {
	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := place()
		if err == nil {
			return resp, nil
		}

		var apiErr *common.APIError
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		case errors.As(err, &apiErr):
			if !retryable(err) {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		default:
			found, lookupErr := lookup()
			if lookupErr == nil {
				log.Printf("%s: request failed (%v) but the order was accepted", op, err)
				return found, nil
			}
			if !orderMissing(lookupErr) {
				return nil, fmt.Errorf("%s: order state unknown after %v: %w", op, err, lookupErr)
			}
		}
		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.retryDelay
		log.Printf("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt+1, c.maxRetries+1, waitTime, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// lookupOrder fetches an order by client order id in the shape of an order response
func (c *Client) lookupOrder(ctx context.Context, symbol, clientOrderID string) (*gobinance.CreateOrderResponse, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	order, err := c.client.NewGetOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	return &gobinance.CreateOrderResponse{
		Symbol:                   order.Symbol,
		OrderID:                  order.OrderID,
		ClientOrderID:            order.ClientOrderID,
		ExecutedQuantity:         order.ExecutedQuantity,
		CummulativeQuoteQuantity: order.CummulativeQuoteQuantity,
		Status:                   order.Status,
		Type:                     order.Type,
		Side:                     order.Side,
	}, nil
}

// Ping checks connectivity and syncs the request timestamp offset with the server clock
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", func() error {
		if err := c.client.NewPingService().Do(ctx); err != nil {
			return err
		}
		_, err := c.client.NewSetServerTimeService().Do(ctx)
		return err
	})
}

// GetKlines returns the latest closed-or-forming candles, oldest first
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Price, error) {
	if limit <= 0 || limit > klineLimit {
		limit = klineLimit
	}
	var klines []*gobinance.Kline
	err := c.do(ctx, "klines "+symbol, func() error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToPrices(symbol, interval, klines), nil
}

// GetHistoricalKlines pages through [start, end) in chunks of klineLimit candles
func (c *Client) GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Price, error) {
	step, err := models.TimeFrameDuration(interval)
	if err != nil {
		return nil, err
	}
	chunk := step * klineLimit

	var all []models.Price
	for current := start; current.Before(end); current = current.Add(chunk) {
		chunkEnd := current.Add(chunk)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		var klines []*gobinance.Kline
		err := c.do(ctx, "historical klines "+symbol, func() error {
			var err error
			klines, err = c.client.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(current.UnixMilli()).
				EndTime(chunkEnd.UnixMilli()).
				Limit(klineLimit).
				Do(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, ToPrices(symbol, interval, klines)...)
		log.Printf("Fetched %d %s candles for %s from %s to %s",
			len(klines), interval, symbol,
			current.Format("2006-01-02 15:04:05"),
			chunkEnd.Format("2006-01-02 15:04:05"))
	}
	return all, nil
}

// LatestPrice returns the last traded price
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*gobinance.SymbolPrice
	err := c.do(ctx, "price "+symbol, func() error {
		var err error
		prices, err = c.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return strconv.ParseFloat(p.Price, 64)
		}
	}
	return 0, fmt.Errorf("no price returned for %s", symbol)
}

// Balances returns the free balance of every non-zero asset
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	var account *gobinance.Account
	err := c.do(ctx, "account", func() error {
		var err error
		account, err = c.client.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	balances := make(map[string]float64)
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil || free == 0 {
			continue
		}
		balances[b.Asset] = free
	}
	return balances, nil
}

// Open places a market buy spending quoteAmount of the quote asset. price is only used for logging.
func (c *Client) Open(ctx context.Context, symbol, side string, quoteAmount, price float64) (*models.Fill, error) {
	if side == models.PositionSideShort {
		return nil, ErrShortUnsupported
	}

	clientOrderID := NewClientOrderID()
	quote := decimal.NewFromFloat(quoteAmount).Round(8).String()
	log.Printf("Placing market buy %s for %s quote (ref price %.8g)", symbol, quote, price)

	resp, err := c.placeOrder(ctx, "buy "+symbol,
		func() (*gobinance.CreateOrderResponse, error) {
			return c.client.NewCreateOrderService().
				Symbol(symbol).
				Side(gobinance.SideTypeBuy).
				Type(gobinance.OrderTypeMarket).
				QuoteOrderQty(quote).
				NewClientOrderID(clientOrderID).
				NewOrderRespType(gobinance.NewOrderRespTypeFULL).
				Do(ctx)
		},
		func() (*gobinance.CreateOrderResponse, error) {
			return c.lookupOrder(ctx, symbol, clientOrderID)
		})
	if err != nil {
		return nil, err
	}
	return FillFromResponse(resp, models.PositionSideLong, BaseAsset(symbol, c.quoteAsset))
}

// Close sells the position quantity, capped at the free base balance and
// rounded down to the symbol's lot step
func (c *Client) Close(ctx context.Context, position models.Position, price float64) (*models.Fill, error) {
	if !position.IsLong() {
		return nil, ErrShortUnsupported
	}

	lot, err := c.lotSize(ctx, position.Symbol)
	if err != nil {
		return nil, err
	}

	base := BaseAsset(position.Symbol, c.quoteAsset)
	free := position.Quantity
	if balances, err := c.Balances(ctx); err != nil {
		log.Printf("Could not read %s balance, selling the recorded quantity: %v", base, err)
	} else {
		free = balances[base]
		if free < position.Quantity {
			log.Printf("Only %.8f %s free of %.8f recorded, selling what is held", free, base, position.Quantity)
		}
	}
	qty := SellQuantity(position.Quantity, free, lot.step)
	if qty.IsZero() || qty.LessThan(lot.minQty) {
		return nil, fmt.Errorf("%w: %s %s", ErrQuantityTooSmall, position.Symbol, qty.String())
	}

	clientOrderID := NewClientOrderID()
	log.Printf("Placing market sell %s qty %s (ref price %.8g)", position.Symbol, qty.String(), price)

	resp, err := c.placeOrder(ctx, "sell "+position.Symbol,
		func() (*gobinance.CreateOrderResponse, error) {
			return c.client.NewCreateOrderService().
				Symbol(position.Symbol).
				Side(gobinance.SideTypeSell).
				Type(gobinance.OrderTypeMarket).
				Quantity(qty.String()).
				NewClientOrderID(clientOrderID).
				NewOrderRespType(gobinance.NewOrderRespTypeFULL).
				Do(ctx)
		},
		func() (*gobinance.CreateOrderResponse, error) {
			return c.lookupOrder(ctx, position.Symbol, clientOrderID)
		})
	if err != nil {
		return nil, err
	}
	return FillFromResponse(resp, position.Side, base)
}

func (c *Client) lotSize(ctx context.Context, symbol string) (lotSize, error) {
	c.mu.Lock()
	lot, ok := c.lotSizes[symbol]
	c.mu.Unlock()
	if ok {
		return lot, nil
	}

	var info *gobinance.ExchangeInfo
	err := c.do(ctx, "exchange info "+symbol, func() error {
		var err error
		info, err = c.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return lotSize{}, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		if f := s.LotSizeFilter(); f != nil {
			lot.step, _ = decimal.NewFromString(f.StepSize)
			lot.minQty, _ = decimal.NewFromString(f.MinQuantity)
		}
		c.mu.Lock()
		c.lotSizes[symbol] = lot
		c.mu.Unlock()
		return lot, nil
	}
	return lotSize{}, fmt.Errorf("symbol %s not listed", symbol)
}

// FillFromResponse averages the fills of a FULL order response. Commission
// charged in baseAsset is deducted from the filled quantity, since it never
// reaches the account.
func FillFromResponse(resp *gobinance.CreateOrderResponse, side, baseAsset string) (*models.Fill, error) {
	if resp == nil {
		return nil, errors.New("empty order response")
	}
	fill := &models.Fill{
		Symbol:        resp.Symbol,
		Side:          side,
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
	}

	qty := decimal.Zero
	quote := decimal.Zero
	commission := decimal.Zero
	baseCommission := decimal.Zero
	for _, f := range resp.Fills {
		p, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, fmt.Errorf("bad fill price %q: %w", f.Price, err)
		}
		q, err := decimal.NewFromString(f.Quantity)
		if err != nil {
			return nil, fmt.Errorf("bad fill quantity %q: %w", f.Quantity, err)
		}
		qty = qty.Add(q)
		quote = quote.Add(p.Mul(q))
		if c, err := decimal.NewFromString(f.Commission); err == nil {
			commission = commission.Add(c)
			if baseAsset != "" && f.CommissionAsset == baseAsset {
				baseCommission = baseCommission.Add(c)
			}
		}
	}
	if qty.IsZero() {
		// no fill breakdown, fall back to the order totals
		qty, _ = decimal.NewFromString(resp.ExecutedQuantity)
		quote, _ = decimal.NewFromString(resp.CummulativeQuoteQuantity)
	}
	if qty.IsZero() {
		return nil, fmt.Errorf("order %s for %s was not filled (status %s)", fill.OrderID, resp.Symbol, resp.Status)
	}

	fill.Quantity = qty.Sub(baseCommission).InexactFloat64()
	fill.QuoteQuantity = quote.InexactFloat64()
	fill.Price = quote.Div(qty).InexactFloat64()
	fill.Commission = commission.InexactFloat64()
	return fill, nil
}

// RoundToStep rounds a quantity down to a multiple of step
func RoundToStep(quantity float64, step decimal.Decimal) decimal.Decimal {
	q := decimal.NewFromFloat(quantity)
	if step.IsZero() || step.IsNegative() {
		return q
	}
	return q.Div(step).Floor().Mul(step)
}

// SellQuantity is the recorded quantity capped at what the account holds,
// rounded down to step
func SellQuantity(recorded, free float64, step decimal.Decimal) decimal.Decimal {
	if free < recorded {
		recorded = free
	}
	return RoundToStep(recorded, step)
}

// BaseAsset strips the quote asset from a symbol
func BaseAsset(symbol, quoteAsset string) string {
	return strings.TrimSuffix(symbol, quoteAsset)
}

// NewClientOrderID returns an id within the exchange's 36 character limit
func NewClientOrderID() string {
	return "stb" + strings.ReplaceAll(uuid.NewString(), "-", "")[:29]
}

// ToPrices converts exchange klines to candles
func ToPrices(symbol, interval string, klines []*gobinance.Kline) []models.Price {
	prices := make([]models.Price, 0, len(klines))
	for _, k := range klines {
		prices = append(prices, models.Price{
			Symbol:     symbol,
			TimeFrame:  interval,
			OpenTime:   time.UnixMilli(k.OpenTime).UTC(),
			CloseTime:  time.UnixMilli(k.CloseTime).UTC(),
			Open:       parseFloat(k.Open),
			High:       parseFloat(k.High),
			Low:        parseFloat(k.Low),
			Close:      parseFloat(k.Close),
			Volume:     parseFloat(k.Volume),
			TradeCount: k.TradeNum,
		})
	}
	return prices
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Printf("Error parsing float: %v", err)
		return 0
	}
	return f
}
