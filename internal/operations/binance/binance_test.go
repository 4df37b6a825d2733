package binance

import (
	"SheetTradeBot/internal/models"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

func TestToPrices(t *testing.T) {
	open := time.Date(2024, 11, 17, 10, 0, 0, 0, time.UTC)
	klines := []*gobinance.Kline{{
		OpenTime:  open.UnixMilli(),
		CloseTime: open.Add(time.Hour).UnixMilli() - 1,
		Open:      "100.5",
		High:      "102",
		Low:       "99.25",
		Close:     "101",
		Volume:    "12.5",
		TradeNum:  42,
	}}

	prices := ToPrices("BTCUSDT", "1h", klines)
	if len(prices) != 1 {
		t.Fatalf("expected 1 price, got %d", len(prices))
	}
	p := prices[0]
	if p.Symbol != "BTCUSDT" || p.TimeFrame != "1h" || !p.OpenTime.Equal(open) {
		t.Errorf("unexpected candle identity %+v", p)
	}
	if p.Open != 100.5 || p.High != 102 || p.Low != 99.25 || p.Close != 101 || p.Volume != 12.5 || p.TradeCount != 42 {
		t.Errorf("unexpected candle values %+v", p)
	}
}

func TestFillFromResponse(t *testing.T) {
	resp := &gobinance.CreateOrderResponse{
		Symbol:        "BTCUSDT",
		OrderID:       12345,
		ClientOrderID: "stbabc",
		Fills: []*gobinance.Fill{
			{Price: "100", Quantity: "0.05", Commission: "0.00005"},
			{Price: "102", Quantity: "0.05", Commission: "0.00005"},
		},
	}

	fill, err := FillFromResponse(resp, models.PositionSideLong, "BTC")
	if err != nil {
		t.Fatalf("FillFromResponse: %v", err)
	}
	if fill.OrderID != "12345" || fill.ClientOrderID != "stbabc" {
		t.Errorf("unexpected ids %+v", fill)
	}
	if math.Abs(fill.Price-101) > 1e-9 {
		t.Errorf("expected average price 101, got %v", fill.Price)
	}
	if math.Abs(fill.Quantity-0.1) > 1e-12 || math.Abs(fill.QuoteQuantity-10.1) > 1e-9 {
		t.Errorf("unexpected quantities %+v", fill)
	}
	if math.Abs(fill.Commission-0.0001) > 1e-12 {
		t.Errorf("unexpected commission %v", fill.Commission)
	}
}

func TestFillFromResponseDeductsBaseCommission(t *testing.T) {
	tests := []struct {
		name      string
		asset     string
		wantQty   float64
		wantPrice float64
	}{
		{"base asset", "BTC", 0.999, 100},
		{"quote asset", "USDT", 1, 100},
		{"bnb", "BNB", 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &gobinance.CreateOrderResponse{
				Symbol:  "BTCUSDT",
				OrderID: 9,
				Fills: []*gobinance.Fill{
					{Price: "100", Quantity: "1", Commission: "0.001", CommissionAsset: tt.asset},
				},
			}
			fill, err := FillFromResponse(resp, models.PositionSideLong, "BTC")
			if err != nil {
				t.Fatalf("FillFromResponse: %v", err)
			}
			if math.Abs(fill.Quantity-tt.wantQty) > 1e-12 {
				t.Errorf("expected held quantity %v, got %v", tt.wantQty, fill.Quantity)
			}
			if fill.Price != tt.wantPrice || fill.QuoteQuantity != 100 {
				t.Errorf("execution price must use the gross quantity, got %+v", fill)
			}
		})
	}
}

func TestSellQuantity(t *testing.T) {
	tests := []struct {
		name     string
		recorded float64
		free     float64
		step     string
		want     string
	}{
		{"holds more than recorded", 0.5, 0.75, "0.001", "0.5"},
		{"commission ate part", 1, 0.999, "0.01", "0.99"},
		{"nothing held", 1, 0, "0.001", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SellQuantity(tt.recorded, tt.free, decimal.RequireFromString(tt.step))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("SellQuantity(%v, %v) = %s, want %s", tt.recorded, tt.free, got, tt.want)
			}
		})
	}
}

func TestBaseAsset(t *testing.T) {
	if got := BaseAsset("BTCUSDT", "USDT"); got != "BTC" {
		t.Errorf("BaseAsset = %q", got)
	}
	if got := BaseAsset("ETHBTC", "BTC"); got != "ETH" {
		t.Errorf("BaseAsset = %q", got)
	}
}

func TestFillFromResponseTotalsFallback(t *testing.T) {
	resp := &gobinance.CreateOrderResponse{
		Symbol:                   "ETHUSDT",
		OrderID:                  7,
		ExecutedQuantity:         "2",
		CummulativeQuoteQuantity: "50",
	}
	fill, err := FillFromResponse(resp, models.PositionSideLong, "BTC")
	if err != nil {
		t.Fatalf("FillFromResponse: %v", err)
	}
	if fill.Price != 25 || fill.Quantity != 2 {
		t.Errorf("unexpected fill %+v", fill)
	}
}

func TestFillFromResponseUnfilled(t *testing.T) {
	resp := &gobinance.CreateOrderResponse{Symbol: "ETHUSDT", OrderID: 8, Status: gobinance.OrderStatusTypeExpired}
	if _, err := FillFromResponse(resp, models.PositionSideLong, "BTC"); err == nil {
		t.Fatal("expected error for an unfilled order")
	}
	if _, err := FillFromResponse(nil, models.PositionSideLong, "ETH"); err == nil {
		t.Fatal("expected error for a nil response")
	}
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		qty  float64
		step string
		want string
	}{
		{0.123456, "0.001", "0.123"},
		{1.999, "0.01", "1.99"},
		{5, "1", "5"},
		{0.0000999, "0.0001", "0"},
		{0.5, "0", "0.5"},
	}
	for _, tt := range tests {
		got := RoundToStep(tt.qty, decimal.RequireFromString(tt.step))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("RoundToStep(%v, %s) = %s, want %s", tt.qty, tt.step, got, tt.want)
		}
	}
}

func TestNewClientOrderID(t *testing.T) {
	a, b := NewClientOrderID(), NewClientOrderID()
	if len(a) > 36 || len(a) != 32 {
		t.Errorf("unexpected id length %d", len(a))
	}
	if a == b {
		t.Error("ids must be unique")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errors.New("connection reset"), true},
		{"rate limited", &common.APIError{Code: -1003}, true},
		{"insufficient balance", &common.APIError{Code: -2010}, false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoRetries(t *testing.T) {
	c := &Client{
		rateLimiter: newTestLimiter(),
		maxRetries:  2,
		retryDelay:  time.Millisecond,
	}

	calls := 0
	err := c.do(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = c.do(context.Background(), "test", func() error {
		calls++
		return &common.APIError{Code: -2010, Message: "insufficient balance"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one call for a permanent error, got err=%v calls=%d", err, calls)
	}
}

func TestPlaceOrder(t *testing.T) {
	accepted := &gobinance.CreateOrderResponse{Symbol: "BTCUSDT", OrderID: 11, ExecutedQuantity: "1", CummulativeQuoteQuantity: "100"}
	missing := &common.APIError{Code: -2013, Message: "Order does not exist."}

	tests := []struct {
		name        string
		placeErrs   []error
		lookupErr   error
		wantErr     bool
		wantPlaced  int
		wantLookups int
	}{
		{"first attempt fills", nil, nil, false, 1, 0},
		{"timeout but order accepted", []error{errors.New("i/o timeout")}, nil, false, 1, 1},
		{"timeout and order missing", []error{errors.New("i/o timeout")}, missing, false, 2, 1},
		{"timeout and lookup fails", []error{errors.New("i/o timeout")}, errors.New("connection refused"), true, 1, 1},
		{"rejected", []error{&common.APIError{Code: -2010, Message: "Account has insufficient balance"}}, nil, true, 1, 0},
		{"rate limited", []error{&common.APIError{Code: -1003}}, nil, false, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{rateLimiter: newTestLimiter(), maxRetries: 2, retryDelay: time.Millisecond}
			placed, lookups := 0, 0
			resp, err := c.placeOrder(context.Background(), "buy BTCUSDT",
				func() (*gobinance.CreateOrderResponse, error) {
					placed++
					if placed <= len(tt.placeErrs) {
						return nil, tt.placeErrs[placed-1]
					}
					return accepted, nil
				},
				func() (*gobinance.CreateOrderResponse, error) {
					lookups++
					if tt.lookupErr != nil {
						return nil, tt.lookupErr
					}
					return accepted, nil
				})
			if (err != nil) != tt.wantErr {
				t.Fatalf("placeOrder err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && resp != accepted {
				t.Errorf("expected the accepted order, got %+v", resp)
			}
			if placed != tt.wantPlaced || lookups != tt.wantLookups {
				t.Errorf("placed %d times with %d lookups, want %d and %d", placed, lookups, tt.wantPlaced, tt.wantLookups)
			}
		})
	}
}

func TestOpenShortUnsupported(t *testing.T) {
	c := &Client{}
	if _, err := c.Open(context.Background(), "BTCUSDT", models.PositionSideShort, 10, 100); !errors.Is(err, ErrShortUnsupported) {
		t.Fatalf("expected ErrShortUnsupported, got %v", err)
	}
	short := models.Position{Symbol: "BTCUSDT", Side: models.PositionSideShort, Quantity: 1}
	if _, err := c.Close(context.Background(), short, 100); !errors.Is(err, ErrShortUnsupported) {
		t.Fatalf("expected ErrShortUnsupported, got %v", err)
	}
}

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}
