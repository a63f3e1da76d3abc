package brokerage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alex/internal/memory"
)

// fakeBroker implements Broker in memory.
type fakeBroker struct {
	accounts  []Account
	positions []Position
	balances  map[string]any

	dryRunErr error
	submitErr error

	submits     int64
	lastOrder   map[string]any
	lastAccount string
}

func (b *fakeBroker) GetAccounts(context.Context) ([]Account, error) { return b.accounts, nil }

func (b *fakeBroker) GetPrimaryAccount(ctx context.Context) (*Account, error) {
	if len(b.accounts) == 0 {
		return nil, errors.New("no brokerage accounts available")
	}
	return &b.accounts[0], nil
}

func (b *fakeBroker) GetPositions(context.Context, string) ([]Position, error) {
	return b.positions, nil
}

func (b *fakeBroker) GetBalances(context.Context, string) (map[string]any, error) {
	return b.balances, nil
}

func (b *fakeBroker) SubmitOrderDryRun(_ context.Context, acct string, order map[string]any) (map[string]any, error) {
	if b.dryRunErr != nil {
		return nil, b.dryRunErr
	}
	return map[string]any{"buying-power-effect": map[string]any{}}, nil
}

func (b *fakeBroker) SubmitOrder(_ context.Context, acct string, order map[string]any) (map[string]any, error) {
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	atomic.AddInt64(&b.submits, 1)
	b.lastOrder = order
	b.lastAccount = acct
	return map[string]any{"order": map[string]any{"id": float64(42), "status": "Routed"}}, nil
}

func (b *fakeBroker) Mode() string { return "sandbox" }

// fakeAuditor collects trade audit rows.
type fakeAuditor struct {
	mu     sync.Mutex
	trades []*memory.Trade
}

func (a *fakeAuditor) StoreTrade(_ context.Context, t *memory.Trade) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, t)
	return nil
}

func newTestToolset(b *fakeBroker, a *fakeAuditor) (*Toolset, *Ledger) {
	ledger := NewLedger()
	return NewToolset(b, ledger, a, "u1", nil), ledger
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	return m
}

func TestPlaceOrderDryRunRegistersPendingTrade(t *testing.T) {
	b := &fakeBroker{accounts: []Account{{AccountNumber: "5WT0001"}}}
	ts, ledger := newTestToolset(b, &fakeAuditor{})

	out, err := ts.placeOrderDryRun(context.Background(), map[string]any{
		"symbol":   "spy",
		"action":   "buy",
		"quantity": float64(10),
	})
	require.NoError(t, err)

	result := decode(t, out)
	assert.Equal(t, true, result["requires_confirmation"])
	assert.Equal(t, float64(300), result["expires_in_seconds"])

	tradeID := result["trade_id"].(string)
	pt, ok := ledger.Get(tradeID)
	require.True(t, ok)
	assert.Equal(t, "SPY", pt.Symbol)
	assert.Equal(t, "5WT0001", pt.AccountNumber)
	assert.Equal(t, "market", pt.OrderType)
	assert.Equal(t, int64(0), b.submits, "dry run must not submit")
}

func TestPlaceOrderValidation(t *testing.T) {
	b := &fakeBroker{accounts: []Account{{AccountNumber: "5WT0001"}}}
	ts, _ := newTestToolset(b, &fakeAuditor{})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing symbol", map[string]any{"action": "buy", "quantity": float64(1)}, "symbol"},
		{"bad action", map[string]any{"symbol": "SPY", "action": "hold", "quantity": float64(1)}, "action must be buy or sell"},
		{"zero quantity", map[string]any{"symbol": "SPY", "action": "buy", "quantity": float64(0)}, "quantity must be positive"},
		{"fractional quantity", map[string]any{"symbol": "SPY", "action": "buy", "quantity": 1.5}, "whole number"},
		{"bad order type", map[string]any{"symbol": "SPY", "action": "buy", "quantity": float64(1), "order_type": "stop"}, "order_type must be market or limit"},
		{"limit without price", map[string]any{"symbol": "SPY", "action": "buy", "quantity": float64(1), "order_type": "limit"}, "limit_price"},
		{"bad instrument", map[string]any{"symbol": "SPY", "action": "buy", "quantity": float64(1), "instrument_type": "future"}, "instrument_type must be equity or option"},
		{"option without symbol", map[string]any{"symbol": "SPY", "action": "buy", "quantity": float64(1), "instrument_type": "option"}, "option_symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.placeOrderDryRun(context.Background(), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfirmTradeExecutesAndAudits(t *testing.T) {
	b := &fakeBroker{accounts: []Account{{AccountNumber: "5WT0001"}}}
	auditor := &fakeAuditor{}
	ts, _ := newTestToolset(b, auditor)

	out, err := ts.placeOrderDryRun(context.Background(), map[string]any{
		"symbol":      "SPY",
		"action":      "buy",
		"quantity":    float64(5),
		"order_type":  "limit",
		"limit_price": 450.25,
	})
	require.NoError(t, err)
	tradeID := decode(t, out)["trade_id"].(string)

	out, err = ts.confirmTrade(context.Background(), map[string]any{"trade_id": tradeID})
	require.NoError(t, err)

	result := decode(t, out)
	assert.Equal(t, true, result["executed"])
	assert.Equal(t, "42", result["order_id"])
	assert.Equal(t, "Routed", result["status"])
	assert.Equal(t, int64(1), b.submits)

	require.Len(t, auditor.trades, 1)
	trade := auditor.trades[0]
	assert.Equal(t, tradeID, trade.TradeID)
	assert.Equal(t, "u1", trade.UserID)
	assert.Equal(t, "sandbox", trade.Mode)
	assert.Equal(t, 450.25, trade.Price)

	// Wire payload reflects the limit order shape.
	assert.Equal(t, "Limit", b.lastOrder["order-type"])
	assert.Equal(t, "Debit", b.lastOrder["price-effect"])
}

func TestConfirmTradeIsExactlyOnce(t *testing.T) {
	b := &fakeBroker{accounts: []Account{{AccountNumber: "5WT0001"}}}
	ts, _ := newTestToolset(b, &fakeAuditor{})

	out, err := ts.placeOrderDryRun(context.Background(), map[string]any{
		"symbol": "SPY", "action": "buy", "quantity": float64(1),
	})
	require.NoError(t, err)
	tradeID := decode(t, out)["trade_id"].(string)

	var successes int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ts.confirmTrade(context.Background(), map[string]any{"trade_id": tradeID}); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes, "exactly one confirmation may succeed")
	assert.Equal(t, int64(1), b.submits, "exactly one order may be submitted")
}

func TestConfirmUnknownTrade(t *testing.T) {
	ts, _ := newTestToolset(&fakeBroker{}, &fakeAuditor{})
	_, err := ts.confirmTrade(context.Background(), map[string]any{"trade_id": "nope1234"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or expired")
}

func TestCancelPendingTrade(t *testing.T) {
	b := &fakeBroker{accounts: []Account{{AccountNumber: "5WT0001"}}}
	ts, _ := newTestToolset(b, &fakeAuditor{})

	out, err := ts.placeOrderDryRun(context.Background(), map[string]any{
		"symbol": "SPY", "action": "sell", "quantity": float64(2),
	})
	require.NoError(t, err)
	tradeID := decode(t, out)["trade_id"].(string)

	_, err = ts.cancelPendingTrade(context.Background(), map[string]any{"trade_id": tradeID})
	require.NoError(t, err)

	_, err = ts.confirmTrade(context.Background(), map[string]any{"trade_id": tradeID})
	require.Error(t, err, "cancelled trade must not be confirmable")
	assert.Equal(t, int64(0), b.submits)
}

func TestClosePositionDryRun(t *testing.T) {
	b := &fakeBroker{
		accounts: []Account{{AccountNumber: "5WT0001"}},
		positions: []Position{
			{Symbol: "SPY", Quantity: 10, QuantityDirection: "Long", InstrumentType: "Equity"},
		},
	}
	ts, ledger := newTestToolset(b, &fakeAuditor{})

	out, err := ts.closePositionDryRun(context.Background(), map[string]any{"symbol": "SPY"})
	require.NoError(t, err)
	tradeID := decode(t, out)["trade_id"].(string)

	pt, ok := ledger.Get(tradeID)
	require.True(t, ok)
	assert.Equal(t, "sell", pt.Action, "closing a long is a sell")
	assert.Equal(t, 10, pt.Quantity, "defaults to the full position")

	_, err = ts.closePositionDryRun(context.Background(), map[string]any{
		"symbol": "SPY", "quantity": float64(25),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds open position")

	_, err = ts.closePositionDryRun(context.Background(), map[string]any{"symbol": "TSLA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no open position")
}

func TestBuildOrderPayloadOption(t *testing.T) {
	pt := &PendingTrade{
		Symbol:         "SPY",
		Action:         "sell",
		Quantity:       2,
		OrderType:      "limit",
		LimitPrice:     1.25,
		InstrumentType: "option",
		OptionSymbol:   "SPY 260918C00500000",
	}
	order := BuildOrderPayload(pt)

	assert.Equal(t, "Limit", order["order-type"])
	assert.Equal(t, "Credit", order["price-effect"])
	legs := order["legs"].([]map[string]any)
	require.Len(t, legs, 1)
	assert.Equal(t, "Equity Option", legs[0]["instrument-type"])
	assert.Equal(t, "SPY 260918C00500000", legs[0]["symbol"])
	assert.Equal(t, "Sell to Close", legs[0]["action"])
}
