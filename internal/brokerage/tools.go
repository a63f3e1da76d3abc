package brokerage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"alex/internal/memory"
	"alex/internal/tools"
)

// Broker is the slice of the REST client the trade tools need.
type Broker interface {
	GetAccounts(ctx context.Context) ([]Account, error)
	GetPrimaryAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context, accountNumber string) ([]Position, error)
	GetBalances(ctx context.Context, accountNumber string) (map[string]any, error)
	SubmitOrderDryRun(ctx context.Context, accountNumber string, order map[string]any) (map[string]any, error)
	SubmitOrder(ctx context.Context, accountNumber string, order map[string]any) (map[string]any, error)
	Mode() string
}

// Auditor records executed trades.
type Auditor interface {
	StoreTrade(ctx context.Context, t *memory.Trade) error
}

// Toolset binds the trade tools to one broker, one ledger, and one
// user for audit attribution.
type Toolset struct {
	broker  Broker
	ledger  *Ledger
	auditor Auditor
	userID  string
	log     *zap.Logger
}

// NewToolset builds the trade tool surface.
func NewToolset(broker Broker, ledger *Ledger, auditor Auditor, userID string, log *zap.Logger) *Toolset {
	if log == nil {
		log = zap.NewNop()
	}
	return &Toolset{
		broker:  broker,
		ledger:  ledger,
		auditor: auditor,
		userID:  userID,
		log:     log.Named("trade_tools"),
	}
}

// Catalog returns the trade tools for registration.
func (ts *Toolset) Catalog() []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "get_accounts",
			Description: "List brokerage accounts with their numbers and nicknames.",
			Category:    tools.CategoryBrokerage,
			Execute:     ts.getAccounts,
			Schema:      tools.Schema{Properties: map[string]tools.Property{}},
		},
		{
			Name:        "get_positions",
			Description: "List open positions. Uses the primary account unless account_number is given.",
			Category:    tools.CategoryBrokerage,
			Execute:     ts.getPositions,
			Schema: tools.Schema{
				Properties: map[string]tools.Property{
					"account_number": {Type: "string", Description: "Account to inspect; defaults to the primary account."},
				},
			},
		},
		{
			Name:        "get_balances",
			Description: "Show cash and buying-power balances for an account.",
			Category:    tools.CategoryBrokerage,
			Execute:     ts.getBalances,
			Schema: tools.Schema{
				Properties: map[string]tools.Property{
					"account_number": {Type: "string", Description: "Account to inspect; defaults to the primary account."},
				},
			},
		},
		{
			Name: "place_order_dry_run",
			Description: "Validate an order without executing it. Returns a trade_id that must be " +
				"passed to confirm_trade within 5 minutes to actually execute.",
			Category: tools.CategoryBrokerage,
			Execute:  ts.placeOrderDryRun,
			Schema: tools.Schema{
				Required: []string{"symbol", "action", "quantity"},
				Properties: map[string]tools.Property{
					"symbol":          {Type: "string", Description: "Underlying ticker symbol, for example SPY."},
					"action":          {Type: "string", Description: "Order side.", Enum: []any{"buy", "sell"}},
					"quantity":        {Type: "integer", Description: "Number of shares or contracts."},
					"order_type":      {Type: "string", Description: "Execution style.", Enum: []any{"market", "limit"}, Default: "market"},
					"limit_price":     {Type: "number", Description: "Limit price, required for limit orders."},
					"instrument_type": {Type: "string", Description: "Instrument kind.", Enum: []any{"equity", "option"}, Default: "equity"},
					"option_symbol":   {Type: "string", Description: "OCC option symbol, required for options."},
				},
			},
		},
		{
			Name: "close_position_dry_run",
			Description: "Validate an order that closes an existing position. Returns a trade_id " +
				"for confirm_trade.",
			Category: tools.CategoryBrokerage,
			Execute:  ts.closePositionDryRun,
			Schema: tools.Schema{
				Required: []string{"symbol"},
				Properties: map[string]tools.Property{
					"symbol":   {Type: "string", Description: "Symbol of the position to close."},
					"quantity": {Type: "integer", Description: "Quantity to close; defaults to the full position."},
				},
			},
		},
		{
			Name:        "confirm_trade",
			Description: "Execute a previously validated trade by its trade_id. Each trade_id works exactly once.",
			Category:    tools.CategoryBrokerage,
			Execute:     ts.confirmTrade,
			Schema: tools.Schema{
				Required: []string{"trade_id"},
				Properties: map[string]tools.Property{
					"trade_id": {Type: "string", Description: "Identifier returned by a dry-run tool."},
				},
			},
		},
		{
			Name:        "cancel_pending_trade",
			Description: "Discard a pending trade so it can no longer be confirmed.",
			Category:    tools.CategoryBrokerage,
			Execute:     ts.cancelPendingTrade,
			Schema: tools.Schema{
				Required: []string{"trade_id"},
				Properties: map[string]tools.Property{
					"trade_id": {Type: "string", Description: "Identifier returned by a dry-run tool."},
				},
			},
		},
	}
}

func (ts *Toolset) getAccounts(ctx context.Context, _ map[string]any) (string, error) {
	accounts, err := ts.broker.GetAccounts(ctx)
	if err != nil {
		return "", err
	}
	return marshal(map[string]any{"accounts": accounts, "count": len(accounts)})
}

func (ts *Toolset) resolveAccount(ctx context.Context, args map[string]any) (string, error) {
	if acct, _ := args["account_number"].(string); acct != "" {
		return acct, nil
	}
	primary, err := ts.broker.GetPrimaryAccount(ctx)
	if err != nil {
		return "", err
	}
	return primary.AccountNumber, nil
}

func (ts *Toolset) getPositions(ctx context.Context, args map[string]any) (string, error) {
	acct, err := ts.resolveAccount(ctx, args)
	if err != nil {
		return "", err
	}
	positions, err := ts.broker.GetPositions(ctx, acct)
	if err != nil {
		return "", err
	}
	return marshal(map[string]any{"account": acct, "positions": positions, "count": len(positions)})
}

func (ts *Toolset) getBalances(ctx context.Context, args map[string]any) (string, error) {
	acct, err := ts.resolveAccount(ctx, args)
	if err != nil {
		return "", err
	}
	balances, err := ts.broker.GetBalances(ctx, acct)
	if err != nil {
		return "", err
	}
	return marshal(map[string]any{"account": acct, "balances": balances})
}

func (ts *Toolset) placeOrderDryRun(ctx context.Context, args map[string]any) (string, error) {
	pt, err := pendingFromArgs(args)
	if err != nil {
		return "", err
	}

	acct, err := ts.resolveAccount(ctx, args)
	if err != nil {
		return "", err
	}
	pt.AccountNumber = acct
	pt.Order = BuildOrderPayload(pt)

	validation, err := ts.broker.SubmitOrderDryRun(ctx, acct, pt.Order)
	if err != nil {
		return "", fmt.Errorf("dry run rejected: %w", err)
	}

	pt.TradeID = NewTradeID()
	pt.Description = describeTrade(pt)
	ts.ledger.Add(pt)
	ts.log.Info("trade validated",
		zap.String("trade_id", pt.TradeID),
		zap.String("symbol", pt.Symbol),
		zap.String("action", pt.Action))

	return marshal(map[string]any{
		"trade_id":              pt.TradeID,
		"description":           pt.Description,
		"requires_confirmation": true,
		"expires_in_seconds":    int(PendingTTL.Seconds()),
		"validation":            validation,
	})
}

func (ts *Toolset) closePositionDryRun(ctx context.Context, args map[string]any) (string, error) {
	symbol, err := strArg(args, "symbol")
	if err != nil {
		return "", err
	}
	symbol = strings.ToUpper(symbol)

	acct, err := ts.resolveAccount(ctx, args)
	if err != nil {
		return "", err
	}
	positions, err := ts.broker.GetPositions(ctx, acct)
	if err != nil {
		return "", err
	}

	var pos *Position
	for i := range positions {
		if strings.EqualFold(positions[i].Symbol, symbol) {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return "", fmt.Errorf("no open position in %s", symbol)
	}

	open := int(math.Abs(pos.Quantity))
	quantity := open
	if raw, ok := args["quantity"]; ok {
		quantity, err = intValue(raw)
		if err != nil {
			return "", fmt.Errorf("quantity: %w", err)
		}
	}
	if quantity <= 0 || quantity > open {
		return "", fmt.Errorf("quantity %d exceeds open position of %d %s", quantity, open, symbol)
	}

	// Closing a long is a sell; closing a short is a buy.
	action := "sell"
	if strings.EqualFold(pos.QuantityDirection, "Short") {
		action = "buy"
	}
	instrument := "equity"
	optionSymbol := ""
	if strings.Contains(pos.InstrumentType, "Option") {
		instrument = "option"
		optionSymbol = pos.Symbol
	}

	pt := &PendingTrade{
		AccountNumber:  acct,
		Symbol:         symbol,
		Action:         action,
		Quantity:       quantity,
		OrderType:      "market",
		InstrumentType: instrument,
		OptionSymbol:   optionSymbol,
	}
	pt.Order = BuildOrderPayload(pt)

	validation, err := ts.broker.SubmitOrderDryRun(ctx, acct, pt.Order)
	if err != nil {
		return "", fmt.Errorf("dry run rejected: %w", err)
	}

	pt.TradeID = NewTradeID()
	pt.Description = describeTrade(pt)
	ts.ledger.Add(pt)

	return marshal(map[string]any{
		"trade_id":              pt.TradeID,
		"description":           pt.Description,
		"requires_confirmation": true,
		"expires_in_seconds":    int(PendingTTL.Seconds()),
		"validation":            validation,
	})
}

func (ts *Toolset) confirmTrade(ctx context.Context, args map[string]any) (string, error) {
	tradeID, err := strArg(args, "trade_id")
	if err != nil {
		return "", err
	}

	// Removing before submitting is what makes confirmation exactly-once.
	pt, ok := ts.ledger.Take(tradeID)
	if !ok {
		return "", fmt.Errorf("trade %s not found or expired; run the dry-run again", tradeID)
	}

	result, err := ts.broker.SubmitOrder(ctx, pt.AccountNumber, pt.Order)
	if err != nil {
		return "", fmt.Errorf("order submission failed: %w", err)
	}

	orderID, status := orderIDAndStatus(result)
	ts.log.Info("trade executed",
		zap.String("trade_id", pt.TradeID),
		zap.String("order_id", orderID),
		zap.String("status", status))

	if ts.auditor != nil {
		trade := &memory.Trade{
			TradeID:        pt.TradeID,
			UserID:         ts.userID,
			Timestamp:      time.Now().UTC(),
			Symbol:         pt.Symbol,
			Action:         pt.Action,
			Quantity:       pt.Quantity,
			Price:          pt.LimitPrice,
			InstrumentType: pt.InstrumentType,
			OptionSymbol:   pt.OptionSymbol,
			Account:        pt.AccountNumber,
			Mode:           ts.broker.Mode(),
			OrderID:        orderID,
			Status:         status,
		}
		if err := ts.auditor.StoreTrade(ctx, trade); err != nil {
			ts.log.Warn("trade audit write failed", zap.String("trade_id", pt.TradeID), zap.Error(err))
		}
	}

	return marshal(map[string]any{
		"executed":    true,
		"trade_id":    pt.TradeID,
		"description": pt.Description,
		"order_id":    orderID,
		"status":      status,
	})
}

func (ts *Toolset) cancelPendingTrade(_ context.Context, args map[string]any) (string, error) {
	tradeID, err := strArg(args, "trade_id")
	if err != nil {
		return "", err
	}
	if !ts.ledger.Cancel(tradeID) {
		return "", fmt.Errorf("trade %s not found or already expired", tradeID)
	}
	return marshal(map[string]any{"cancelled": true, "trade_id": tradeID})
}

// pendingFromArgs validates order arguments in a fixed order so the
// first problem is the one reported.
func pendingFromArgs(args map[string]any) (*PendingTrade, error) {
	symbol, err := strArg(args, "symbol")
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)

	action, err := strArg(args, "action")
	if err != nil {
		return nil, err
	}
	action = strings.ToLower(action)
	if action != "buy" && action != "sell" {
		return nil, fmt.Errorf("action must be buy or sell, got %q", action)
	}

	quantity, err := intValue(args["quantity"])
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	orderType := "market"
	if raw, ok := args["order_type"].(string); ok && raw != "" {
		orderType = strings.ToLower(raw)
	}
	if orderType != "market" && orderType != "limit" {
		return nil, fmt.Errorf("order_type must be market or limit, got %q", orderType)
	}

	var limitPrice float64
	if orderType == "limit" {
		limitPrice, err = floatValue(args["limit_price"])
		if err != nil || limitPrice <= 0 {
			return nil, fmt.Errorf("limit orders require a positive limit_price")
		}
	}

	instrument := "equity"
	if raw, ok := args["instrument_type"].(string); ok && raw != "" {
		instrument = strings.ToLower(raw)
	}
	if instrument != "equity" && instrument != "option" {
		return nil, fmt.Errorf("instrument_type must be equity or option, got %q", instrument)
	}

	optionSymbol, _ := args["option_symbol"].(string)
	if instrument == "option" && optionSymbol == "" {
		return nil, fmt.Errorf("option orders require option_symbol")
	}

	return &PendingTrade{
		Symbol:         symbol,
		Action:         action,
		Quantity:       quantity,
		OrderType:      orderType,
		LimitPrice:     limitPrice,
		InstrumentType: instrument,
		OptionSymbol:   optionSymbol,
	}, nil
}

// BuildOrderPayload translates a pending trade into the wire order
// document the orders endpoint expects.
func BuildOrderPayload(pt *PendingTrade) map[string]any {
	legAction := "Buy to Open"
	if pt.Action == "sell" {
		legAction = "Sell to Close"
	}

	legSymbol := pt.Symbol
	legInstrument := "Equity"
	if pt.InstrumentType == "option" {
		legSymbol = pt.OptionSymbol
		legInstrument = "Equity Option"
	}

	order := map[string]any{
		"time-in-force": "Day",
		"order-type":    "Market",
		"legs": []map[string]any{{
			"instrument-type": legInstrument,
			"symbol":          legSymbol,
			"quantity":        pt.Quantity,
			"action":          legAction,
		}},
	}

	if pt.OrderType == "limit" {
		order["order-type"] = "Limit"
		order["price"] = pt.LimitPrice
		if pt.Action == "buy" {
			order["price-effect"] = "Debit"
		} else {
			order["price-effect"] = "Credit"
		}
	}
	return order
}

func describeTrade(pt *PendingTrade) string {
	unit := "shares"
	subject := pt.Symbol
	if pt.InstrumentType == "option" {
		unit = "contracts"
		subject = pt.OptionSymbol
	}
	desc := fmt.Sprintf("%s %d %s of %s at market", pt.Action, pt.Quantity, unit, subject)
	if pt.OrderType == "limit" {
		desc = fmt.Sprintf("%s %d %s of %s at limit %.2f", pt.Action, pt.Quantity, unit, subject, pt.LimitPrice)
	}
	return desc
}

func orderIDAndStatus(result map[string]any) (string, string) {
	orderID := ""
	status := "submitted"
	if order, ok := result["order"].(map[string]any); ok {
		if id, ok := order["id"]; ok {
			orderID = fmt.Sprintf("%v", id)
		}
		if s, ok := order["status"].(string); ok {
			status = s
		}
	}
	return orderID, status
}

func strArg(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", tools.ErrMissingRequiredArg, name)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", tools.ErrInvalidArgType, name)
	}
	return s, nil
}

// intValue accepts the numeric shapes JSON decoding produces.
func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: expected a whole number", tools.ErrInvalidArgType)
		}
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("%w: value missing", tools.ErrMissingRequiredArg)
	default:
		return 0, fmt.Errorf("%w: expected a number, got %T", tools.ErrInvalidArgType, raw)
	}
}

func floatValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("%w: value missing", tools.ErrMissingRequiredArg)
	default:
		return 0, fmt.Errorf("%w: expected a number, got %T", tools.ErrInvalidArgType, raw)
	}
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
