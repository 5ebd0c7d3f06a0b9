// Package matching turns raw buy and sell orders into the matched-trade
// ledger the settlement batches are derived from. Each instrument runs an
// independent continuous double auction over its time-ordered orders.
package matching

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/iwvelando/settlement-optimizer/internal/ledger"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/datetime"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Order is one execution request of a trading account.
type Order struct {
	Timestamp  time.Time
	Instrument string
	Quantity   int
	Price      decimal.Decimal
	Account    string
	Side       Side
	Currency   string
}

// Columns of an orders file.
const (
	ColTimestamp  = "Execution_Timestamp"
	ColInstrument = "Instrument_Name"
	ColQuantity   = "Quantity"
	ColPrice      = "Execution_Price"
	ColAccount    = "Trading_Account"
	ColDirection  = "Direction"
	ColCurrency   = "Settlement_Currency"
)

var orderColumns = []string{ColTimestamp, ColInstrument, ColQuantity, ColPrice, ColAccount, ColDirection, ColCurrency}

// ReadOrdersCSV parses an orders file and keeps the orders settling in
// currency (the default settlement currency when empty).
func ReadOrdersCSV(r io.Reader, currency string) ([]Order, error) {
	if currency == "" {
		currency = constants.DefaultSettlementCurrency
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("orders file is empty")
		}
		return nil, fmt.Errorf("reading orders header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, name := range orderColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("orders file is missing column %s", name)
		}
	}

	var orders []Order
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("orders line %d: %w", line, err)
		}
		field := func(name string) string { return strings.TrimSpace(rec[cols[name]]) }
		if !strings.EqualFold(field(ColCurrency), currency) {
			continue
		}
		o, err := parseOrder(field)
		if err != nil {
			return nil, fmt.Errorf("orders line %d: %w", line, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func parseOrder(field func(string) string) (Order, error) {
	ts, err := datetime.ParseTimestamp(field(ColTimestamp))
	if err != nil {
		return Order{}, err
	}
	qty, err := decimal.NewFromString(field(ColQuantity))
	if err != nil {
		return Order{}, fmt.Errorf("invalid quantity %q: %w", field(ColQuantity), err)
	}
	price, err := decimal.NewFromString(field(ColPrice))
	if err != nil {
		return Order{}, fmt.Errorf("invalid price %q: %w", field(ColPrice), err)
	}
	var side Side
	switch strings.ToLower(field(ColDirection)) {
	case "buy":
		side = Buy
	case "sell":
		side = Sell
	default:
		return Order{}, fmt.Errorf("unknown direction %q", field(ColDirection))
	}
	return Order{
		Timestamp:  ts,
		Instrument: field(ColInstrument),
		Quantity:   int(qty.IntPart()),
		Price:      price,
		Account:    field(ColAccount),
		Side:       side,
		Currency:   field(ColCurrency),
	}, nil
}

type resting struct {
	account  string
	quantity int
	price    decimal.Decimal
}

// book is the resting interest of one instrument. Buys are kept by
// descending price, sells by ascending price; equal prices keep arrival
// order.
type book struct {
	buys  []*resting
	sells []*resting
}

// Match runs the auction. Orders are processed per instrument, instruments
// in name order, each in timestamp order. An incoming order sweeps the
// opposite queue, skipping orders of its own account, and fills at the
// mean of the two prices rounded to cents. Unfilled remainders rest. The
// ledger is returned in timestamp order.
func Match(logger *zap.Logger, orders []Order) []ledger.Trade {
	if logger == nil {
		logger = zap.NewNop()
	}
	byInstrument := make(map[string][]Order)
	for _, o := range orders {
		if o.Quantity <= 0 {
			continue
		}
		byInstrument[o.Instrument] = append(byInstrument[o.Instrument], o)
	}
	instruments := make([]string, 0, len(byInstrument))
	for name := range byInstrument {
		instruments = append(instruments, name)
	}
	sort.Strings(instruments)

	var trades []ledger.Trade
	for _, name := range instruments {
		flow := byInstrument[name]
		sort.SliceStable(flow, func(i, j int) bool { return flow[i].Timestamp.Before(flow[j].Timestamp) })

		b := &book{}
		before := len(trades)
		for _, o := range flow {
			trades = b.execute(o, trades)
		}
		logger.Debug("instrument matched",
			zap.String("op", "matching.Match"),
			zap.String("instrument", name),
			zap.Int("orders", len(flow)),
			zap.Int("trades", len(trades)-before),
			zap.Int("restingBuys", len(b.buys)),
			zap.Int("restingSells", len(b.sells)),
		)
	}
	ledger.SortChronological(trades)
	return trades
}

func (b *book) execute(o Order, trades []ledger.Trade) []ledger.Trade {
	remaining := o.Quantity
	opposite := &b.sells
	if o.Side == Sell {
		opposite = &b.buys
	}

	for _, r := range *opposite {
		if remaining <= 0 {
			break
		}
		if r.account == o.Account || r.quantity <= 0 {
			continue
		}
		qty := min(remaining, r.quantity)
		t := ledger.Trade{
			Timestamp: o.Timestamp,
			Security:  o.Instrument,
			Quantity:  qty,
			Price:     o.Price.Add(r.price).Div(decimal.NewFromInt(2)).Round(constants.DecimalPlaces),
		}
		if o.Side == Buy {
			t.From, t.To = r.account, o.Account
		} else {
			t.From, t.To = o.Account, r.account
		}
		trades = append(trades, t)
		remaining -= qty
		r.quantity -= qty
	}

	kept := (*opposite)[:0]
	for _, r := range *opposite {
		if r.quantity > 0 {
			kept = append(kept, r)
		}
	}
	*opposite = kept

	if remaining > 0 {
		b.rest(o, remaining)
	}
	return trades
}

func (b *book) rest(o Order, quantity int) {
	r := &resting{account: o.Account, quantity: quantity, price: o.Price}
	if o.Side == Buy {
		b.buys = append(b.buys, r)
		sort.SliceStable(b.buys, func(i, j int) bool { return b.buys[i].price.GreaterThan(b.buys[j].price) })
		return
	}
	b.sells = append(b.sells, r)
	sort.SliceStable(b.sells, func(i, j int) bool { return b.sells[i].price.LessThan(b.sells[j].price) })
}
