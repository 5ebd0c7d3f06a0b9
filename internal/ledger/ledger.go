// Package ledger reads and writes matched-trade ledgers and splits them into
// settlement batches.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/settlement-optimizer/pkg/datetime"
	"github.com/shopspring/decimal"
)

// Header is the column order of a ledger file.
var Header = []string{"timestamp", "security", "quantity", "price", "from", "to"}

// Trade is one matched trade: To buys Quantity of Security from From at
// Price per unit.
type Trade struct {
	Timestamp time.Time       `json:"timestamp"`
	Security  string          `json:"security"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	From      string          `json:"from"`
	To        string          `json:"to"`
}

// Notional is price × quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

// PartyID maps an opaque party identifier to an account id.
func PartyID(party string) int {
	return hashID(party)
}

// SecurityID maps an instrument name to a security id.
func SecurityID(security string) int {
	return hashID(security)
}

func hashID(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}

// ReadCSV parses a ledger with a header row. Columns are located by name,
// so extra columns and any column order are accepted.
func ReadCSV(r io.Reader) ([]Trade, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("ledger is empty")
		}
		return nil, fmt.Errorf("reading ledger header: %w", err)
	}
	cols, err := columnIndex(header, Header)
	if err != nil {
		return nil, err
	}

	var trades []Trade
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		t, err := parseTrade(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func parseTrade(rec []string, cols map[string]int) (Trade, error) {
	field := func(name string) string { return strings.TrimSpace(rec[cols[name]]) }

	ts, err := datetime.ParseTimestamp(field("timestamp"))
	if err != nil {
		return Trade{}, err
	}
	qty, err := parseQuantity(field("quantity"))
	if err != nil {
		return Trade{}, err
	}
	price, err := decimal.NewFromString(field("price"))
	if err != nil {
		return Trade{}, fmt.Errorf("invalid price %q: %w", field("price"), err)
	}
	if !price.IsPositive() {
		return Trade{}, fmt.Errorf("price %s must be positive", price)
	}
	t := Trade{
		Timestamp: ts,
		Security:  field("security"),
		Quantity:  qty,
		Price:     price,
		From:      field("from"),
		To:        field("to"),
	}
	switch {
	case t.Security == "":
		return Trade{}, errors.New("empty security")
	case t.From == "" || t.To == "":
		return Trade{}, errors.New("empty counterparty")
	case t.From == t.To:
		return Trade{}, fmt.Errorf("party %q trades with itself", t.From)
	}
	return t, nil
}

// parseQuantity accepts integral values written as decimals ("100.0").
func parseQuantity(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("quantity %d must be positive", n)
		}
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("quantity %s must be positive", d)
	}
	return int(d.IntPart()), nil
}

func columnIndex(header, required []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// WriteCSV writes trades with the Header row.
func WriteCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			datetime.FormatTimestamp(t.Timestamp),
			t.Security,
			strconv.Itoa(t.Quantity),
			t.Price.String(),
			t.From,
			t.To,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SortChronological orders trades by timestamp, keeping the file order of
// equal timestamps.
func SortChronological(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}

// Batches splits a chronologically sorted ledger into consecutive batches of
// at most size trades.
func Batches(trades []Trade, size int) ([][]Trade, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size %d must be positive", size)
	}
	var out [][]Trade
	for start := 0; start < len(trades); start += size {
		end := min(start+size, len(trades))
		out = append(out, trades[start:end])
	}
	return out, nil
}

// Parties returns the distinct parties of a batch in first-seen order,
// scanning buyers before sellers.
func Parties(batch []Trade) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, t := range batch {
		add(t.To)
	}
	for _, t := range batch {
		add(t.From)
	}
	return out
}

// Securities returns the distinct securities of a batch in first-seen order.
func Securities(batch []Trade) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range batch {
		if !seen[t.Security] {
			seen[t.Security] = true
			out = append(out, t.Security)
		}
	}
	return out
}
