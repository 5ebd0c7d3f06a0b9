package ledger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLedger = `timestamp,security,quantity,price,from,to
2024-01-02 09:30:00,ACME,100,10.50,alice,bob
2024-01-02 09:31:00,ACME,50.0,11,bob,carol
2024-01-02T09:32:00Z,GLOBEX,10,99.99,carol,alice
`

func TestReadCSV(t *testing.T) {
	trades, err := ReadCSV(strings.NewReader(sampleLedger))
	require.NoError(t, err)
	require.Len(t, trades, 3)

	first := trades[0]
	assert.Equal(t, "ACME", first.Security)
	assert.Equal(t, 100, first.Quantity)
	assert.True(t, first.Price.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, "alice", first.From)
	assert.Equal(t, "bob", first.To)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), first.Timestamp)

	assert.Equal(t, 50, trades[1].Quantity)
	assert.True(t, first.Notional().Equal(decimal.NewFromInt(1050)))
}

func TestReadCSVColumnOrderAndExtras(t *testing.T) {
	in := "to,from,price,quantity,security,timestamp,venue\nbob,alice,2,3,X,2024-01-02,XNYS\n"
	trades, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "alice", trades[0].From)
	assert.Equal(t, 3, trades[0].Quantity)
}

func TestReadCSVErrors(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		problem string
	}{
		{name: "empty", input: "", problem: "empty"},
		{name: "missing column", input: "timestamp,security,quantity,price,from\n", problem: "missing columns: to"},
		{name: "bad price", input: "timestamp,security,quantity,price,from,to\n2024-01-02,X,1,abc,a,b\n", problem: "line 2"},
		{name: "zero price", input: "timestamp,security,quantity,price,from,to\n2024-01-02,X,1,0,a,b\n", problem: "must be positive"},
		{name: "fractional quantity", input: "timestamp,security,quantity,price,from,to\n2024-01-02,X,1.5,1,a,b\n", problem: "invalid quantity"},
		{name: "negative quantity", input: "timestamp,security,quantity,price,from,to\n2024-01-02,X,-1,1,a,b\n", problem: "must be positive"},
		{name: "self trade", input: "timestamp,security,quantity,price,from,to\n2024-01-02,X,1,1,a,a\n", problem: "trades with itself"},
		{name: "bad timestamp", input: "timestamp,security,quantity,price,from,to\nnever,X,1,1,a,b\n", problem: "unrecognized timestamp"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.problem)
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	trades, err := ReadCSV(strings.NewReader(sampleLedger))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, trades))
	assert.True(t, strings.HasPrefix(buf.String(), "timestamp,security,quantity,price,from,to\n"))

	again, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, again, len(trades))
	for i := range trades {
		assert.True(t, trades[i].Timestamp.Equal(again[i].Timestamp))
		assert.True(t, trades[i].Price.Equal(again[i].Price))
		assert.Equal(t, trades[i].Quantity, again[i].Quantity)
		assert.Equal(t, trades[i].From, again[i].From)
	}
}

func TestHashIDs(t *testing.T) {
	assert.Equal(t, PartyID("alice"), PartyID("alice"))
	assert.NotEqual(t, PartyID("alice"), PartyID("bob"))
	assert.GreaterOrEqual(t, PartyID("alice"), 0)
	assert.Equal(t, SecurityID("ACME"), PartyID("ACME"))
}

func TestSortChronologicalIsStable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		{Timestamp: base.Add(time.Minute), Security: "late"},
		{Timestamp: base, Security: "a"},
		{Timestamp: base, Security: "b"},
	}
	SortChronological(trades)
	assert.Equal(t, []string{"a", "b", "late"}, []string{trades[0].Security, trades[1].Security, trades[2].Security})
}

func TestBatches(t *testing.T) {
	trades := make([]Trade, 5)
	testCases := []struct {
		name  string
		size  int
		sizes []int
	}{
		{name: "even", size: 5, sizes: []int{5}},
		{name: "remainder", size: 2, sizes: []int{2, 2, 1}},
		{name: "larger than ledger", size: 10, sizes: []int{5}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			batches, err := Batches(trades, tc.size)
			require.NoError(t, err)
			var got []int
			for _, b := range batches {
				got = append(got, len(b))
			}
			assert.Equal(t, tc.sizes, got)
		})
	}

	_, err := Batches(trades, 0)
	assert.Error(t, err)

	empty, err := Batches(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPartiesAndSecurities(t *testing.T) {
	trades, err := ReadCSV(strings.NewReader(sampleLedger))
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol", "alice"}, Parties(trades))
	assert.Equal(t, []string{"ACME", "GLOBEX"}, Securities(trades))
}
