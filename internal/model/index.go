package model

// Index holds the lookups shared by the compiler and the metrics
// extractor, so both see the transactions grouped the same way. Slices hold
// positions into the Input slices, in input order.
type Index struct {
	Transaction map[int]int
	Account     map[int]int

	Debits  map[int][]int
	Credits map[int][]int

	Outflows map[PositionKey][]int
	Inflows  map[PositionKey][]int

	LinksByAccount  map[int][]int
	LinksByPosition map[PositionKey][]int
}

// NewIndex builds the lookups for a bundle.
func NewIndex(in *Input) *Index {
	idx := &Index{
		Transaction:     make(map[int]int, len(in.Transactions)),
		Account:         make(map[int]int, len(in.Accounts)),
		Debits:          make(map[int][]int),
		Credits:         make(map[int][]int),
		Outflows:        make(map[PositionKey][]int),
		Inflows:         make(map[PositionKey][]int),
		LinksByAccount:  make(map[int][]int),
		LinksByPosition: make(map[PositionKey][]int),
	}
	for i, a := range in.Accounts {
		idx.Account[a.ID] = i
	}
	for i, t := range in.Transactions {
		idx.Transaction[t.ID] = i
		idx.Debits[t.DebitAccount] = append(idx.Debits[t.DebitAccount], i)
		idx.Credits[t.CreditAccount] = append(idx.Credits[t.CreditAccount], i)
		from, to := t.Delivery()
		idx.Outflows[from] = append(idx.Outflows[from], i)
		idx.Inflows[to] = append(idx.Inflows[to], i)
	}
	for i, l := range in.CollateralLinks {
		idx.LinksByAccount[l.AssociatedAccount] = append(idx.LinksByAccount[l.AssociatedAccount], i)
		idx.LinksByPosition[l.Position()] = append(idx.LinksByPosition[l.Position()], i)
	}
	return idx
}

// DebitCeiling is the sum of cash the account pays if all its debits
// settle and none of its credits do.
func (idx *Index) DebitCeiling(in *Input, accountID int) float64 {
	sum := 0.0
	for _, i := range idx.Debits[accountID] {
		sum += in.Transactions[i].CashAmount
	}
	return sum
}
