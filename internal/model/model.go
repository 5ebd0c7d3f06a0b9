// Package model defines the entities of a settlement batch: accounts,
// security positions, transactions, collateral links and ordering
// dependencies, together with the bundle that aggregates them.
package model

// AccountKind tags an account with the regulatory treatment it receives.
type AccountKind string

const (
	// AccountStandard is a plain participant account.
	AccountStandard AccountKind = "standard"
	// AccountCustomer holds customer assets.
	AccountCustomer AccountKind = "customer"
	// AccountPAB holds proprietary assets of broker-dealers.
	AccountPAB AccountKind = "pab"
	// AccountSBS carries security-based swap activity subject to segregation.
	AccountSBS AccountKind = "sbs"
)

// TransactionKind tags a transaction with the regulatory treatment it receives.
type TransactionKind string

const (
	// TxStandard is a plain cash-for-securities transfer.
	TxStandard TransactionKind = "standard"
	// TxSBSCleared is a cleared security-based swap leg.
	TxSBSCleared TransactionKind = "sbs_cleared"
	// TxSBSNonCleared is a non-cleared security-based swap leg.
	TxSBSNonCleared TransactionKind = "sbs_non_cleared"
)

// Security flow directions. A zero flow is read as FlowOutflow.
const (
	FlowOutflow = -1
	FlowInflow  = 1
)

// Regulatory is the optional payload consumed by the regulatory extension
// families of the compiler. Accounts without it are unaffected by them.
type Regulatory struct {
	BankEquityCapital     *float64        `json:"bankEquityCapital,omitempty" yaml:"bankEquityCapital,omitempty" validate:"omitempty,gte=0"`
	StateMuniHoldings     map[int]float64 `json:"stateMuniHoldings,omitempty" yaml:"stateMuniHoldings,omitempty" validate:"omitempty,dive,gte=0"`
	SBSReserveRequirement float64         `json:"sbsReserveRequirement,omitempty" yaml:"sbsReserveRequirement,omitempty" validate:"gte=0"`
	NonClearedSBSReserve  float64         `json:"nonClearedSbsReserve,omitempty" yaml:"nonClearedSbsReserve,omitempty" validate:"gte=0"`
}

// Account is one party's cash position. CreditLimit bounds the total
// collateral-backed borrowing independently of InitialCash.
type Account struct {
	ID          int         `json:"id" yaml:"id"`
	OwnerID     int         `json:"ownerId" yaml:"ownerId"`
	InitialCash float64     `json:"initialCash" yaml:"initialCash" validate:"gte=0"`
	CreditLimit float64     `json:"creditLimit" yaml:"creditLimit" validate:"gte=0"`
	Kind        AccountKind `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=standard customer pab sbs"`
	Regulatory  *Regulatory `json:"regulatory,omitempty" yaml:"regulatory,omitempty" validate:"omitempty"`
}

// EffectiveKind returns the account kind, defaulting to AccountStandard.
func (a Account) EffectiveKind() AccountKind {
	if a.Kind == "" {
		return AccountStandard
	}
	return a.Kind
}

// SecurityPosition is one account's holding of one security. The pair
// (AccountID, ID) is the key.
type SecurityPosition struct {
	ID              int `json:"id" yaml:"id"`
	AccountID       int `json:"accountId" yaml:"accountId"`
	InitialQuantity int `json:"initialQuantity" yaml:"initialQuantity" validate:"gte=0"`
}

// Key returns the (account, security) key of the position.
func (p SecurityPosition) Key() PositionKey {
	return PositionKey{AccountID: p.AccountID, SecurityID: p.ID}
}

// PositionKey identifies a security position.
type PositionKey struct {
	AccountID  int `json:"accountId"`
	SecurityID int `json:"securityId"`
}

// Transaction is a pending cash-for-securities transfer. Cash moves from
// DebitAccount to CreditAccount.
type Transaction struct {
	ID            int             `json:"id" yaml:"id"`
	CashAmount    float64         `json:"cashAmount" yaml:"cashAmount" validate:"gt=0"`
	Weight        float64         `json:"weight" yaml:"weight" validate:"gt=0"`
	DebitAccount  int             `json:"debitAccount" yaml:"debitAccount"`
	CreditAccount int             `json:"creditAccount" yaml:"creditAccount"`
	SecurityID    int             `json:"securityId" yaml:"securityId"`
	Quantity      int             `json:"quantity" yaml:"quantity" validate:"gt=0"`
	SecurityFlow  int             `json:"securityFlow" yaml:"securityFlow" validate:"oneof=-1 0 1"`
	Kind          TransactionKind `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=standard sbs_cleared sbs_non_cleared"`
}

// EffectiveKind returns the transaction kind, defaulting to TxStandard.
func (t Transaction) EffectiveKind() TransactionKind {
	if t.Kind == "" {
		return TxStandard
	}
	return t.Kind
}

// EffectiveFlow returns the security flow, defaulting to FlowOutflow.
func (t Transaction) EffectiveFlow() int {
	if t.SecurityFlow == 0 {
		return FlowOutflow
	}
	return t.SecurityFlow
}

// Delivery returns the positions that lose and gain t.Quantity of the
// security when t settles. With an outflow flow the seller (the account
// credited with cash) delivers to the buyer; an inflow flow reverses the
// security leg.
func (t Transaction) Delivery() (from, to PositionKey) {
	seller := PositionKey{AccountID: t.CreditAccount, SecurityID: t.SecurityID}
	buyer := PositionKey{AccountID: t.DebitAccount, SecurityID: t.SecurityID}
	if t.EffectiveFlow() == FlowInflow {
		return buyer, seller
	}
	return seller, buyer
}

// Touches reports whether the transaction debits or credits the account.
func (t Transaction) Touches(accountID int) bool {
	return t.DebitAccount == accountID || t.CreditAccount == accountID
}

// CollateralLink is a standing facility letting AssociatedAccount pledge
// lots of SecurityID to unlock cash credit. It activates only when one of
// TriggeredTransactions settles.
type CollateralLink struct {
	ID                    int     `json:"id" yaml:"id"`
	AssociatedAccount     int     `json:"associatedAccount" yaml:"associatedAccount"`
	LotSize               int     `json:"lotSize" yaml:"lotSize" validate:"gt=0"`
	Valuation             float64 `json:"valuation" yaml:"valuation" validate:"gte=0"`
	QMin                  int     `json:"qMin" yaml:"qMin" validate:"gte=0"`
	QLim                  int     `json:"qLim" yaml:"qLim" validate:"gte=0"`
	TriggeredTransactions []int   `json:"triggeredTransactions" yaml:"triggeredTransactions"`
	SecurityID            int     `json:"securityId" yaml:"securityId"`
}

// Position returns the position the link pledges from.
func (l CollateralLink) Position() PositionKey {
	return PositionKey{AccountID: l.AssociatedAccount, SecurityID: l.SecurityID}
}

// LotValue is the cash credit unlocked by one pledged lot.
func (l CollateralLink) LotValue() float64 {
	return float64(l.LotSize) * l.Valuation
}

// AfterLink states that T2 may settle only if T1 settles.
type AfterLink struct {
	T1 int `json:"t1" yaml:"t1"`
	T2 int `json:"t2" yaml:"t2"`
}

// Input is the bundle handed to the compiler. It is not mutated once
// assembled.
type Input struct {
	Transactions      []Transaction      `json:"transactions" yaml:"transactions" validate:"dive"`
	Accounts          []Account          `json:"accounts" yaml:"accounts" validate:"dive"`
	CollateralLinks   []CollateralLink   `json:"collateralLinks" yaml:"collateralLinks" validate:"dive"`
	AfterLinks        []AfterLink        `json:"afterLinks" yaml:"afterLinks"`
	SecurityPositions []SecurityPosition `json:"securityPositions" yaml:"securityPositions" validate:"dive"`
}

// AttachTriggersBySecurity sets every link's triggers to the transactions
// trading the link's security. It is the last step of assembling a bundle.
func (in *Input) AttachTriggersBySecurity() {
	bySecurity := make(map[int][]int)
	for _, t := range in.Transactions {
		bySecurity[t.SecurityID] = append(bySecurity[t.SecurityID], t.ID)
	}
	for i := range in.CollateralLinks {
		ids := bySecurity[in.CollateralLinks[i].SecurityID]
		in.CollateralLinks[i].TriggeredTransactions = append([]int(nil), ids...)
	}
}

// TotalWeight returns Σ weight over all transactions.
func (in *Input) TotalWeight() float64 {
	sum := 0.0
	for _, t := range in.Transactions {
		sum += t.Weight
	}
	return sum
}

// TotalWeightedCash returns Σ weight·cash over all transactions.
func (in *Input) TotalWeightedCash() float64 {
	sum := 0.0
	for _, t := range in.Transactions {
		sum += t.Weight * t.CashAmount
	}
	return sum
}
