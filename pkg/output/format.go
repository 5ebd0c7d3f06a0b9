// Package output provides utilities for formatting and displaying settlement results.
package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/iwvelando/settlement-optimizer/internal/settlement"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Write renders outcomes in the named format.
func Write(w io.Writer, outputFormat string, outcomes []settlement.BatchOutcome, summary settlement.Summary) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, outcomes, summary)
	case constants.OutputFormatCSV:
		return CsvFormat(w, outcomes)
	case constants.OutputFormatJSON:
		return JSONFormat(w, outcomes, summary)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, outcomes []settlement.BatchOutcome, summary settlement.Summary) error {
	p := message.NewPrinter(language.English)
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = p.Fprintf(w, format, args...)
		}
	}

	printf("Batch | Status     | Settled     | Settle Rate | Cashflow         | Total Loan\n")
	printf("_____ | __________ | ___________ | ___________ | ________________ | __________\n")
	for _, o := range outcomes {
		if o.Result == nil {
			printf("%5d | %-10s | %11s | %11s | %16s | %10s\n", o.Index, outcomeStatus(o), "-", "-", "-", "-")
			continue
		}
		m := o.Result.Metrics
		printf("%5d | %-10s | %11s | %11s | %16s | %10d\n",
			o.Index, o.Result.Status,
			fmt.Sprintf("%d/%d", m.Settled, m.Total),
			format.Rate(m.SettleRate),
			format.Currency(m.TotalCashflow),
			int64(m.TotalLoan),
		)
	}
	printf("\n--- Summary ---\n")
	printf("Batches: %d (solved %d, infeasible %d, aborted %d, failed %d)\n",
		summary.Batches, summary.Solved, summary.Infeasible, summary.Aborted, summary.Failed)
	printf("Average settle rate: %s\n", format.Rate(summary.AvgSettleRate))
	printf("Average total loan: %.2f\n", summary.AvgTotalLoan)
	printf("Total cashflow: %s\n", format.Currency(summary.TotalCashflow))
	return err
}

// CsvFormat outputs one row of metrics per batch in comma-separated value format.
func CsvFormat(w io.Writer, outcomes []settlement.BatchOutcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"batch", "status", "settled", "total", "settle_rate", "total_cashflow", "total_loan", "collateral_value", "error"}); err != nil {
		return err
	}
	for _, o := range outcomes {
		row := []string{strconv.Itoa(o.Index), outcomeStatus(o)}
		if o.Result != nil {
			m := o.Result.Metrics
			row = append(row,
				strconv.Itoa(m.Settled),
				strconv.Itoa(m.Total),
				strconv.FormatFloat(m.SettleRate, 'f', 4, 64),
				format.NumericCurrency(m.TotalCashflow),
				strconv.FormatFloat(m.TotalLoan, 'f', 0, 64),
				format.NumericCurrency(m.CollateralValue),
				"",
			)
		} else {
			row = append(row, "", "", "", "", "", "", errorText(o.Err))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonBatch struct {
	Index  int                `json:"index"`
	Status string             `json:"status"`
	Result *settlement.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type jsonReport struct {
	Summary settlement.Summary `json:"summary"`
	Batches []jsonBatch        `json:"batches"`
}

// JSONFormat emits the full results, including every decision, as indented JSON.
func JSONFormat(w io.Writer, outcomes []settlement.BatchOutcome, summary settlement.Summary) error {
	report := jsonReport{Summary: summary, Batches: make([]jsonBatch, 0, len(outcomes))}
	for _, o := range outcomes {
		report.Batches = append(report.Batches, jsonBatch{
			Index:  o.Index,
			Status: outcomeStatus(o),
			Result: o.Result,
			Error:  errorText(o.Err),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// Dump lists every transaction, link, position and account of a result.
func Dump(w io.Writer, res *settlement.Result) error {
	p := message.NewPrinter(language.English)
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = p.Fprintf(w, format, args...)
		}
	}

	printf("--- Run %s (%s, objective %.6f, %d nodes) ---\n", res.RunID, res.Status, res.Objective, res.Nodes)
	printf("Transactions:\n")
	for _, t := range res.Transactions {
		printf("  tx %d: settled=%t cash=%s weight=%.2f\n", t.ID, t.Settled, format.Currency(t.CashAmount), t.Weight)
	}
	if len(res.Links) > 0 {
		printf("Collateral links:\n")
		for _, l := range res.Links {
			printf("  link %d: account=%d security=%d active=%t lots=%d quantity=%d value=%s\n",
				l.ID, l.AccountID, l.SecurityID, l.Active, l.Lots, l.Quantity, format.Currency(l.Value))
		}
	}
	if len(res.Positions) > 0 {
		printf("Positions:\n")
		for _, s := range res.Positions {
			declared := ""
			if !s.Declared {
				declared = " (undeclared)"
			}
			printf("  account %d security %d%s: initial=%d out=%d in=%d pledged=%d\n",
				s.AccountID, s.SecurityID, declared, s.Initial, s.Outflow, s.Inflow, s.Pledged)
		}
	}
	printf("Accounts:\n")
	for _, a := range res.Accounts {
		printf("  account %d: cash=%s debits=%s credits=%s collateral=%s need=%s\n",
			a.ID, format.Currency(a.InitialCash), format.Currency(a.Debits), format.Currency(a.Credits),
			format.Currency(a.Collateral), format.Currency(a.Need))
	}
	return err
}

func outcomeStatus(o settlement.BatchOutcome) string {
	switch {
	case o.Result != nil:
		return o.Result.Status
	case errors.Is(o.Err, settlement.ErrInfeasible):
		return "infeasible"
	case errors.Is(o.Err, settlement.ErrAborted):
		return "aborted"
	default:
		return "failed"
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
