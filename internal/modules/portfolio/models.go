package portfolio

import (
	"time"
)

// CashCode is the synthetic security holding uninvested cash. It has no
// factor inputs and is uncovered unless cash_beta_zero is set.
const CashCode = "CASH"

// Position is one holding in a dated snapshot
type Position struct {
	AsOfDate     time.Time `json:"as_of_date"`
	SecurityCode string    `json:"security_code"`
	SecurityName string    `json:"security_name,omitempty"`
	Quantity     float64   `json:"quantity"`
	EvalAmount   float64   `json:"eval_amount"`
	CategoryTags []string  `json:"category_tags,omitempty"`
	Currency     string    `json:"currency"`
}

// IsCash reports whether the position is the synthetic cash security
func (p Position) IsCash() bool {
	return p.SecurityCode == CashCode
}

// Snapshot holds the account totals of one snapshot date
type Snapshot struct {
	AsOfDate         time.Time `json:"as_of_date"`
	TotalAsset       float64   `json:"total_asset"`
	TotalStockAmount float64   `json:"total_stock_amount"`
	TotalCash        float64   `json:"total_cash"`
}

// Holding is a broker-reported position inside a SnapshotImport
type Holding struct {
	SecurityCode string   `json:"security_code"`
	SecurityName string   `json:"security_name"`
	Quantity     float64  `json:"quantity"`
	EvalAmount   float64  `json:"eval_amount"`
	CategoryTags []string `json:"category_tags"`
	Currency     string   `json:"currency"`
}

// SnapshotImport is a snapshot as delivered by a broker export
type SnapshotImport struct {
	AsOfDate         string    `json:"as_of_date"`
	TotalAsset       float64   `json:"total_asset"`
	TotalStockAmount float64   `json:"total_stock_amount"`
	Holdings         []Holding `json:"holdings"`
}

// ImportResult reports what an import did
type ImportResult struct {
	AsOfDate  time.Time `json:"as_of_date"`
	Positions int       `json:"positions"`
	TotalCash float64   `json:"total_cash"`
	Skipped   bool      `json:"skipped"`
	Reason    string    `json:"reason,omitempty"`
}
