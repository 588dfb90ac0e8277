package reports

import (
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/xuri/excelize/v2"
)

// Sheet names, in workbook order
const (
	SheetExposure  = "Exposure"
	SheetRisk      = "Risk"
	SheetRankings  = "Rankings"
	SheetRunReport = "RunReport"
)

// BuildWorkbook renders a run into a four-sheet workbook
func BuildWorkbook(data *RunData) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetExposure); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetRisk, SheetRankings, SheetRunReport} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	exposure := [][]interface{}{{
		"portfolio_date", "factor_code", "method", "beta_asof_date", "n_positions_total", "n_positions_covered",
		"total_eval", "covered_eval", "covered_pct", "beta_weighted_total", "beta_weighted_covered",
		"ann_sensitivity_total", "ann_sensitivity_covered", "stale",
	}}
	for _, e := range data.Exposures {
		exposure = append(exposure, []interface{}{
			domain.FormatDate(e.PortfolioDate), e.FactorCode, string(e.Method), datePtr(e.BetaAsOfDate),
			e.NPositionsTotal, e.NPositionsCovered, e.TotalEval, e.CoveredEval, e.CoveredPct,
			floatPtr(e.BetaWeightedTotal), floatPtr(e.BetaWeightedCovered),
			floatPtr(e.AnnSensitivityTotal), floatPtr(e.AnnSensitivityCovered), e.Stale,
		})
	}

	risk := [][]interface{}{{
		"portfolio_date", "factor_code", "method", "beta_asof_date", "cov_n_obs", "exposure_defined",
		"marginal_var_contrib", "var_contrib", "var_contrib_pct", "portfolio_variance_total", "portfolio_ann_vol_total",
	}}
	for _, r := range data.Risk {
		risk = append(risk, []interface{}{
			domain.FormatDate(r.PortfolioDate), r.FactorCode, string(r.Method), datePtr(r.BetaAsOfDate),
			r.CovNObs, r.ExposureDefined, r.MarginalVarContrib, r.VarContrib, floatPtr(r.VarContribPct),
			r.PortfolioVarianceTotal, r.PortfolioAnnVolTotal,
		})
	}

	rankings := [][]interface{}{{"as_of_date", "factor_code", "method", "axis", "side", "rank", "security_code", "beta", "r2"}}
	for _, e := range data.Rankings {
		rankings = append(rankings, []interface{}{
			domain.FormatDate(e.AsOfDate), e.FactorCode, string(e.Method), string(e.Axis), string(e.Side),
			e.Rank, e.SecurityCode, e.Beta, floatPtr(e.R2),
		})
	}

	report := [][]interface{}{toRow(runReportHeader)}
	for _, row := range data.Report {
		report = append(report, []interface{}{
			row.RunID, row.SecurityCode, string(row.Status), row.Reason, string(row.ZScoreStatus), row.ZScoreReason,
			datePtr(row.AsOfDate), row.NObs,
			betas.JoinFactors(row.OKFactors), betas.JoinFactors(row.SkippedFactors),
		})
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{SheetExposure, exposure},
		{SheetRisk, risk},
		{SheetRankings, rankings},
		{SheetRunReport, report},
	}
	for _, sheet := range sheets {
		if err := writeRows(f, sheet.name, sheet.rows); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteWorkbookFile renders data and saves it to path
func WriteWorkbookFile(path string, data *RunData) error {
	f, err := BuildWorkbook(data)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toRow(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// datePtr and floatPtr turn undefined values into empty cells
func datePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return domain.FormatDate(*t)
}

func floatPtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
