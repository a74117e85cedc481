package model

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

const corporateActionColumns = `id, symbol_id, action_type, ex_date, status, split_ratio_from, split_ratio_to,
	dividend_per_share, dividend_tax_status, description, created_at, applied_at, reversed_at, cancelled_at`

func scanCorporateAction(s rowScanner) (*models.CorporateAction, error) {
	var (
		a                               models.CorporateAction
		actionType, status, exDate      string
		ratioFrom, ratioTo              sql.NullInt64
		taxStatus                       sql.NullString
		appliedAt, reversedAt, cancelAt sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.SymbolID, &actionType, &exDate, &status, &ratioFrom, &ratioTo,
		&a.DividendPerShare, &taxStatus, &a.Description, &a.CreatedAt, &appliedAt, &reversedAt, &cancelAt); err != nil {
		return nil, err
	}
	date, err := parseStoredDate(exDate)
	if err != nil {
		return nil, err
	}
	a.ActionType = models.ActionType(actionType)
	a.Status = models.ActionStatus(status)
	a.ExDate = date
	a.SplitRatioFrom = ratioFrom.Int64
	a.SplitRatioTo = ratioTo.Int64
	a.DividendTaxStatus = models.DividendTaxStatus(taxStatus.String)
	a.AppliedAt = nullTimePtr(appliedAt)
	a.ReversedAt = nullTimePtr(reversedAt)
	a.CancelledAt = nullTimePtr(cancelAt)
	return &a, nil
}

func queryCorporateActions(ctx context.Context, db DBTX, query string, args ...any) ([]models.CorporateAction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []models.CorporateAction{}
	for rows.Next() {
		a, err := scanCorporateAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// InsertCorporateAction stores a new action and sets its ID and CreatedAt.
func InsertCorporateAction(ctx context.Context, db DBTX, a *models.CorporateAction) error {
	a.CreatedAt = time.Now().UTC()
	var ratioFrom, ratioTo any
	if a.ActionType == models.ActionStockSplit {
		ratioFrom, ratioTo = a.SplitRatioFrom, a.SplitRatioTo
	}
	var taxStatus any
	if a.DividendTaxStatus != "" {
		taxStatus = string(a.DividendTaxStatus)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO corporate_actions (symbol_id, action_type, ex_date, status, split_ratio_from, split_ratio_to,
			dividend_per_share, dividend_tax_status, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SymbolID, string(a.ActionType), utils.FormatDate(a.ExDate), string(a.Status), ratioFrom, ratioTo,
		a.DividendPerShare, taxStatus, a.Description, a.CreatedAt)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

// GetCorporateAction returns sql.ErrNoRows when the action does not exist.
func GetCorporateAction(ctx context.Context, db DBTX, id int64) (*models.CorporateAction, error) {
	return scanCorporateAction(db.QueryRowContext(ctx,
		`SELECT `+corporateActionColumns+` FROM corporate_actions WHERE id = ?`, id))
}

// ListCorporateActions returns actions ordered by ex_date then id. Zero symbolID or empty status mean "any".
func ListCorporateActions(ctx context.Context, db DBTX, symbolID int64, status models.ActionStatus) ([]models.CorporateAction, error) {
	where := []string{"1 = 1"}
	var args []any
	if symbolID != 0 {
		where = append(where, "symbol_id = ?")
		args = append(args, symbolID)
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	return queryCorporateActions(ctx, db,
		`SELECT `+corporateActionColumns+` FROM corporate_actions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY ex_date ASC, id ASC`, args...)
}

// ListAppliedSplits returns the applied stock splits of a symbol ordered by ex_date.
func ListAppliedSplits(ctx context.Context, db DBTX, symbolID int64) ([]models.CorporateAction, error) {
	return queryCorporateActions(ctx, db,
		`SELECT `+corporateActionColumns+` FROM corporate_actions
		 WHERE symbol_id = ? AND action_type = 'stock_split' AND status = 'applied'
		 ORDER BY ex_date ASC, id ASC`, symbolID)
}

// TransitionCorporateAction moves an action from one status to another and stamps the matching
// timestamp column. It returns the number of rows changed, which is 0 when the action was not in from.
func TransitionCorporateAction(ctx context.Context, db DBTX, id int64, from, to models.ActionStatus, at time.Time) (int64, error) {
	column := ""
	switch to {
	case models.StatusApplied:
		column = "applied_at"
	case models.StatusReversed:
		column = "reversed_at"
	case models.StatusCancelled:
		column = "cancelled_at"
	}
	query := `UPDATE corporate_actions SET status = ?`
	args := []any{string(to)}
	if column != "" {
		query += `, ` + column + ` = ?`
		args = append(args, at)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
