package model

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

const adjustmentColumns = `a.id, a.transaction_id, a.corporate_action_id, a.adjustment_type,
	a.original_quantity, a.original_price, a.adjusted_quantity, a.adjusted_price,
	a.dividend_per_share, a.shares_eligible, a.total_dividend, a.dividend_tax_status,
	a.fifo_lot_order, a.cost_basis_method, a.notes, a.is_reversed, a.reversed_at, a.reversal_reason, a.reversed_by, a.created_at`

func scanAdjustment(s rowScanner) (*models.TransactionAdjustment, error) {
	var (
		adj                           models.TransactionAdjustment
		adjType                       string
		taxStatus, reason, reversedBy sql.NullString
		reversedAt                    sql.NullTime
	)
	if err := s.Scan(&adj.ID, &adj.TransactionID, &adj.CorporateActionID, &adjType,
		&adj.OriginalQuantity, &adj.OriginalPrice, &adj.AdjustedQuantity, &adj.AdjustedPrice,
		&adj.DividendPerShare, &adj.SharesEligible, &adj.TotalDividend, &taxStatus,
		&adj.FIFOLotOrder, &adj.CostBasisMethod, &adj.Notes, &adj.IsReversed, &reversedAt, &reason, &reversedBy,
		&adj.CreatedAt); err != nil {
		return nil, err
	}
	adj.AdjustmentType = models.AdjustmentType(adjType)
	adj.DividendTaxStatus = models.DividendTaxStatus(taxStatus.String)
	adj.ReversedAt = nullTimePtr(reversedAt)
	adj.ReversalReason = reason.String
	adj.ReversedBy = reversedBy.String
	return &adj, nil
}

func queryAdjustments(ctx context.Context, db DBTX, query string, args ...any) ([]models.TransactionAdjustment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adjustments := []models.TransactionAdjustment{}
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, *adj)
	}
	return adjustments, rows.Err()
}

// InsertAdjustment stores a new adjustment and sets its ID and CreatedAt.
func InsertAdjustment(ctx context.Context, db DBTX, adj *models.TransactionAdjustment) error {
	adj.CreatedAt = time.Now().UTC()
	if adj.CostBasisMethod == "" {
		adj.CostBasisMethod = models.CostBasisFIFO
	}
	var taxStatus any
	if adj.DividendTaxStatus != "" {
		taxStatus = string(adj.DividendTaxStatus)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO transaction_adjustments (transaction_id, corporate_action_id, adjustment_type,
			original_quantity, original_price, adjusted_quantity, adjusted_price,
			dividend_per_share, shares_eligible, total_dividend, dividend_tax_status,
			fifo_lot_order, cost_basis_method, notes, is_reversed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		adj.TransactionID, adj.CorporateActionID, string(adj.AdjustmentType),
		adj.OriginalQuantity, adj.OriginalPrice, adj.AdjustedQuantity, adj.AdjustedPrice,
		adj.DividendPerShare, adj.SharesEligible, adj.TotalDividend, taxStatus,
		adj.FIFOLotOrder, adj.CostBasisMethod, adj.Notes, adj.CreatedAt)
	if err != nil {
		return err
	}
	adj.ID, err = res.LastInsertId()
	return err
}

// GetAdjustment returns sql.ErrNoRows when the adjustment does not exist.
func GetAdjustment(ctx context.Context, db DBTX, id int64) (*models.TransactionAdjustment, error) {
	return scanAdjustment(db.QueryRowContext(ctx,
		`SELECT `+adjustmentColumns+` FROM transaction_adjustments a WHERE a.id = ?`, id))
}

// ListAdjustments returns adjustments matching filter ordered by id.
func ListAdjustments(ctx context.Context, db DBTX, filter models.AdjustmentFilter) ([]models.TransactionAdjustment, error) {
	where := []string{"1 = 1"}
	var args []any
	if filter.TransactionID != 0 {
		where = append(where, "a.transaction_id = ?")
		args = append(args, filter.TransactionID)
	}
	if filter.CorporateActionID != 0 {
		where = append(where, "a.corporate_action_id = ?")
		args = append(args, filter.CorporateActionID)
	}
	if filter.Reversed != nil {
		where = append(where, "a.is_reversed = ?")
		args = append(args, *filter.Reversed)
	}
	return queryAdjustments(ctx, db,
		`SELECT `+adjustmentColumns+` FROM transaction_adjustments a WHERE `+strings.Join(where, " AND ")+
			` ORDER BY a.id ASC`, args...)
}

// GetActiveQuantityPriceAdjustments returns the non-reversed quantity_price adjustments of a
// symbol's transactions, keyed by transaction id and ordered by creation.
func GetActiveQuantityPriceAdjustments(ctx context.Context, db DBTX, symbolID int64) (map[int64][]models.TransactionAdjustment, error) {
	list, err := queryAdjustments(ctx, db, `
		SELECT `+adjustmentColumns+`
		FROM transaction_adjustments a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE t.symbol_id = ? AND a.adjustment_type = 'quantity_price' AND a.is_reversed = 0
		ORDER BY a.id ASC`, symbolID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]models.TransactionAdjustment)
	for _, adj := range list {
		out[adj.TransactionID] = append(out[adj.TransactionID], adj)
	}
	return out, nil
}

// GetCashReceiptsForAccount returns the non-reversed cash_receipt adjustments of an account whose
// corporate action has an ex_date within [start, end].
func GetCashReceiptsForAccount(ctx context.Context, db DBTX, accountID int64, start, end time.Time) ([]models.TransactionAdjustment, error) {
	return queryAdjustments(ctx, db, `
		SELECT `+adjustmentColumns+`
		FROM transaction_adjustments a
		JOIN transactions t ON t.id = a.transaction_id
		JOIN corporate_actions c ON c.id = a.corporate_action_id
		WHERE t.account_id = ? AND a.adjustment_type = 'cash_receipt' AND a.is_reversed = 0
		  AND c.ex_date >= ? AND c.ex_date <= ?
		ORDER BY a.id ASC`, accountID, utils.FormatDate(start), utils.FormatDate(end))
}

// MarkAdjustmentReversed flags one adjustment as reversed. It returns the number of rows changed,
// which is 0 when the adjustment was already reversed.
func MarkAdjustmentReversed(ctx context.Context, db DBTX, id int64, at time.Time, reason, by string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE transaction_adjustments
		SET is_reversed = 1, reversed_at = ?, reversal_reason = ?, reversed_by = ?
		WHERE id = ? AND is_reversed = 0`, at, reason, by, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateAdjustmentNotes replaces the free-text notes of an adjustment.
func UpdateAdjustmentNotes(ctx context.Context, db DBTX, id int64, notes string) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE transaction_adjustments SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
