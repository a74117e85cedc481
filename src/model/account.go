package model

import (
	"context"
	"time"

	"github.com/username/taxfolio/ledger/src/models"
)

// CreateAccount inserts a new account.
func CreateAccount(ctx context.Context, db DBTX, name string) (*models.Account, error) {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `INSERT INTO accounts (name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Account{ID: id, Name: name, CreatedAt: now}, nil
}

// GetAccountByID returns sql.ErrNoRows when the account does not exist.
func GetAccountByID(ctx context.Context, db DBTX, id int64) (*models.Account, error) {
	var a models.Account
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns all accounts ordered by id.
func ListAccounts(ctx context.Context, db DBTX) ([]models.Account, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
