package db

import (
	"context"

	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

// AddExpense inserts an expense and its participants in one transaction.
func (db *DB) AddExpense(ctx context.Context, groupID string, e settlement.Expense) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO warikan_expenses (id, group_id, payer_id, amount, currency, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, groupID, e.PayerID, e.Amount, e.Currency, e.Description,
	); err != nil {
		return mapError(err, nil)
	}

	for pos, pid := range e.ParticipantIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO warikan_expense_participants (expense_id, person_id, position)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			e.ID, pid, pos,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *DB) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM warikan_expenses WHERE group_id = $1 AND id = $2`, groupID, expenseID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrExpenseNotFound
	}
	return nil
}

// Expenses returns expenses in insertion order with participants expanded.
func (db *DB) Expenses(ctx context.Context, groupID string) ([]settlement.Expense, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT e.id, e.payer_id, e.amount, e.currency, e.description, p.person_id
		 FROM warikan_expenses e
		 LEFT JOIN warikan_expense_participants p ON p.expense_id = e.id
		 WHERE e.group_id = $1
		 ORDER BY e.seq, p.position`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Expense
	for rows.Next() {
		var e settlement.Expense
		var pid *string
		if err := rows.Scan(&e.ID, &e.PayerID, &e.Amount, &e.Currency, &e.Description, &pid); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != e.ID {
			out = append(out, e)
		}
		if pid != nil {
			last := &out[len(out)-1]
			last.ParticipantIDs = append(last.ParticipantIDs, *pid)
		}
	}
	return out, rows.Err()
}
