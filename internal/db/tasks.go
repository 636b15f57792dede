package db

import (
	"context"

	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

// ReplaceTasks replaces tasks for a group.
func (db *DB) ReplaceTasks(ctx context.Context, groupID string, tasks []warikan.Task) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM warikan_tasks WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Amount <= 0 || t.PayerID == "" || t.PayeeID == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO warikan_tasks (group_id, payer_id, payee_id, amount, completed)
			 VALUES ($1, $2, $3, $4, FALSE)`,
			groupID, t.PayerID, t.PayeeID, t.Amount,
		); err != nil {
			return mapError(err, nil)
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) Tasks(ctx context.Context, groupID string, pendingOnly bool) ([]warikan.Task, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, group_id, payer_id, payee_id, amount, completed
		 FROM warikan_tasks
		 WHERE group_id = $1 AND (NOT $2 OR completed = FALSE)
		 ORDER BY id`,
		groupID, pendingOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []warikan.Task
	for rows.Next() {
		var t warikan.Task
		if err := rows.Scan(&t.ID, &t.GroupID, &t.PayerID, &t.PayeeID, &t.Amount, &t.Completed); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) CompleteTask(ctx context.Context, groupID, a, b string) (*warikan.Task, error) {
	var t warikan.Task
	err := db.pool.QueryRow(ctx,
		`UPDATE warikan_tasks
		 SET completed = TRUE, completed_at = CURRENT_TIMESTAMP
		 WHERE id = (
			 SELECT id FROM warikan_tasks
			 WHERE group_id = $1 AND completed = FALSE
			   AND ((payer_id = $2 AND payee_id = $3) OR (payer_id = $3 AND payee_id = $2))
			 ORDER BY id
			 LIMIT 1
			 FOR UPDATE
		 )
		 RETURNING id, group_id, payer_id, payee_id, amount, completed`,
		groupID, a, b,
	).Scan(&t.ID, &t.GroupID, &t.PayerID, &t.PayeeID, &t.Amount, &t.Completed)
	if err != nil {
		return nil, mapError(err, warikan.ErrTaskNotFound)
	}
	return &t, nil
}

// RecordPayment logs a settlement payment and reduces outstanding tasks (payer -> payee).
// Returns the remaining unsettled amount for the pair after applying the payment.
func (db *DB) RecordPayment(ctx context.Context, groupID, payerID, payeeID string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, warikan.ErrInvalidAmount
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	type pending struct {
		ID     int64
		Amount float64
	}

	rows, err := tx.Query(ctx,
		`SELECT id, amount
		 FROM warikan_tasks
		 WHERE group_id = $1 AND completed = FALSE AND payer_id = $2 AND payee_id = $3
		 ORDER BY id FOR UPDATE`,
		groupID, payerID, payeeID,
	)
	if err != nil {
		return 0, err
	}
	var tasks []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.ID, &p.Amount); err != nil {
			rows.Close()
			return 0, err
		}
		tasks = append(tasks, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, warikan.ErrTaskNotFound
	}

	left := amount
	for _, t := range tasks {
		if left <= 0 {
			break
		}
		if left+settlement.SettlementEpsilon/2 >= t.Amount {
			left -= t.Amount
			if _, err := tx.Exec(ctx,
				`UPDATE warikan_tasks
				 SET completed = TRUE, completed_at = COALESCE(completed_at, CURRENT_TIMESTAMP)
				 WHERE id = $1`,
				t.ID,
			); err != nil {
				return 0, err
			}
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE warikan_tasks SET amount = $2 WHERE id = $1`,
			t.ID, settlement.Round2(t.Amount-left),
		); err != nil {
			return 0, err
		}
		left = 0
	}

	// only the part that reached a task is recorded
	applied := amount
	if left > 0 {
		applied = amount - left
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO warikan_task_payments (group_id, payer_id, payee_id, amount)
		 VALUES ($1, $2, $3, $4)`,
		groupID, payerID, payeeID, settlement.Round2(applied),
	); err != nil {
		return 0, err
	}

	var remaining float64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM warikan_tasks
		 WHERE group_id = $1 AND completed = FALSE AND payer_id = $2 AND payee_id = $3`,
		groupID, payerID, payeeID,
	).Scan(&remaining); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return settlement.Round2(remaining), nil
}
