package db

import (
	"context"
	"time"

	"github.com/susu3304/warikanbot/internal/warikan"
)

// UpsertReminder configures reminders for a group. A nil NextDueAt keeps the
// current schedule.
func (db *DB) UpsertReminder(ctx context.Context, r warikan.Reminder) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO warikan_reminders (group_id, enabled, interval_minutes, next_due_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id) DO UPDATE
		 SET enabled = EXCLUDED.enabled,
			 interval_minutes = EXCLUDED.interval_minutes,
			 next_due_at = COALESCE(EXCLUDED.next_due_at, warikan_reminders.next_due_at)`,
		r.GroupID, r.Enabled, int(r.Interval/time.Minute), r.NextDueAt,
	)
	return mapError(err, nil)
}

// DueReminders returns reminder targets that are due and still have pending tasks.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]warikan.ReminderDue, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT r.group_id, g.channel_id, r.interval_minutes
		 FROM warikan_reminders r
		 JOIN warikan_groups g ON g.id = r.group_id
		 WHERE r.enabled = TRUE
		   AND (r.next_due_at IS NULL OR r.next_due_at <= $1)
		   AND EXISTS (
			 SELECT 1 FROM warikan_tasks t
			 WHERE t.group_id = r.group_id AND t.completed = FALSE
		   )
		 ORDER BY r.group_id`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []warikan.ReminderDue
	for rows.Next() {
		var r warikan.ReminderDue
		var minutes int
		if err := rows.Scan(&r.GroupID, &r.ChannelID, &minutes); err != nil {
			return nil, err
		}
		r.Interval = time.Duration(minutes) * time.Minute
		targets = append(targets, r)
	}
	return targets, rows.Err()
}

func (db *DB) MarkReminderSent(ctx context.Context, groupID string, sentAt, nextDue time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE warikan_reminders
		 SET last_sent_at = $2, next_due_at = $3
		 WHERE group_id = $1`,
		groupID, sentAt, nextDue,
	)
	return err
}

// DelayReminder updates next_due_at without touching last_sent_at.
func (db *DB) DelayReminder(ctx context.Context, groupID string, nextDue time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE warikan_reminders
		 SET next_due_at = $2
		 WHERE group_id = $1`,
		groupID, nextDue,
	)
	return err
}
