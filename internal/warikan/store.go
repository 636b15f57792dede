package warikan

import (
	"context"
	"time"

	"github.com/susu3304/warikanbot/internal/settlement"
)

// Store persists groups and everything attached to them. Members and expenses
// come back in the order they were added.
type Store interface {
	CreateGroup(ctx context.Context, g Group) error
	Group(ctx context.Context, id string) (*Group, error)
	ActiveGroupByChannel(ctx context.Context, channelID string) (*Group, error)
	ListGroups(ctx context.Context, guildID string) ([]Group, error)
	CloseGroup(ctx context.Context, id string) error
	SetBaseCurrency(ctx context.Context, groupID, code string) error

	// AddMember returns true when p was not a member yet. An existing member
	// keeps its position and gets its name refreshed.
	AddMember(ctx context.Context, groupID string, p settlement.Person) (bool, error)
	Members(ctx context.Context, groupID string) ([]settlement.Person, error)

	AddExpense(ctx context.Context, groupID string, e settlement.Expense) error
	DeleteExpense(ctx context.Context, groupID, expenseID string) error
	Expenses(ctx context.Context, groupID string) ([]settlement.Expense, error)

	SetRate(ctx context.Context, groupID, code string, rate float64) error
	Rates(ctx context.Context, groupID string) (settlement.Rates, error)

	ReplaceTasks(ctx context.Context, groupID string, tasks []Task) error
	Tasks(ctx context.Context, groupID string, pendingOnly bool) ([]Task, error)
	// CompleteTask marks the first pending task between a and b, in either direction.
	CompleteTask(ctx context.Context, groupID, a, b string) (*Task, error)
	// RecordPayment applies a partial or full payment to pending payer->payee
	// tasks and returns what is still owed between the two.
	RecordPayment(ctx context.Context, groupID, payerID, payeeID string, amount float64) (float64, error)

	UpsertReminder(ctx context.Context, r Reminder) error
	DueReminders(ctx context.Context, now time.Time) ([]ReminderDue, error)
	MarkReminderSent(ctx context.Context, groupID string, sentAt, nextDue time.Time) error
	DelayReminder(ctx context.Context, groupID string, nextDue time.Time) error
}
