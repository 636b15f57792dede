package warikan

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/settlement"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	n := 0
	now := time.Date(2024, 10, 19, 20, 0, 0, 0, time.UTC)
	svc := NewService(store,
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithClock(func() time.Time { return now }),
	)
	return svc, store
}

func startGroup(t *testing.T, svc *Service, base string) *Group {
	t.Helper()
	g, started, err := svc.StartGroup(context.Background(), StartInput{
		GuildID: "guild", ChannelID: "chan", OrganizerID: "alice", Name: "旅行", BaseCurrency: base,
	})
	require.NoError(t, err)
	require.True(t, started)
	return g
}

func TestStartGroup_ReusesActiveGroup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := startGroup(t, svc, "jpy")
	assert.Equal(t, "JPY", g.BaseCurrency)
	assert.Equal(t, StatusActive, g.Status)

	again, started, err := svc.StartGroup(ctx, StartInput{GuildID: "guild", ChannelID: "chan"})
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, g.ID, again.ID)

	require.NoError(t, svc.StopGroup(ctx, g.ID))
	_, err = svc.ActiveGroup(ctx, "chan")
	assert.ErrorIs(t, err, ErrNoActiveGroup)

	next, started, err := svc.StartGroup(ctx, StartInput{GuildID: "guild", ChannelID: "chan"})
	require.NoError(t, err)
	assert.True(t, started)
	assert.NotEqual(t, g.ID, next.ID)
	assert.Equal(t, defaultGroupName, next.Name)
	assert.Equal(t, "JPY", next.BaseCurrency)

	groups, err := svc.Groups(ctx, "guild")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, next.ID, groups[0].ID)
}

func TestStartGroup_InvalidBaseCurrency(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.StartGroup(context.Background(), StartInput{ChannelID: "c", BaseCurrency: "円"})
	require.Error(t, err)
}

func TestAddExpense_AutoJoinAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.Join(ctx, g.ID, settlement.Person{ID: "alice", Name: "Alice"})
	require.NoError(t, err)

	rec, err := svc.AddExpense(ctx, g.ID, ExpenseInput{
		PayerID:        "bob",
		PayerName:      "Bob",
		Amount:         3000,
		ParticipantIDs: []string{"alice", "carol", "carol", " "},
		Description:    " dinner ",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, rec.Joined)
	assert.Equal(t, "JPY", rec.Expense.Currency)
	assert.Equal(t, []string{"alice", "carol"}, rec.Expense.ParticipantIDs)
	assert.Equal(t, "dinner", rec.Expense.Description)

	// no participants: everyone who is a member now
	rec, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "alice", Amount: 20, Currency: "usd"})
	require.NoError(t, err)
	assert.Empty(t, rec.Joined)
	assert.Equal(t, "USD", rec.Expense.Currency)
	assert.Equal(t, []string{"alice", "bob", "carol"}, rec.Expense.ParticipantIDs)

	members, err := svc.Members(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []settlement.Person{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}, {ID: "carol"}}, members)
}

func TestAddExpense_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "a", Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "", Amount: 10})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	_, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "a", Amount: 10, Currency: "dollar"})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	require.NoError(t, svc.StopGroup(ctx, g.ID))
	_, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "a", Amount: 10})
	assert.ErrorIs(t, err, ErrGroupClosed)

	_, err = svc.AddExpense(ctx, "missing", ExpenseInput{PayerID: "a", Amount: 10})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestSettle_ThreeWaySplit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	for _, id := range []string{"A", "B", "C"} {
		_, err := svc.Join(ctx, g.ID, settlement.Person{ID: id, Name: id})
		require.NoError(t, err)
	}
	_, err := svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "A", Amount: 300})
	require.NoError(t, err)

	res, err := svc.Settle(ctx, g.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, []settlement.Transfer{
		{From: "B", To: "A", Amount: 100},
		{From: "C", To: "A", Amount: 100},
	}, res.Result.Transfers)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "B", res.Tasks[0].PayerID)
	assert.Contains(t, res.Summary, "B → A: ¥100")
	assert.Contains(t, res.Summary, "総支出: ¥300")

	tasks, err := store.Tasks(ctx, g.ID, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSettle_ForeignCurrency(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.SetRate(ctx, g.ID, "usd", 150)
	require.NoError(t, err)
	_, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "A", Amount: 100, Currency: "USD", ParticipantIDs: []string{"A", "B"}})
	require.NoError(t, err)

	res, err := svc.Settle(ctx, g.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, 7500.0, res.Result.Balances.Of("A"))
	assert.Equal(t, []settlement.Transfer{{From: "B", To: "A", Amount: 7500}}, res.Result.Transfers)

	// switching the base currency converts everything back to dollars
	_, err = svc.SetBaseCurrency(ctx, g.ID, "USD")
	require.NoError(t, err)
	preview, err := svc.Preview(ctx, g.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, []settlement.Transfer{{From: "B", To: "A", Amount: 50}}, preview.Result.Transfers)
	assert.Contains(t, preview.Summary, "$50.00")
}

func TestSettle_NeedsTwoMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.Join(ctx, g.ID, settlement.Person{ID: "A"})
	require.NoError(t, err)
	_, err = svc.Settle(ctx, g.ID, "test")
	assert.ErrorIs(t, err, ErrNotEnoughMembers)
}

func TestSettle_NothingToPay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	for _, id := range []string{"A", "B"} {
		_, err := svc.Join(ctx, g.ID, settlement.Person{ID: id})
		require.NoError(t, err)
	}
	res, err := svc.Settle(ctx, g.ID, "test")
	require.NoError(t, err)
	assert.Empty(t, res.Tasks)
	assert.Contains(t, res.Summary, "精算は不要です")
}

func TestSetRate_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.SetRate(ctx, g.ID, "USD", 0)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = svc.SetRate(ctx, g.ID, "USD", -1)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = svc.SetRate(ctx, g.ID, "US", 1)
	require.Error(t, err)
}

func TestRemoveExpense(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	rec, err := svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "A", Amount: 100, ParticipantIDs: []string{"B"}})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveExpense(ctx, g.ID, rec.Expense.ID))
	assert.ErrorIs(t, svc.RemoveExpense(ctx, g.ID, rec.Expense.ID), ErrExpenseNotFound)

	expenses, err := svc.Expenses(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestCompleteTaskAndRecordPayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "A", Amount: 900, ParticipantIDs: []string{"A", "B", "C"}})
	require.NoError(t, err)
	_, err = svc.Settle(ctx, g.ID, "test")
	require.NoError(t, err)

	remaining, err := svc.RecordPayment(ctx, g.ID, "B", "A", 120)
	require.NoError(t, err)
	assert.Equal(t, 180.0, remaining)

	remaining, err = svc.RecordPayment(ctx, g.ID, "B", "A", 180)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	_, err = svc.RecordPayment(ctx, g.ID, "B", "A", -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// the other direction also matches
	task, err := svc.CompleteTask(ctx, g.ID, "A", "C")
	require.NoError(t, err)
	assert.Equal(t, "C", task.PayerID)
	assert.True(t, task.Completed)

	_, err = svc.CompleteTask(ctx, g.ID, "A", "C")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	pending, err := svc.Tasks(ctx, g.ID, true)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecordPayment_RejectsOverpayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	_, err := svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "A", Amount: 200, ParticipantIDs: []string{"A", "B"}})
	require.NoError(t, err)
	_, err = svc.Settle(ctx, g.ID, "test")
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, g.ID, "B", "A", 100000)
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Contains(t, err.Error(), "100.00")

	pending, err := svc.Tasks(ctx, g.ID, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 100.0, pending[0].Amount)

	// rounding noise within a cent is still a full payment
	remaining, err := svc.RecordPayment(ctx, g.ID, "B", "A", 100.005)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	_, err = svc.RecordPayment(ctx, g.ID, "B", "A", 1)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")

	txt, err := svc.Status(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "参加者がいません", txt)

	_, err = svc.SetRate(ctx, g.ID, "USD", 150)
	require.NoError(t, err)
	_, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "A", PayerName: "Aki", Amount: 100, Currency: "USD", ParticipantIDs: []string{"A", "B"}})
	require.NoError(t, err)

	txt, err = svc.Status(ctx, g.ID)
	require.NoError(t, err)
	for _, want := range []string{
		"**旅行** (基準通貨: JPY)",
		"総支出: ¥15,000",
		"1人あたり: ¥7,500",
		"Aki 支払 ¥15,000 / 残高 +¥7,500",
		"B 支払 ¥0 / 残高 -¥7,500",
		"USD=150",
	} {
		assert.Contains(t, txt, want)
	}
}

func TestReminders(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	g := startGroup(t, svc, "JPY")
	now := time.Date(2024, 10, 19, 20, 0, 0, 0, time.UTC)

	msg, err := svc.ReminderMessage(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, msg)

	_, err = svc.AddExpense(ctx, g.ID, ExpenseInput{PayerID: "123456789012345678", Amount: 200, ParticipantIDs: []string{"123456789012345678", "876543210987654321"}})
	require.NoError(t, err)
	_, err = svc.Settle(ctx, g.ID, "test")
	require.NoError(t, err)

	require.NoError(t, svc.SetReminder(ctx, g.ID, true, 30*time.Second))

	due, err := svc.DueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due, "first reminder is one interval away")

	due, err = svc.DueReminders(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ReminderDue{GroupID: g.ID, ChannelID: "chan", Interval: time.Minute}, due[0])

	msg, err = svc.ReminderMessage(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "未完了の支払タスク (旅行):"))
	assert.Contains(t, msg, "<@876543210987654321> → <@123456789012345678>: ¥100")

	require.NoError(t, svc.MarkReminderSent(ctx, g.ID, now.Add(time.Minute), now.Add(2*time.Minute)))
	due, err = svc.DueReminders(ctx, now.Add(90*time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, svc.SetReminder(ctx, g.ID, false, 0))
	due, err = svc.DueReminders(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCompute_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Compute("test", []settlement.Person{{ID: "A"}}, []settlement.Expense{
		{ID: "bad", Amount: 10, Currency: "JPY", PayerID: "A"},
	}, nil, "JPY")

	var verr *settlement.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bad", verr.ExpenseID)
}
