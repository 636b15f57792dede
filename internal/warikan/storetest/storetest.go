// Package storetest holds the behaviour every warikan.Store must share, so
// the in-memory store and the Postgres store are held to the same contract.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

// Run exercises store. Every subtest works on groups with fresh IDs, so one
// store (or one database) can be shared across the whole run.
func Run(t *testing.T, newStore func(t *testing.T) warikan.Store) {
	t.Run("Groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("Members", func(t *testing.T) { testMembers(t, newStore(t)) })
	t.Run("Expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("Rates", func(t *testing.T) { testRates(t, newStore(t)) })
	t.Run("Tasks", func(t *testing.T) { testTasks(t, newStore(t)) })
	t.Run("RecordPayment", func(t *testing.T) { testRecordPayment(t, newStore(t)) })
	t.Run("Reminders", func(t *testing.T) { testReminders(t, newStore(t)) })
}

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newGroup(t *testing.T, s warikan.Store, guildID, channelID string, createdAt time.Time) warikan.Group {
	t.Helper()
	g := warikan.Group{
		ID:           uuid.NewString(),
		GuildID:      guildID,
		ChannelID:    channelID,
		OrganizerID:  "organizer",
		Name:         "旅行",
		BaseCurrency: "JPY",
		Status:       warikan.StatusActive,
		CreatedAt:    createdAt,
	}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	return g
}

func ids(groups []warikan.Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.ID
	}
	return out
}

func testGroups(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	guild := uuid.NewString()
	channel := uuid.NewString()

	first := newGroup(t, s, guild, channel, epoch)
	got, err := s.Group(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.GuildID, got.GuildID)
	assert.Equal(t, first.ChannelID, got.ChannelID)
	assert.Equal(t, first.OrganizerID, got.OrganizerID)
	assert.Equal(t, first.Name, got.Name)
	assert.Equal(t, "JPY", got.BaseCurrency)
	assert.True(t, got.Active())
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt), got.CreatedAt)

	active, err := s.ActiveGroupByChannel(ctx, channel)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	busy := first
	busy.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateGroup(ctx, busy), warikan.ErrChannelBusy)

	require.NoError(t, s.CloseGroup(ctx, first.ID))
	_, err = s.ActiveGroupByChannel(ctx, channel)
	assert.ErrorIs(t, err, warikan.ErrNoActiveGroup)
	closed, err := s.Group(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, warikan.StatusClosed, closed.Status)

	second := newGroup(t, s, guild, channel, epoch.Add(time.Minute))
	require.NoError(t, s.SetBaseCurrency(ctx, second.ID, "USD"))
	got, err = s.Group(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "USD", got.BaseCurrency)

	// groups without a channel never collide
	newGroup(t, s, uuid.NewString(), "", epoch)
	newGroup(t, s, uuid.NewString(), "", epoch)

	listed, err := s.ListGroups(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, ids(listed))

	listed, err = s.ListGroups(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, listed)

	missing := uuid.NewString()
	_, err = s.Group(ctx, missing)
	assert.ErrorIs(t, err, warikan.ErrGroupNotFound)
	assert.ErrorIs(t, s.CloseGroup(ctx, missing), warikan.ErrGroupNotFound)
	assert.ErrorIs(t, s.SetBaseCurrency(ctx, missing, "EUR"), warikan.ErrGroupNotFound)
}

func testMembers(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	g := newGroup(t, s, "guild", uuid.NewString(), epoch)

	added, err := s.AddMember(ctx, g.ID, settlement.Person{ID: "A", Name: "alice"})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddMember(ctx, g.ID, settlement.Person{ID: "B", Name: "bob"})
	require.NoError(t, err)
	assert.True(t, added)

	// a rejoin without a name keeps the old one and the join position
	added, err = s.AddMember(ctx, g.ID, settlement.Person{ID: "A"})
	require.NoError(t, err)
	assert.False(t, added)
	members, err := s.Members(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []settlement.Person{{ID: "A", Name: "alice"}, {ID: "B", Name: "bob"}}, members)

	added, err = s.AddMember(ctx, g.ID, settlement.Person{ID: "A", Name: "Alice"})
	require.NoError(t, err)
	assert.False(t, added)
	members, err = s.Members(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []settlement.Person{{ID: "A", Name: "Alice"}, {ID: "B", Name: "bob"}}, members)

	_, err = s.AddMember(ctx, uuid.NewString(), settlement.Person{ID: "A"})
	assert.ErrorIs(t, err, warikan.ErrGroupNotFound)
}

func testExpenses(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	g := newGroup(t, s, "guild", uuid.NewString(), epoch)

	empty, err := s.Expenses(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	dinner := settlement.Expense{
		ID: uuid.NewString(), PayerID: "A", Amount: 9000, Currency: "JPY",
		ParticipantIDs: []string{"C", "A", "B"}, Description: "夕食",
	}
	taxi := settlement.Expense{ID: uuid.NewString(), PayerID: "B", Amount: 12.5, Currency: "USD"}
	museum := settlement.Expense{
		ID: uuid.NewString(), PayerID: "C", Amount: 3000, Currency: "JPY",
		ParticipantIDs: []string{"B"},
	}
	for _, e := range []settlement.Expense{dinner, taxi, museum} {
		require.NoError(t, s.AddExpense(ctx, g.ID, e))
	}

	got, err := s.Expenses(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, dinner, got[0])
	assert.Equal(t, taxi.ID, got[1].ID)
	assert.Empty(t, got[1].ParticipantIDs)
	assert.Equal(t, 12.5, got[1].Amount)
	assert.Equal(t, "USD", got[1].Currency)
	assert.Equal(t, museum, got[2])

	require.NoError(t, s.DeleteExpense(ctx, g.ID, taxi.ID))
	assert.ErrorIs(t, s.DeleteExpense(ctx, g.ID, taxi.ID), warikan.ErrExpenseNotFound)

	got, err = s.Expenses(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, dinner.ID, got[0].ID)
	assert.Equal(t, museum.ID, got[1].ID)

	other := newGroup(t, s, "guild", uuid.NewString(), epoch)
	assert.ErrorIs(t, s.DeleteExpense(ctx, other.ID, dinner.ID), warikan.ErrExpenseNotFound)

	lost := settlement.Expense{ID: uuid.NewString(), PayerID: "A", Amount: 1, Currency: "JPY"}
	assert.ErrorIs(t, s.AddExpense(ctx, uuid.NewString(), lost), warikan.ErrGroupNotFound)
}

func testRates(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	g := newGroup(t, s, "guild", uuid.NewString(), epoch)

	rates, err := s.Rates(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, rates)

	require.NoError(t, s.SetRate(ctx, g.ID, "USD", 150))
	require.NoError(t, s.SetRate(ctx, g.ID, "EUR", 160))
	require.NoError(t, s.SetRate(ctx, g.ID, "USD", 151.5))

	rates, err = s.Rates(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.Rates{"USD": 151.5, "EUR": 160}, rates)
}

type pair struct{ payer, payee string }

func pairs(tasks []warikan.Task) []pair {
	out := make([]pair, len(tasks))
	for i, t := range tasks {
		out[i] = pair{t.PayerID, t.PayeeID}
	}
	return out
}

func testTasks(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	g := newGroup(t, s, "guild", uuid.NewString(), epoch)

	require.NoError(t, s.ReplaceTasks(ctx, g.ID, []warikan.Task{
		{PayerID: "X", PayeeID: "Y", Amount: 1},
	}))
	require.NoError(t, s.ReplaceTasks(ctx, g.ID, []warikan.Task{
		{PayerID: "B", PayeeID: "A", Amount: 100},
		{PayerID: "C", PayeeID: "A", Amount: 50},
		{PayerID: "C", PayeeID: "B", Amount: 0},
		{PayerID: "", PayeeID: "B", Amount: 10},
		{PayerID: "B", PayeeID: "C", Amount: 30},
	}))

	all, err := s.Tasks(ctx, g.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []pair{{"B", "A"}, {"C", "A"}, {"B", "C"}}, pairs(all))
	for _, task := range all {
		assert.Equal(t, g.ID, task.GroupID)
		assert.False(t, task.Completed)
	}

	// either direction matches
	done, err := s.CompleteTask(ctx, g.ID, "A", "C")
	require.NoError(t, err)
	assert.Equal(t, "C", done.PayerID)
	assert.Equal(t, "A", done.PayeeID)
	assert.Equal(t, 50.0, done.Amount)
	assert.True(t, done.Completed)

	_, err = s.CompleteTask(ctx, g.ID, "C", "A")
	assert.ErrorIs(t, err, warikan.ErrTaskNotFound)

	pending, err := s.Tasks(ctx, g.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []pair{{"B", "A"}, {"B", "C"}}, pairs(pending))

	all, err = s.Tasks(ctx, g.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testRecordPayment(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	g := newGroup(t, s, "guild", uuid.NewString(), epoch)

	require.NoError(t, s.ReplaceTasks(ctx, g.ID, []warikan.Task{
		{PayerID: "B", PayeeID: "A", Amount: 100},
		{PayerID: "B", PayeeID: "A", Amount: 50},
		{PayerID: "C", PayeeID: "A", Amount: 10},
	}))

	remaining, err := s.RecordPayment(ctx, g.ID, "B", "A", 120)
	require.NoError(t, err)
	assert.InDelta(t, 30, remaining, 1e-9)

	pending, err := s.Tasks(ctx, g.ID, true)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, pair{"B", "A"}, pair{pending[0].PayerID, pending[0].PayeeID})
	assert.InDelta(t, 30, pending[0].Amount, 1e-9)
	assert.Equal(t, pair{"C", "A"}, pair{pending[1].PayerID, pending[1].PayeeID})

	// within half a cent of the rest closes it
	remaining, err = s.RecordPayment(ctx, g.ID, "B", "A", 29.996)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	_, err = s.RecordPayment(ctx, g.ID, "B", "A", 1)
	assert.ErrorIs(t, err, warikan.ErrTaskNotFound)
	_, err = s.RecordPayment(ctx, g.ID, "A", "C", 1)
	assert.ErrorIs(t, err, warikan.ErrTaskNotFound)

	pending, err = s.Tasks(ctx, g.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []pair{{"C", "A"}}, pairs(pending))
}

func dueFor(t *testing.T, s warikan.Store, groupID string, now time.Time) *warikan.ReminderDue {
	t.Helper()
	due, err := s.DueReminders(context.Background(), now)
	require.NoError(t, err)
	for i := range due {
		if due[i].GroupID == groupID {
			return &due[i]
		}
	}
	return nil
}

func testReminders(t *testing.T, s warikan.Store) {
	ctx := context.Background()
	g := newGroup(t, s, "guild", uuid.NewString(), epoch)
	idle := newGroup(t, s, "guild", uuid.NewString(), epoch)

	require.NoError(t, s.ReplaceTasks(ctx, g.ID, []warikan.Task{{PayerID: "B", PayeeID: "A", Amount: 100}}))
	for _, id := range []string{g.ID, idle.ID} {
		require.NoError(t, s.UpsertReminder(ctx, warikan.Reminder{GroupID: id, Enabled: true, Interval: 2 * time.Hour}))
	}

	due := dueFor(t, s, g.ID, epoch)
	require.NotNil(t, due)
	assert.Equal(t, g.ChannelID, due.ChannelID)
	assert.Equal(t, 2*time.Hour, due.Interval)
	assert.Nil(t, dueFor(t, s, idle.ID, epoch), "nothing pending")

	require.NoError(t, s.DelayReminder(ctx, g.ID, epoch.Add(time.Hour)))
	assert.Nil(t, dueFor(t, s, g.ID, epoch))
	assert.NotNil(t, dueFor(t, s, g.ID, epoch.Add(time.Hour)))

	require.NoError(t, s.MarkReminderSent(ctx, g.ID, epoch.Add(time.Hour), epoch.Add(3*time.Hour)))
	assert.Nil(t, dueFor(t, s, g.ID, epoch.Add(2*time.Hour)))

	// a nil NextDueAt keeps the schedule
	require.NoError(t, s.UpsertReminder(ctx, warikan.Reminder{GroupID: g.ID, Enabled: true, Interval: time.Hour}))
	assert.Nil(t, dueFor(t, s, g.ID, epoch.Add(2*time.Hour)))
	due = dueFor(t, s, g.ID, epoch.Add(3*time.Hour))
	require.NotNil(t, due)
	assert.Equal(t, time.Hour, due.Interval)

	require.NoError(t, s.UpsertReminder(ctx, warikan.Reminder{GroupID: g.ID, Enabled: false, Interval: time.Hour}))
	assert.Nil(t, dueFor(t, s, g.ID, epoch.Add(24*time.Hour)))
}
