package warikan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/susu3304/warikanbot/internal/settlement"
)

type memGroup struct {
	group    Group
	seq      int
	members  []settlement.Person
	expenses []settlement.Expense
	rates    settlement.Rates
	tasks    []Task
	reminder *Reminder
}

// MemoryStore keeps every group in process memory. It is the default store
// when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	groups   map[string]*memGroup
	seq      int
	nextTask int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]*memGroup)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) get(id string) (*memGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

func (m *MemoryStore) CreateGroup(_ context.Context, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ChannelID != "" && g.Status == StatusActive {
		for _, other := range m.groups {
			if other.group.ChannelID == g.ChannelID && other.group.Status == StatusActive {
				return ErrChannelBusy
			}
		}
	}
	m.seq++
	m.groups[g.ID] = &memGroup{group: g, seq: m.seq, rates: settlement.Rates{}}
	return nil
}

func (m *MemoryStore) Group(_ context.Context, id string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(id)
	if err != nil {
		return nil, err
	}
	out := g.group
	return &out, nil
}

func (m *MemoryStore) ActiveGroupByChannel(_ context.Context, channelID string) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.group.ChannelID == channelID && g.group.Status == StatusActive {
			out := g.group
			return &out, nil
		}
	}
	return nil, ErrNoActiveGroup
}

func (m *MemoryStore) ListGroups(_ context.Context, guildID string) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*memGroup
	for _, g := range m.groups {
		if g.group.GuildID == guildID {
			found = append(found, g)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq > found[j].seq })
	out := make([]Group, len(found))
	for i, g := range found {
		out[i] = g.group
	}
	return out, nil
}

func (m *MemoryStore) CloseGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(id)
	if err != nil {
		return err
	}
	g.group.Status = StatusClosed
	return nil
}

func (m *MemoryStore) SetBaseCurrency(_ context.Context, groupID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return err
	}
	g.group.BaseCurrency = code
	return nil
}

func (m *MemoryStore) AddMember(_ context.Context, groupID string, p settlement.Person) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return false, err
	}
	for i := range g.members {
		if g.members[i].ID == p.ID {
			if p.Name != "" {
				g.members[i].Name = p.Name
			}
			return false, nil
		}
	}
	g.members = append(g.members, p)
	return true, nil
}

func (m *MemoryStore) Members(_ context.Context, groupID string) ([]settlement.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]settlement.Person, len(g.members))
	copy(out, g.members)
	return out, nil
}

func (m *MemoryStore) AddExpense(_ context.Context, groupID string, e settlement.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return err
	}
	e.ParticipantIDs = append([]string(nil), e.ParticipantIDs...)
	g.expenses = append(g.expenses, e)
	return nil
}

func (m *MemoryStore) DeleteExpense(_ context.Context, groupID, expenseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return err
	}
	for i, e := range g.expenses {
		if e.ID == expenseID {
			g.expenses = append(g.expenses[:i], g.expenses[i+1:]...)
			return nil
		}
	}
	return ErrExpenseNotFound
}

func (m *MemoryStore) Expenses(_ context.Context, groupID string) ([]settlement.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]settlement.Expense, len(g.expenses))
	for i, e := range g.expenses {
		e.ParticipantIDs = append([]string(nil), e.ParticipantIDs...)
		out[i] = e
	}
	return out, nil
}

func (m *MemoryStore) SetRate(_ context.Context, groupID, code string, rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return err
	}
	g.rates[code] = rate
	return nil
}

func (m *MemoryStore) Rates(_ context.Context, groupID string) (settlement.Rates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return nil, err
	}
	out := make(settlement.Rates, len(g.rates))
	for k, v := range g.rates {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) ReplaceTasks(_ context.Context, groupID string, tasks []Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return err
	}
	g.tasks = g.tasks[:0]
	for _, t := range tasks {
		if t.Amount <= 0 || t.PayerID == "" || t.PayeeID == "" {
			continue
		}
		m.nextTask++
		t.ID = m.nextTask
		t.GroupID = groupID
		t.Completed = false
		g.tasks = append(g.tasks, t)
	}
	return nil
}

func (m *MemoryStore) Tasks(_ context.Context, groupID string, pendingOnly bool) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range g.tasks {
		if pendingOnly && t.Completed {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) CompleteTask(_ context.Context, groupID, a, b string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return nil, err
	}
	for i := range g.tasks {
		t := &g.tasks[i]
		if t.Completed {
			continue
		}
		if (t.PayerID == a && t.PayeeID == b) || (t.PayerID == b && t.PayeeID == a) {
			t.Completed = true
			out := *t
			return &out, nil
		}
	}
	return nil, ErrTaskNotFound
}

func (m *MemoryStore) RecordPayment(_ context.Context, groupID, payerID, payeeID string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return 0, err
	}
	left := amount
	var remaining float64
	matched := false
	for i := range g.tasks {
		t := &g.tasks[i]
		if t.Completed || t.PayerID != payerID || t.PayeeID != payeeID {
			continue
		}
		matched = true
		if left > 0 {
			if left+settlement.SettlementEpsilon/2 >= t.Amount {
				left -= t.Amount
				t.Completed = true
				continue
			}
			t.Amount = settlement.Round2(t.Amount - left)
			left = 0
		}
		remaining += t.Amount
	}
	if !matched {
		return 0, ErrTaskNotFound
	}
	return settlement.Round2(remaining), nil
}

func (m *MemoryStore) UpsertReminder(_ context.Context, r Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(r.GroupID)
	if err != nil {
		return err
	}
	if r.NextDueAt == nil && g.reminder != nil {
		r.NextDueAt = g.reminder.NextDueAt
	}
	g.reminder = &r
	return nil
}

func (m *MemoryStore) DueReminders(_ context.Context, now time.Time) ([]ReminderDue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReminderDue
	for _, g := range m.groups {
		r := g.reminder
		if r == nil || !r.Enabled {
			continue
		}
		if r.NextDueAt != nil && r.NextDueAt.After(now) {
			continue
		}
		pending := false
		for _, t := range g.tasks {
			if !t.Completed {
				pending = true
				break
			}
		}
		if !pending {
			continue
		}
		out = append(out, ReminderDue{GroupID: g.group.ID, ChannelID: g.group.ChannelID, Interval: r.Interval})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (m *MemoryStore) MarkReminderSent(ctx context.Context, groupID string, _ time.Time, nextDue time.Time) error {
	return m.DelayReminder(ctx, groupID, nextDue)
}

func (m *MemoryStore) DelayReminder(_ context.Context, groupID string, nextDue time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.get(groupID)
	if err != nil {
		return err
	}
	if g.reminder == nil {
		return nil
	}
	next := nextDue
	g.reminder.NextDueAt = &next
	return nil
}
