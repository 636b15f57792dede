package warikan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/warikanbot/internal/currency"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/settlement"
)

const (
	minReminderInterval     = time.Minute
	defaultReminderInterval = 24 * time.Hour
)

type Service struct {
	store       Store
	logger      *zap.Logger
	metrics     *metrics.Recorder
	currencies  *currency.Catalog
	defaultBase string
	now         func() time.Time
	newID       func() string
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(r *metrics.Recorder) Option { return func(s *Service) { s.metrics = r } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// WithDefaultBaseCurrency sets the base currency of groups started without one.
func WithDefaultBaseCurrency(code string) Option {
	return func(s *Service) { s.defaultBase = code }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      zap.NewNop(),
		currencies:  currency.Default(),
		defaultBase: "JPY",
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Currencies() *currency.Catalog { return s.currencies }

// StartGroup opens a group. When the channel already has an active group that
// group is returned with started=false.
func (s *Service) StartGroup(ctx context.Context, in StartInput) (g *Group, started bool, err error) {
	if in.ChannelID != "" {
		active, err := s.store.ActiveGroupByChannel(ctx, in.ChannelID)
		if err == nil {
			return active, false, nil
		}
		if !errors.Is(err, ErrNoActiveGroup) {
			return nil, false, err
		}
	}

	base := s.defaultBase
	if strings.TrimSpace(in.BaseCurrency) != "" {
		if base, err = currency.Normalize(in.BaseCurrency); err != nil {
			return nil, false, err
		}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultGroupName
	}

	group := Group{
		ID:           s.newID(),
		GuildID:      in.GuildID,
		ChannelID:    in.ChannelID,
		OrganizerID:  in.OrganizerID,
		Name:         name,
		BaseCurrency: base,
		Status:       StatusActive,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, false, fmt.Errorf("create group: %w", err)
	}
	s.logger.Info("group started",
		zap.String("group_id", group.ID),
		zap.String("guild_id", group.GuildID),
		zap.String("channel_id", group.ChannelID),
		zap.String("base_currency", group.BaseCurrency),
	)
	return &group, true, nil
}

func (s *Service) StopGroup(ctx context.Context, groupID string) error {
	if err := s.store.CloseGroup(ctx, groupID); err != nil {
		return err
	}
	s.logger.Info("group closed", zap.String("group_id", groupID))
	return nil
}

func (s *Service) ActiveGroup(ctx context.Context, channelID string) (*Group, error) {
	return s.store.ActiveGroupByChannel(ctx, channelID)
}

func (s *Service) Group(ctx context.Context, groupID string) (*Group, error) {
	return s.store.Group(ctx, groupID)
}

func (s *Service) Groups(ctx context.Context, guildID string) ([]Group, error) {
	return s.store.ListGroups(ctx, guildID)
}

func (s *Service) activeGroup(ctx context.Context, groupID string) (*Group, error) {
	g, err := s.store.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.Active() {
		return nil, ErrGroupClosed
	}
	return g, nil
}

// Join adds p to the group. It reports whether p is a new member.
func (s *Service) Join(ctx context.Context, groupID string, p settlement.Person) (bool, error) {
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return false, err
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return false, ErrInvalidMember
	}
	return s.store.AddMember(ctx, groupID, p)
}

func (s *Service) Members(ctx context.Context, groupID string) ([]settlement.Person, error) {
	return s.store.Members(ctx, groupID)
}

// AddExpense records a payment. The payer and every participant become
// members if they are not already. Without participants the expense is
// shared by everyone who is a member at this point.
func (s *Service) AddExpense(ctx context.Context, groupID string, in ExpenseInput) (*ExpenseReceipt, error) {
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, in.Amount)
	}
	payer := strings.TrimSpace(in.PayerID)
	if payer == "" {
		return nil, fmt.Errorf("%w: payer is required", ErrInvalidExpense)
	}
	code := g.BaseCurrency
	if strings.TrimSpace(in.Currency) != "" {
		if code, err = currency.Normalize(in.Currency); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpense, err)
		}
	}

	var joined []string
	added, err := s.store.AddMember(ctx, groupID, settlement.Person{ID: payer, Name: in.PayerName})
	if err != nil {
		return nil, err
	}
	if added {
		joined = append(joined, payer)
	}

	participants := uniqueIDs(in.ParticipantIDs)
	if len(participants) == 0 {
		members, err := s.store.Members(ctx, groupID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			participants = append(participants, m.ID)
		}
	} else {
		for _, id := range participants {
			added, err := s.store.AddMember(ctx, groupID, settlement.Person{ID: id})
			if err != nil {
				return nil, err
			}
			if added {
				joined = append(joined, id)
			}
		}
	}

	e := settlement.Expense{
		ID:             s.newID(),
		Amount:         in.Amount,
		Currency:       code,
		PayerID:        payer,
		ParticipantIDs: participants,
		Description:    strings.TrimSpace(in.Description),
	}
	if err := s.store.AddExpense(ctx, groupID, e); err != nil {
		return nil, fmt.Errorf("add expense: %w", err)
	}
	s.logger.Debug("expense recorded",
		zap.String("group_id", groupID),
		zap.String("expense_id", e.ID),
		zap.String("payer_id", payer),
		zap.Float64("amount", e.Amount),
		zap.String("currency", e.Currency),
		zap.Int("participants", len(participants)),
	)
	return &ExpenseReceipt{Expense: e, Joined: joined}, nil
}

func (s *Service) RemoveExpense(ctx context.Context, groupID, expenseID string) error {
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return err
	}
	return s.store.DeleteExpense(ctx, groupID, expenseID)
}

func (s *Service) Expenses(ctx context.Context, groupID string) ([]settlement.Expense, error) {
	return s.store.Expenses(ctx, groupID)
}

// SetRate stores a manual exchange rate. Rates are relative multipliers: with
// USD=150 and JPY=1, 1 USD is worth 150 JPY.
func (s *Service) SetRate(ctx context.Context, groupID, code string, rate float64) (string, error) {
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return "", err
	}
	c, err := currency.Normalize(code)
	if err != nil {
		return "", err
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return "", ErrInvalidRate
	}
	if err := s.store.SetRate(ctx, groupID, c, rate); err != nil {
		return "", err
	}
	return c, nil
}

func (s *Service) Rates(ctx context.Context, groupID string) (settlement.Rates, error) {
	return s.store.Rates(ctx, groupID)
}

func (s *Service) SetBaseCurrency(ctx context.Context, groupID, code string) (string, error) {
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return "", err
	}
	c, err := currency.Normalize(code)
	if err != nil {
		return "", err
	}
	if err := s.store.SetBaseCurrency(ctx, groupID, c); err != nil {
		return "", err
	}
	return c, nil
}

func (s *Service) Snapshot(ctx context.Context, groupID string) (*Snapshot, error) {
	g, err := s.store.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.Expenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	rates, err := s.store.Rates(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Group: *g, Members: members, Expenses: expenses, Rates: rates}, nil
}

// Compute runs the settlement engine on explicit inputs and records the run.
func (s *Service) Compute(source string, people []settlement.Person, expenses []settlement.Expense, rates settlement.Rates, base string) (settlement.Result, error) {
	start := s.now()
	res, err := settlement.Calculate(people, expenses, rates, base)
	elapsed := s.now().Sub(start)

	var verr *settlement.ValidationError
	switch {
	case errors.As(err, &verr):
		s.metrics.ObserveSettlement(source, metrics.ResultInvalid, 0, elapsed)
		s.logger.Warn("settlement rejected",
			zap.String("source", source),
			zap.String("expense_id", verr.ExpenseID),
			zap.String("reason", verr.Reason),
		)
		return res, err
	case err != nil:
		s.metrics.ObserveSettlement(source, metrics.ResultError, 0, elapsed)
		return res, err
	}
	s.metrics.ObserveSettlement(source, metrics.ResultSuccess, len(res.Transfers), elapsed)
	s.logger.Debug("settlement computed",
		zap.String("source", source),
		zap.String("base_currency", base),
		zap.Int("people", len(people)),
		zap.Int("expenses", len(expenses)),
		zap.Int("transfers", len(res.Transfers)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// Preview computes the settlement of a group without touching its tasks.
func (s *Service) Preview(ctx context.Context, groupID, source string) (*SettleResult, error) {
	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	res, err := s.Compute(source, snap.Members, snap.Expenses, snap.Rates, snap.Group.BaseCurrency)
	if err != nil {
		return nil, err
	}
	out := &SettleResult{Group: snap.Group, Names: names(snap.Members), Result: res}
	out.Summary = s.settleSummary(out)
	return out, nil
}

// Settle computes the settlement and replaces the group's pending tasks with
// the resulting transfers.
func (s *Service) Settle(ctx context.Context, groupID, source string) (*SettleResult, error) {
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(snap.Members) < 2 {
		return nil, ErrNotEnoughMembers
	}
	res, err := s.Compute(source, snap.Members, snap.Expenses, snap.Rates, snap.Group.BaseCurrency)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(res.Transfers))
	for _, t := range res.Transfers {
		tasks = append(tasks, Task{GroupID: groupID, PayerID: t.From, PayeeID: t.To, Amount: t.Amount})
	}
	if err := s.store.ReplaceTasks(ctx, groupID, tasks); err != nil {
		return nil, fmt.Errorf("save settlement tasks: %w", err)
	}
	saved, err := s.store.Tasks(ctx, groupID, false)
	if err != nil {
		return nil, err
	}

	out := &SettleResult{Group: snap.Group, Names: names(snap.Members), Result: res, Tasks: saved}
	out.Summary = s.settleSummary(out)
	s.logger.Info("group settled",
		zap.String("group_id", groupID),
		zap.Int("tasks", len(saved)),
		zap.Float64("total", res.Total),
	)
	return out, nil
}

func (s *Service) Tasks(ctx context.Context, groupID string, pendingOnly bool) ([]Task, error) {
	return s.store.Tasks(ctx, groupID, pendingOnly)
}

// CompleteTask marks the first pending task between actor and other as paid.
func (s *Service) CompleteTask(ctx context.Context, groupID, actorID, otherID string) (*Task, error) {
	return s.store.CompleteTask(ctx, groupID, actorID, otherID)
}

// RecordPayment applies a payment from payer to payee against pending tasks
// and returns the amount still owed between them.
func (s *Service) RecordPayment(ctx context.Context, groupID, payerID, payeeID string, amount float64) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, ErrInvalidAmount
	}
	pending, err := s.store.Tasks(ctx, groupID, true)
	if err != nil {
		return 0, err
	}
	var owed float64
	matched := false
	for _, t := range pending {
		if t.PayerID == payerID && t.PayeeID == payeeID {
			owed += t.Amount
			matched = true
		}
	}
	if !matched {
		return 0, ErrTaskNotFound
	}
	owed = settlement.Round2(owed)
	if amount > owed+settlement.SettlementEpsilon {
		return 0, fmt.Errorf("%w: 残額 %.2f を超えています", ErrInvalidAmount, owed)
	}
	remaining, err := s.store.RecordPayment(ctx, groupID, payerID, payeeID, amount)
	if err != nil {
		return 0, err
	}
	s.logger.Info("settlement payment recorded",
		zap.String("group_id", groupID),
		zap.String("payer_id", payerID),
		zap.String("payee_id", payeeID),
		zap.Float64("amount", amount),
		zap.Float64("remaining", remaining),
	)
	return remaining, nil
}

// Status renders the totals of a group: overall spend, the per-person
// average and what each member paid and is owed.
func (s *Service) Status(ctx context.Context, groupID string) (string, error) {
	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return "", err
	}
	if len(snap.Members) == 0 {
		return "参加者がいません", nil
	}
	base := snap.Group.BaseCurrency
	balances := settlement.ComputeBalances(snap.Members, snap.Expenses, snap.Rates, base)
	total := settlement.Total(snap.Expenses, snap.Rates, base)

	paid := make(map[string]float64, len(snap.Members))
	for _, e := range snap.Expenses {
		paid[e.PayerID] += snap.Rates.ToBase(e.Amount, e.Currency, base)
	}

	nm := names(snap.Members)
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (基準通貨: %s)\n", snap.Group.Name, base)
	fmt.Fprintf(&b, "総支出: %s\n", s.currencies.Format(total, base))
	fmt.Fprintf(&b, "1人あたり: %s\n", s.currencies.Format(settlement.Round2(total/float64(len(snap.Members))), base))
	for _, bal := range balances {
		fmt.Fprintf(&b, "%s 支払 %s / 残高 %s\n",
			label(bal.PersonID, nm), s.currencies.Format(settlement.Round2(paid[bal.PersonID]), base), s.signed(bal.Amount, base))
	}
	if len(snap.Rates) > 0 {
		b.WriteString("レート: ")
		for i, code := range sortedCodes(snap.Rates) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%g", code, snap.Rates[code])
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// SetReminder turns periodic reminders for pending tasks on or off.
func (s *Service) SetReminder(ctx context.Context, groupID string, enabled bool, interval time.Duration) error {
	if _, err := s.store.Group(ctx, groupID); err != nil {
		return err
	}
	if interval <= 0 {
		interval = defaultReminderInterval
	}
	if interval < minReminderInterval {
		interval = minReminderInterval
	}
	r := Reminder{GroupID: groupID, Enabled: enabled, Interval: interval}
	if enabled {
		next := s.now().Add(interval)
		r.NextDueAt = &next
	}
	return s.store.UpsertReminder(ctx, r)
}

// ReminderMessage lists the pending tasks of a group, or returns "" when
// everything is paid.
func (s *Service) ReminderMessage(ctx context.Context, groupID string) (string, error) {
	g, err := s.store.Group(ctx, groupID)
	if err != nil {
		return "", err
	}
	tasks, err := s.store.Tasks(ctx, groupID, true)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "", nil
	}
	members, err := s.store.Members(ctx, groupID)
	if err != nil {
		return "", err
	}
	nm := names(members)
	var b strings.Builder
	fmt.Fprintf(&b, "未完了の支払タスク (%s):\n", g.Name)
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s → %s: %s\n", label(t.PayerID, nm), label(t.PayeeID, nm), s.currencies.Format(t.Amount, g.BaseCurrency))
	}
	return b.String(), nil
}

func (s *Service) DueReminders(ctx context.Context, now time.Time) ([]ReminderDue, error) {
	return s.store.DueReminders(ctx, now)
}

func (s *Service) MarkReminderSent(ctx context.Context, groupID string, sentAt, nextDue time.Time) error {
	return s.store.MarkReminderSent(ctx, groupID, sentAt, nextDue)
}

func (s *Service) DelayReminder(ctx context.Context, groupID string, nextDue time.Time) error {
	return s.store.DelayReminder(ctx, groupID, nextDue)
}

// FormatAmount renders amount in code using the currency catalog.
func (s *Service) FormatAmount(amount float64, code string) string {
	return s.currencies.Format(amount, code)
}

// Label renders a member for chat output: Discord IDs become mentions,
// anything else falls back to the member's name.
func (s *Service) Label(id string, names map[string]string) string {
	return label(id, names)
}

func (s *Service) settleSummary(r *SettleResult) string {
	var b strings.Builder
	base := r.Result.BaseCurrency
	fmt.Fprintf(&b, "総支出: %s\n", s.currencies.Format(r.Result.Total, base))
	if len(r.Result.Transfers) == 0 {
		b.WriteString("精算は不要です")
		return b.String()
	}
	b.WriteString("支払タスク:\n")
	for _, t := range r.Result.Transfers {
		fmt.Fprintf(&b, "%s → %s: %s\n", label(t.From, r.Names), label(t.To, r.Names), s.currencies.Format(t.Amount, base))
	}
	return b.String()
}

func (s *Service) signed(amount float64, code string) string {
	if amount > 0 {
		return "+" + s.currencies.Format(amount, code)
	}
	return s.currencies.Format(amount, code)
}
