package warikan

import (
	"errors"
	"time"

	"github.com/susu3304/warikanbot/internal/settlement"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"

	defaultGroupName = "割り勘"
)

var (
	ErrGroupNotFound    = errors.New("割り勘グループが見つかりません")
	ErrNoActiveGroup    = errors.New("セッションが開始されていません")
	ErrGroupClosed      = errors.New("このグループは終了しています")
	ErrChannelBusy      = errors.New("このチャンネルでは既にセッションが開始されています")
	ErrNotEnoughMembers = errors.New("参加者が2人以上必要です")
	ErrInvalidMember    = errors.New("参加者が指定されていません")
	ErrInvalidExpense   = errors.New("支払の内容が正しくありません")
	ErrInvalidRate      = errors.New("レートは正の数で指定してください")
	ErrInvalidAmount    = errors.New("金額は正の数で指定してください")
	ErrExpenseNotFound  = errors.New("支払が見つかりません")
	ErrTaskNotFound     = errors.New("対象のタスクが見つかりません")
)

// Group is one warikan session: a set of members sharing expenses, usually
// bound to a Discord channel.
type Group struct {
	ID           string    `json:"id"`
	GuildID      string    `json:"guild_id"`
	ChannelID    string    `json:"channel_id,omitempty"`
	OrganizerID  string    `json:"organizer_id,omitempty"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func (g *Group) Active() bool { return g.Status == StatusActive }

// Task is a persisted transfer from a settlement run.
type Task struct {
	ID        int64   `json:"id"`
	GroupID   string  `json:"group_id"`
	PayerID   string  `json:"payer_id"`
	PayeeID   string  `json:"payee_id"`
	Amount    float64 `json:"amount"`
	Completed bool    `json:"completed"`
}

// Snapshot is everything a settlement run needs for one group.
type Snapshot struct {
	Group    Group
	Members  []settlement.Person
	Expenses []settlement.Expense
	Rates    settlement.Rates
}

type Reminder struct {
	GroupID   string
	Enabled   bool
	Interval  time.Duration
	NextDueAt *time.Time
}

type ReminderDue struct {
	GroupID   string
	ChannelID string
	Interval  time.Duration
}

type SettleResult struct {
	Group   Group
	Names   map[string]string
	Result  settlement.Result
	Tasks   []Task
	Summary string
}

// ExpenseInput is a payment as reported by a user. Currency defaults to the
// group's base currency and an empty participant list means every member.
type ExpenseInput struct {
	PayerID        string
	PayerName      string
	Amount         float64
	Currency       string
	Description    string
	ParticipantIDs []string
}

type ExpenseReceipt struct {
	Expense settlement.Expense
	// Joined lists people who became members because of this expense.
	Joined []string
}

type StartInput struct {
	GuildID      string
	ChannelID    string
	OrganizerID  string
	Name         string
	BaseCurrency string
}
