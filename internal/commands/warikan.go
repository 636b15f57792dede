package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/warikanbot/internal/currency"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

const messageLimit = 2000

var mentionPattern = regexp.MustCompile(`<@!?([0-9]+)>`)

// Invocation is a /warikan subcommand with the interaction details the
// handler needs.
type Invocation struct {
	GuildID   string
	ChannelID string
	UserID    string
	UserName  string
	Sub       string
	Options   []*discordgo.ApplicationCommandInteractionDataOption
	Resolved  *discordgo.ApplicationCommandInteractionDataResolved
}

type Handler struct {
	svc        *warikan.Service
	webBaseURL string
	logger     *zap.Logger
}

func NewHandler(svc *warikan.Service, webBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, webBaseURL: strings.TrimRight(webBaseURL, "/"), logger: logger}
}

// Handle answers a /warikan interaction.
func (h *Handler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		h.respondText(s, i, "サブコマンドが指定されていません")
		return
	}
	sub := data.Options[0]
	inv := Invocation{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Sub:       sub.Name,
		Options:   sub.Options,
		Resolved:  data.Resolved,
	}
	if u := interactionUser(i); u != nil {
		inv.UserID = u.ID
		inv.UserName = displayName(u)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.respondText(s, i, h.Execute(ctx, inv))
}

// Execute runs one subcommand and returns the reply text.
func (h *Handler) Execute(ctx context.Context, inv Invocation) string {
	if inv.UserID == "" {
		return "ユーザーを特定できませんでした"
	}

	switch inv.Sub {
	case "start":
		return h.start(ctx, inv)
	case "join":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			added, err := h.svc.Join(ctx, g.ID, settlement.Person{ID: inv.UserID, Name: inv.UserName})
			if err != nil {
				return h.failure(err)
			}
			if !added {
				return "既に参加しています"
			}
			return "参加者として登録しました"
		})
	case "member":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			uid := getUserID(inv, "user")
			if uid == "" {
				return "ユーザーが指定されていません"
			}
			if _, err := h.svc.Join(ctx, g.ID, settlement.Person{ID: uid, Name: resolvedName(inv, uid)}); err != nil {
				return h.failure(err)
			}
			return fmt.Sprintf("<@%s> を参加者に追加しました", uid)
		})
	case "pay":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string { return h.pay(ctx, g, inv) })
	case "rate":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			code := getStringOption(inv.Options, "currency")
			val := getNumberOption(inv.Options, "value")
			if code == nil || val == nil {
				return "currency と value の指定が必要です"
			}
			norm, err := h.svc.SetRate(ctx, g.ID, *code, *val)
			if err != nil {
				return h.failure(err)
			}
			return fmt.Sprintf("%s のレートを %g に設定しました (基準通貨: %s)", norm, *val, g.BaseCurrency)
		})
	case "base":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			code := getStringOption(inv.Options, "currency")
			if code == nil {
				return "通貨コードの指定が必要です"
			}
			norm, err := h.svc.SetBaseCurrency(ctx, g.ID, *code)
			if err != nil {
				return h.failure(err)
			}
			return fmt.Sprintf("基準通貨を %s に変更しました", norm)
		})
	case "undo":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string { return h.undo(ctx, g, inv) })
	case "status":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			txt, err := h.svc.Status(ctx, g.ID)
			if err != nil {
				return h.failure(err)
			}
			return txt
		})
	case "memberlist":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			members, err := h.svc.Members(ctx, g.ID)
			if err != nil {
				return h.failure(err)
			}
			if len(members) == 0 {
				return "参加者がいません"
			}
			nm := make(map[string]string, len(members))
			for _, m := range members {
				nm[m.ID] = m.Name
			}
			var b strings.Builder
			fmt.Fprintf(&b, "参加者 (%d名):\n", len(members))
			for _, m := range members {
				fmt.Fprintf(&b, "・%s\n", h.svc.Label(m.ID, nm))
			}
			return b.String()
		})
	case "settle":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			res, err := h.svc.Settle(ctx, g.ID, metrics.SourceDiscord)
			if err != nil {
				return h.failure(err)
			}
			return res.Summary
		})
	case "done":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			uid := getUserID(inv, "user")
			if uid == "" {
				return "相手の指定が必要です"
			}
			task, err := h.svc.CompleteTask(ctx, g.ID, inv.UserID, uid)
			if err != nil {
				return h.failure(err)
			}
			return fmt.Sprintf("<@%s> → <@%s> の支払 (%s) を完了にしました",
				task.PayerID, task.PayeeID, h.svc.FormatAmount(task.Amount, g.BaseCurrency))
		})
	case "paid":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			uid := getUserID(inv, "user")
			amt := getNumberOption(inv.Options, "amount")
			if uid == "" || amt == nil {
				return "user と amount の指定が必要です"
			}
			remaining, err := h.svc.RecordPayment(ctx, g.ID, inv.UserID, uid, *amt)
			if err != nil {
				return h.failure(err)
			}
			if remaining < settlement.SettlementEpsilon {
				return fmt.Sprintf("<@%s> への支払が完了しました", uid)
			}
			return fmt.Sprintf("<@%s> への支払を記録しました (残り %s)", uid, h.svc.FormatAmount(remaining, g.BaseCurrency))
		})
	case "remind":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			enabled := getBoolOption(inv.Options, "enabled")
			if enabled == nil {
				return "enabled の指定が必要です"
			}
			var interval time.Duration
			if hours := getIntOption(inv.Options, "hours"); hours != nil {
				interval = time.Duration(*hours) * time.Hour
			}
			if err := h.svc.SetReminder(ctx, g.ID, *enabled, interval); err != nil {
				return h.failure(err)
			}
			if !*enabled {
				return "リマインドを停止しました"
			}
			return "未払いのリマインドを設定しました"
		})
	case "web":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			return fmt.Sprintf("WebUI URL: %s/groups/%s", h.webBaseURL, g.ID)
		})
	case "stop":
		return h.withGroup(ctx, inv, func(g *warikan.Group) string {
			if err := h.svc.StopGroup(ctx, g.ID); err != nil {
				return h.failure(err)
			}
			return "セッションを終了しました"
		})
	default:
		return "未知のサブコマンドです"
	}
}

func (h *Handler) start(ctx context.Context, inv Invocation) string {
	in := warikan.StartInput{GuildID: inv.GuildID, ChannelID: inv.ChannelID, OrganizerID: inv.UserID}
	if name := getStringOption(inv.Options, "name"); name != nil {
		in.Name = *name
	}
	if base := getStringOption(inv.Options, "base"); base != nil {
		in.BaseCurrency = *base
	}
	g, started, err := h.svc.StartGroup(ctx, in)
	if err != nil {
		return h.failure(err)
	}
	if !started {
		return "既に開始されています"
	}
	if _, err := h.svc.Join(ctx, g.ID, settlement.Person{ID: inv.UserID, Name: inv.UserName}); err != nil {
		return h.failure(err)
	}
	return fmt.Sprintf("このチャンネルで「%s」を開始しました (基準通貨: %s)", g.Name, g.BaseCurrency)
}

func (h *Handler) pay(ctx context.Context, g *warikan.Group, inv Invocation) string {
	amt := getNumberOption(inv.Options, "amount")
	if amt == nil {
		return "金額の指定が必要です"
	}
	in := warikan.ExpenseInput{PayerID: inv.UserID, PayerName: inv.UserName, Amount: *amt}
	if c := getStringOption(inv.Options, "currency"); c != nil {
		in.Currency = *c
	}
	if memo := getStringOption(inv.Options, "memo"); memo != nil {
		in.Description = *memo
	}
	if users := getStringOption(inv.Options, "users"); users != nil {
		in.ParticipantIDs = parseMentionIDs(*users)
		if len(in.ParticipantIDs) == 0 {
			return "ユーザーのメンション/IDを認識できませんでした"
		}
	}

	receipt, err := h.svc.AddExpense(ctx, g.ID, in)
	if err != nil {
		return h.failure(err)
	}
	e := receipt.Expense
	msg := fmt.Sprintf("%s を記録しました (%d名で割り勘)", h.svc.FormatAmount(e.Amount, e.Currency), len(e.ParticipantIDs))
	if len(receipt.Joined) > 0 {
		mentions := make([]string, 0, len(receipt.Joined))
		for _, id := range receipt.Joined {
			mentions = append(mentions, "<@"+id+">")
		}
		msg += "\n参加登録: " + strings.Join(mentions, ", ")
	}
	return msg
}

// undo removes the named expense, or the caller's latest one.
func (h *Handler) undo(ctx context.Context, g *warikan.Group, inv Invocation) string {
	expenses, err := h.svc.Expenses(ctx, g.ID)
	if err != nil {
		return h.failure(err)
	}
	target := getStringOption(inv.Options, "expense")
	for idx := len(expenses) - 1; idx >= 0; idx-- {
		e := expenses[idx]
		if target != nil && e.ID != strings.TrimSpace(*target) {
			continue
		}
		if target == nil && e.PayerID != inv.UserID {
			continue
		}
		if err := h.svc.RemoveExpense(ctx, g.ID, e.ID); err != nil {
			return h.failure(err)
		}
		return fmt.Sprintf("%s の支払を取り消しました", h.svc.FormatAmount(e.Amount, e.Currency))
	}
	if target != nil {
		return warikan.ErrExpenseNotFound.Error()
	}
	return "取り消せる支払がありません"
}

func (h *Handler) withGroup(ctx context.Context, inv Invocation, fn func(g *warikan.Group) string) string {
	g, err := h.svc.ActiveGroup(ctx, inv.ChannelID)
	if err != nil {
		return h.failure(err)
	}
	return fn(g)
}

// failure turns an error into a reply. Known errors carry a message meant
// for users; anything else is logged.
func (h *Handler) failure(err error) string {
	var verr *settlement.ValidationError
	switch {
	case errors.As(err, &verr):
		return "精算できません: " + verr.Error()
	case isUserError(err):
		return err.Error()
	default:
		h.logger.Error("warikan command failed", zap.Error(err))
		return "処理に失敗しました"
	}
}

func isUserError(err error) bool {
	for _, target := range []error{
		warikan.ErrGroupNotFound, warikan.ErrNoActiveGroup, warikan.ErrGroupClosed,
		warikan.ErrChannelBusy, warikan.ErrNotEnoughMembers, warikan.ErrInvalidMember,
		warikan.ErrInvalidExpense, warikan.ErrInvalidRate, warikan.ErrInvalidAmount,
		warikan.ErrExpenseNotFound, warikan.ErrTaskNotFound, currency.ErrInvalidCode,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	chunks := splitMessage(content, messageLimit)
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: chunks[0]},
	})
	if err != nil {
		h.logger.Warn("failed to respond to interaction", zap.Error(err))
		return
	}
	for _, c := range chunks[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: c}); err != nil {
			h.logger.Warn("failed to send followup", zap.Error(err))
			return
		}
	}
}

// splitMessage cuts content into pieces of at most limit characters,
// preferring line breaks. It always returns at least one piece.
func splitMessage(content string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(content, "\n") {
		runes := []rune(line)
		for len(runes) > 0 {
			if curLen+len(runes) <= limit {
				cur.WriteString(string(runes))
				curLen += len(runes)
				break
			}
			if curLen > 0 {
				flush()
				continue
			}
			cur.WriteString(string(runes[:limit]))
			runes = runes[limit:]
			flush()
		}
	}
	flush()
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(u *discordgo.User) string {
	return u.Username
}

func resolvedName(inv Invocation, id string) string {
	if inv.Resolved == nil {
		return ""
	}
	if u, ok := inv.Resolved.Users[id]; ok && u != nil {
		return displayName(u)
	}
	return ""
}

func getUserID(inv Invocation, name string) string {
	for _, o := range inv.Options {
		if o.Name != name {
			continue
		}
		if id, ok := o.Value.(string); ok && id != "" {
			return id
		}
	}
	return ""
}

func getNumberOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *float64 {
	for _, o := range opts {
		if o.Name == name {
			v := o.FloatValue()
			return &v
		}
	}
	return nil
}

func getIntOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *int64 {
	for _, o := range opts {
		if o.Name == name {
			v := o.IntValue()
			return &v
		}
	}
	return nil
}

func getBoolOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *bool {
	for _, o := range opts {
		if o.Name == name {
			v := o.BoolValue()
			return &v
		}
	}
	return nil
}

func getStringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *string {
	for _, o := range opts {
		if o.Name == name {
			v := o.StringValue()
			return &v
		}
	}
	return nil
}

// parseMentionIDs accepts <@123>, <@!123> and bare numeric IDs.
func parseMentionIDs(text string) []string {
	var ids []string
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	for _, tok := range strings.Fields(text) {
		if allDigits(tok) {
			ids = append(ids, tok)
		}
	}
	return unique(ids)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
