package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/warikanbot/internal/warikan"
)

const (
	alice = "100000000000000001"
	bob   = "100000000000000002"
	carol = "100000000000000003"
)

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func num(name string, v float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionNumber, Value: v}
}

func user(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func boolean(name string, v bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionBoolean, Value: v}
}

type session struct {
	t       *testing.T
	h       *Handler
	svc     *warikan.Service
	channel string
}

func newSession(t *testing.T) *session {
	svc := warikan.NewService(warikan.NewMemoryStore())
	return &session{t: t, h: NewHandler(svc, "https://warikan.example.com/", nil), svc: svc, channel: "c1"}
}

func (s *session) run(userID, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) string {
	s.t.Helper()
	return s.h.Execute(context.Background(), Invocation{
		GuildID:   "g1",
		ChannelID: s.channel,
		UserID:    userID,
		UserName:  "user-" + userID[len(userID)-1:],
		Sub:       sub,
		Options:   opts,
	})
}

func TestGetCommands(t *testing.T) {
	cmds := GetCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandName, cmds[0].Name)

	var subs []string
	for _, o := range cmds[0].Options {
		assert.Equal(t, discordgo.ApplicationCommandOptionSubCommand, o.Type)
		subs = append(subs, o.Name)
	}
	for _, want := range []string{"start", "stop", "join", "member", "pay", "rate", "base", "undo", "status", "memberlist", "settle", "done", "paid", "remind", "web"} {
		assert.Contains(t, subs, want)
	}
}

func TestCommandsWithoutSession(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, warikan.ErrNoActiveGroup.Error(), s.run(alice, "pay", num("amount", 100)))
	assert.Equal(t, "ユーザーを特定できませんでした", s.h.Execute(context.Background(), Invocation{Sub: "join"}))
	assert.Equal(t, "未知のサブコマンドです", s.run(alice, "dance"))
}

func TestSettleFlow(t *testing.T) {
	s := newSession(t)

	assert.Contains(t, s.run(alice, "start", str("name", "京都旅行")), "京都旅行")
	assert.Equal(t, "既に開始されています", s.run(bob, "start"))
	assert.Equal(t, "参加者として登録しました", s.run(bob, "join"))
	assert.Equal(t, "既に参加しています", s.run(bob, "join"))
	assert.Contains(t, s.run(alice, "member", user("user", carol)), "<@"+carol+">")

	assert.Contains(t, s.run(alice, "rate", str("currency", "usd"), num("value", 150)), "USD")
	msg := s.run(alice, "pay", num("amount", 3000), str("memo", "宿"))
	assert.Contains(t, msg, "¥3,000")
	assert.Contains(t, msg, "3名")
	assert.Contains(t, s.run(bob, "pay", num("amount", 20), str("currency", "USD")), "$20.00")

	status := s.run(alice, "status")
	assert.Contains(t, status, "総支出: ¥6,000")
	assert.Contains(t, status, "USD=150")

	summary := s.run(alice, "settle")
	assert.Contains(t, summary, "<@"+carol+"> → <@"+alice+">: ¥1,000")
	assert.Contains(t, summary, "<@"+carol+"> → <@"+bob+">: ¥1,000")

	assert.Equal(t, warikan.ErrInvalidAmount.Error()+": 残額 1000.00 を超えています", s.run(carol, "paid", user("user", alice), num("amount", 5000)))
	assert.Contains(t, s.run(carol, "paid", user("user", alice), num("amount", 400)), "残り ¥600")
	assert.Contains(t, s.run(carol, "done", user("user", alice)), "完了")
	assert.Equal(t, warikan.ErrTaskNotFound.Error(), s.run(carol, "done", user("user", alice)))
	assert.Equal(t, "<@"+bob+"> への支払が完了しました", s.run(carol, "paid", user("user", bob), num("amount", 1000)))

	assert.Equal(t, "セッションを終了しました", s.run(alice, "stop"))
	assert.Equal(t, warikan.ErrNoActiveGroup.Error(), s.run(alice, "status"))
}

func TestPayWithMentions(t *testing.T) {
	s := newSession(t)
	s.run(alice, "start", str("base", "eur"))

	msg := s.run(alice, "pay", num("amount", 30), str("users", "<@"+bob+"> <@!"+carol+">"))
	assert.Contains(t, msg, "€30.00")
	assert.Contains(t, msg, "2名")
	assert.Contains(t, msg, "参加登録: <@"+bob+">, <@"+carol+">")

	assert.Equal(t, "ユーザーのメンション/IDを認識できませんでした", s.run(alice, "pay", num("amount", 30), str("users", "everyone")))
	assert.Equal(t, warikan.ErrInvalidAmount.Error()+": -5", s.run(alice, "pay", num("amount", -5)))
}

func TestUndoAndBase(t *testing.T) {
	s := newSession(t)
	s.run(alice, "start")
	s.run(bob, "join")

	assert.Equal(t, "取り消せる支払がありません", s.run(alice, "undo"))
	s.run(alice, "pay", num("amount", 1000))
	s.run(alice, "pay", num("amount", 2500))
	assert.Equal(t, "¥2,500 の支払を取り消しました", s.run(alice, "undo"))
	assert.Equal(t, "取り消せる支払がありません", s.run(bob, "undo"))
	assert.Equal(t, warikan.ErrExpenseNotFound.Error(), s.run(bob, "undo", str("expense", "nope")))

	g, err := s.svc.ActiveGroup(context.Background(), s.channel)
	require.NoError(t, err)
	expenses, err := s.svc.Expenses(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "¥1,000 の支払を取り消しました", s.run(bob, "undo", str("expense", expenses[0].ID)))

	assert.Equal(t, "基準通貨を USD に変更しました", s.run(alice, "base", str("currency", "usd")))
	assert.Equal(t, "通貨コードは3文字のアルファベットで指定してください", s.run(alice, "base", str("currency", "dollar")))
	assert.Equal(t, warikan.ErrInvalidRate.Error(), s.run(alice, "rate", str("currency", "JPY"), num("value", 0)))
}

func TestSettleNeedsTwoMembers(t *testing.T) {
	s := newSession(t)
	s.run(alice, "start")
	assert.Equal(t, warikan.ErrNotEnoughMembers.Error(), s.run(alice, "settle"))
}

func TestMemberListAndWeb(t *testing.T) {
	s := newSession(t)
	s.run(alice, "start")
	s.run(bob, "join")

	list := s.run(alice, "memberlist")
	assert.True(t, strings.HasPrefix(list, "参加者 (2名):"))
	assert.Contains(t, list, "・<@"+alice+">")

	g, err := s.svc.ActiveGroup(context.Background(), s.channel)
	require.NoError(t, err)
	assert.Equal(t, "WebUI URL: https://warikan.example.com/groups/"+g.ID, s.run(alice, "web"))
}

func TestRemind(t *testing.T) {
	s := newSession(t)
	s.run(alice, "start")
	assert.Equal(t, "enabled の指定が必要です", s.run(alice, "remind"))
	assert.Equal(t, "未払いのリマインドを設定しました", s.run(alice, "remind", boolean("enabled", true)))
	assert.Equal(t, "リマインドを停止しました", s.run(alice, "remind", boolean("enabled", false)))
}

func TestParseMentionIDs(t *testing.T) {
	got := parseMentionIDs("<@123> <@!456> 789 abc <@123>")
	assert.Equal(t, []string{"123", "456", "789"}, got)
	assert.Empty(t, parseMentionIDs("nobody"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{""}, splitMessage("", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"aaaa\n", "bbbb\n", "cc"}, splitMessage("aaaa\nbbbb\ncc", 6))
	assert.Equal(t, []string{"あいう", "えお"}, splitMessage("あいうえお", 3))

	long := strings.Repeat("行\n", 1500)
	for _, part := range splitMessage(long, messageLimit) {
		assert.LessOrEqual(t, len([]rune(part)), messageLimit)
	}
}
