package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/warikanbot/internal/commands"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/warikan"
)

type Bot struct {
	session  *discordgo.Session
	handler  *commands.Handler
	reminder *reminderWorker
	logger   *zap.Logger
}

type Options struct {
	Token        string
	WebBaseURL   string
	ReminderTick time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Recorder
}

func New(svc *warikan.Service, opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bot := &Bot{
		session:  session,
		handler:  commands.NewHandler(svc, opts.WebBaseURL, logger),
		reminder: newReminderWorker(session, svc, opts.Metrics, logger, opts.ReminderTick),
		logger:   logger,
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds

	return bot, nil
}

// Run opens the gateway connection and keeps the reminder worker going
// until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.logger.Info("Discord bot is running")

	b.reminder.Run(ctx)

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	b.logger.Info("Discord bot stopped")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("connected to discord", zap.String("user", event.User.Username))

	for _, guild := range event.Guilds {
		b.registerGuildCommands(s, guild.ID)
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	b.logger.Debug("guild available", zap.String("guild_id", event.ID), zap.String("name", event.Name))
	b.registerGuildCommands(s, event.ID)
}

func (b *Bot) registerGuildCommands(s *discordgo.Session, guildID string) {
	// Overwrites whatever was registered before.
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, commands.GetCommands()); err != nil {
		b.logger.Warn("failed to register commands", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	b.logger.Debug("registered application commands", zap.String("guild_id", guildID))
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.ApplicationCommandData().Name == commands.CommandName {
		b.handler.Handle(s, i)
	}
}
