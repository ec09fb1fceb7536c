package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/whale-role-bot/internal/logging"
)

// Intents the bot needs: guild metadata, member updates and message content
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent

// MessageHandler handles one inbound chat message
type MessageHandler interface {
	Handle(ctx context.Context, msg Message) bool
}

// RoleChangeHandler reacts to a member's role list changing
type RoleChangeHandler interface {
	HandleRoleChange(ctx context.Context, userID string, oldRoles, newRoles []string) error
}

// NewSession creates a discordgo session with the bot's intents. The session
// is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = Intents
	session.State.TrackMembers = true
	session.StateEnabled = true

	return session, nil
}

// Bot connects discordgo events to the command handler and the role reconciler
type Bot struct {
	session  *discordgo.Session
	guildID  string
	commands MessageHandler
	roles    RoleChangeHandler
	onReady  func(ctx context.Context)
	isAdmin  func(s *discordgo.Session, userID, channelID string) bool

	ctx       context.Context
	readyOnce sync.Once
	removers  []func()
}

// NewBot creates a bot for one guild. onReady runs once, after the first
// Ready event; it may be nil.
func NewBot(
	session *discordgo.Session,
	guildID string,
	commands MessageHandler,
	roles RoleChangeHandler,
	onReady func(ctx context.Context),
) *Bot {
	return &Bot{
		session:  session,
		guildID:  guildID,
		commands: commands,
		roles:    roles,
		onReady:  onReady,
		isAdmin:  hasAdministrator,
		ctx:      context.Background(),
	}
}

// Open registers the event handlers and connects to the gateway. ctx is the
// parent context of every handled event.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx
	routeDiscordLogs()

	b.removers = append(b.removers,
		b.session.AddHandler(b.handleReady),
		b.session.AddHandler(b.handleMessageCreate),
		b.session.AddHandler(b.handleGuildMemberUpdate),
		b.session.AddHandler(b.handleDisconnect),
		b.session.AddHandler(b.handleResumed),
	)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (b *Bot) Close() error {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	return b.session.Close()
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	logging.FromContext(b.ctx).WithFields(map[string]interface{}{
		"user":   r.User.String(),
		"guilds": len(r.Guilds),
	}).Info("Logged in to Discord")

	b.readyOnce.Do(func() {
		if b.onReady != nil {
			b.onReady(b.ctx)
		}
	})
}

func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID != b.guildID {
		return
	}

	msg := Message{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorIsBot: m.Author.Bot,
		Content:     m.Content,
	}
	if msg.Content == CommandWhaleAddresses && !msg.AuthorIsBot {
		msg.IsAdmin = b.isAdmin(s, m.Author.ID, m.ChannelID)
	}

	b.commands.Handle(b.ctx, msg)
}

func (b *Bot) handleGuildMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.Member == nil || m.User == nil || m.GuildID != b.guildID {
		return
	}

	logger := logging.FromContext(b.ctx).WithField("userId", m.User.ID)
	if m.BeforeUpdate == nil {
		logger.Debug("Member update without cached previous state, skipping")
		return
	}

	if err := b.roles.HandleRoleChange(b.ctx, m.User.ID, m.BeforeUpdate.Roles, m.Roles); err != nil {
		logger.WithError(err).Error("Failed to handle role change")
	}
}

func (b *Bot) handleDisconnect(s *discordgo.Session, d *discordgo.Disconnect) {
	logging.FromContext(b.ctx).Warn("Disconnected from Discord gateway")
}

func (b *Bot) handleResumed(s *discordgo.Session, r *discordgo.Resumed) {
	logging.FromContext(b.ctx).Info("Discord gateway session resumed")
}

func hasAdministrator(s *discordgo.Session, userID, channelID string) bool {
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		logging.WithError(err).WithField("userId", userID).Warn("Failed to resolve member permissions")
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

var routeLogsOnce sync.Once

// routeDiscordLogs sends discordgo's internal log lines, including gateway
// errors, through the application logger.
func routeDiscordLogs() {
	routeLogsOnce.Do(func() {
		discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
			logger := logging.WithField("component", "discordgo")
			message := fmt.Sprintf(format, a...)
			switch msgL {
			case discordgo.LogError:
				logger.Error(message)
			case discordgo.LogWarning:
				logger.Warn(message)
			case discordgo.LogInformational:
				logger.Info(message)
			default:
				logger.Debug(message)
			}
		}
	})
}

// DiscordResponder replies in the channel of the original message
type DiscordResponder struct {
	session *discordgo.Session
}

// NewDiscordResponder creates a responder backed by session
func NewDiscordResponder(session *discordgo.Session) *DiscordResponder {
	return &DiscordResponder{session: session}
}

// Reply sends content as a reply to msg
func (r *DiscordResponder) Reply(ctx context.Context, msg Message, content string) error {
	ref := &discordgo.MessageReference{MessageID: msg.MessageID, ChannelID: msg.ChannelID}
	if _, err := r.session.ChannelMessageSendReply(msg.ChannelID, content, ref, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
