// Package bot routes chat commands and guild events to the reconcilers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/whale-role-bot/internal/cooldown"
	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/logging"
	"github.com/whale-role-bot/internal/metrics"
	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/service"
	"github.com/whale-role-bot/internal/types"
)

// Chat commands, matched exactly and case-sensitively
const (
	CommandUpdateLeaderboard    = "!updateleaderboard"
	CommandWhaleAddresses       = "!whaleaddresses"
	CommandUpdateCommunityRoles = "!updatecommunityroles"
)

// MaxMessageLength is the longest message Discord accepts
const MaxMessageLength = 2000

// Replies
const (
	replyLeaderboardStart  = "Starting leaderboard update. This may take a moment..."
	replyLeaderboardDone   = "Leaderboard update completed successfully! Whale roles have been reassigned."
	replyLeaderboardFailed = "There was an issue updating the leaderboard. Please try again later or contact an administrator."
	replyCycleInProgress   = "A role update is already running. Please try again in a few minutes."
	replyCommunityStart    = "Starting community role updates. This may take a moment..."
	replyCommunityDoneFmt  = "Community role update completed! Assigned %d roles."
	replyCommunityFailed   = "There was an issue updating community roles. Please try again later or contact an administrator."
	replyCooldownFmt       = "This command is on cooldown. Please try again in %s."
	replyAdminOnly         = "This command is only available to administrators."
	replyNoWhales          = "There are no whale records yet."
	replyWhaleListFailed   = "Could not load whale records. Please try again later."
)

// Message is an inbound chat message stripped to what command routing needs
type Message struct {
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorIsBot bool
	IsAdmin     bool
	Content     string
}

// Responder sends replies to the channel a command came from
type Responder interface {
	Reply(ctx context.Context, msg Message, content string) error
}

// LeaderboardService is the part of the role reconciler the commands drive
type LeaderboardService interface {
	RefreshLeaderboard(ctx context.Context) (*service.RefreshResult, error)
	ListWhales(ctx context.Context) ([]*models.WhaleRecord, error)
}

// CommunityService is the part of the community reconciler the commands drive
type CommunityService interface {
	AssignCommunityRoles(ctx context.Context) (int, error)
}

// CommandHandler dispatches the three text commands
type CommandHandler struct {
	roles               LeaderboardService
	community           CommunityService
	leaderboardCooldown cooldown.Gate
	communityCooldown   cooldown.Gate
	responder           Responder
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	roles LeaderboardService,
	community CommunityService,
	leaderboardCooldown cooldown.Gate,
	communityCooldown cooldown.Gate,
	responder Responder,
) *CommandHandler {
	return &CommandHandler{
		roles:               roles,
		community:           community,
		leaderboardCooldown: leaderboardCooldown,
		communityCooldown:   communityCooldown,
		responder:           responder,
	}
}

// Handle runs the command in msg, if any, and reports whether it was one
func (h *CommandHandler) Handle(ctx context.Context, msg Message) bool {
	if msg.AuthorIsBot {
		return false
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"command":   msg.Content,
		"userId":    msg.AuthorID,
		"channelId": msg.ChannelID,
	})
	ctx = logging.WithLogger(ctx, logger)

	var err error
	switch msg.Content {
	case CommandUpdateLeaderboard:
		err = h.updateLeaderboard(ctx, msg)
	case CommandWhaleAddresses:
		err = h.whaleAddresses(ctx, msg)
	case CommandUpdateCommunityRoles:
		err = h.updateCommunityRoles(ctx, msg)
	default:
		return false
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		logger.WithError(err).Error("Command failed")
	}
	metrics.CommandsTotal.WithLabelValues(strings.TrimPrefix(msg.Content, "!"), outcome).Inc()

	return true
}

func (h *CommandHandler) updateLeaderboard(ctx context.Context, msg Message) error {
	if limited, err := h.checkCooldown(ctx, msg, h.leaderboardCooldown, types.CommandLeaderboard); limited || err != nil {
		return err
	}

	h.reply(ctx, msg, replyLeaderboardStart)

	result, err := h.roles.RefreshLeaderboard(ctx)
	switch {
	case errors.Is(err, apperrors.ErrCycleInProgress):
		h.reply(ctx, msg, replyCycleInProgress)
		return nil
	case err != nil:
		h.reply(ctx, msg, replyLeaderboardFailed)
		return err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"runId":   result.RunID,
		"fetched": result.Fetched,
		"granted": result.Granted,
		"revoked": result.Revoked,
	}).Info("Leaderboard refreshed by command")

	h.reply(ctx, msg, replyLeaderboardDone)
	return nil
}

func (h *CommandHandler) whaleAddresses(ctx context.Context, msg Message) error {
	if !msg.IsAdmin {
		h.reply(ctx, msg, replyAdminOnly)
		return nil
	}

	whales, err := h.roles.ListWhales(ctx)
	if err != nil {
		h.reply(ctx, msg, replyWhaleListFailed)
		return err
	}
	if len(whales) == 0 {
		h.reply(ctx, msg, replyNoWhales)
		return nil
	}

	lines := make([]string, 0, len(whales)+1)
	lines = append(lines, fmt.Sprintf("**Whales (%d)**", len(whales)))
	for _, w := range whales {
		lines = append(lines, formatWhale(w))
	}

	for _, chunk := range SplitMessage(lines, MaxMessageLength) {
		h.reply(ctx, msg, chunk)
	}
	return nil
}

func (h *CommandHandler) updateCommunityRoles(ctx context.Context, msg Message) error {
	if limited, err := h.checkCooldown(ctx, msg, h.communityCooldown, types.CommandCommunityRoles); limited || err != nil {
		return err
	}

	h.reply(ctx, msg, replyCommunityStart)

	granted, err := h.community.AssignCommunityRoles(ctx)
	switch {
	case errors.Is(err, apperrors.ErrCycleInProgress):
		h.reply(ctx, msg, replyCycleInProgress)
		return nil
	case err != nil:
		h.reply(ctx, msg, replyCommunityFailed)
		return err
	}

	h.reply(ctx, msg, fmt.Sprintf(replyCommunityDoneFmt, granted))
	return nil
}

// checkCooldown replies and reports true when the user must wait. Otherwise it
// starts a new window for the user.
func (h *CommandHandler) checkCooldown(ctx context.Context, msg Message, gate cooldown.Gate, command types.CommandType) (bool, error) {
	remaining, err := gate.Remaining(ctx, msg.AuthorID, command)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		h.reply(ctx, msg, fmt.Sprintf(replyCooldownFmt, cooldown.FormatRemaining(remaining)))
		return true, nil
	}

	if err := gate.Set(ctx, msg.AuthorID, command); err != nil {
		return false, err
	}
	return false, nil
}

func (h *CommandHandler) reply(ctx context.Context, msg Message, content string) {
	if err := h.responder.Reply(ctx, msg, content); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to send reply")
	}
}

func formatWhale(w *models.WhaleRecord) string {
	name := w.Nickname
	if name == "" {
		name = w.Username
	}
	return fmt.Sprintf("<@%s> %s `%s` %.2f", w.UserID, name, w.WalletAddress, w.Score)
}

// SplitMessage joins lines with newlines into chunks no longer than limit.
// A single line longer than limit is cut on a rune boundary.
func SplitMessage(lines []string, limit int) []string {
	var chunks []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
		}
	}

	for _, line := range lines {
		for len(line) > limit {
			flush()
			cut := runeCut(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}

		extra := len(line)
		if b.Len() > 0 {
			extra++
		}
		if b.Len()+extra > limit {
			flush()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	flush()

	return chunks
}

// runeCut returns the largest index not above limit that starts a rune.
// A first rune wider than limit is kept whole.
func runeCut(line string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(line)
	}
	return cut
}
