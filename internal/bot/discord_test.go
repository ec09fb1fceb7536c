package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	messages []Message
}

func (r *recordingHandler) Handle(ctx context.Context, msg Message) bool {
	r.messages = append(r.messages, msg)
	return true
}

type roleChange struct {
	userID   string
	oldRoles []string
	newRoles []string
}

type recordingRoles struct {
	changes []roleChange
	err     error
}

func (r *recordingRoles) HandleRoleChange(ctx context.Context, userID string, oldRoles, newRoles []string) error {
	r.changes = append(r.changes, roleChange{userID, oldRoles, newRoles})
	return r.err
}

func newTestBot() (*Bot, *recordingHandler, *recordingRoles) {
	commands := &recordingHandler{}
	roles := &recordingRoles{}
	b := NewBot(nil, "guild", commands, roles, nil)
	b.isAdmin = func(s *discordgo.Session, userID, channelID string) bool { return userID == "admin" }
	return b, commands, roles
}

func messageCreate(guildID, authorID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   guildID,
		Content:   content,
		Author:    &discordgo.User{ID: authorID},
	}}
}

func TestBot_HandleMessageCreate(t *testing.T) {
	b, commands, _ := newTestBot()

	b.handleMessageCreate(nil, messageCreate("guild", "user", CommandUpdateLeaderboard))
	b.handleMessageCreate(nil, messageCreate("other-guild", "user", CommandUpdateLeaderboard))
	b.handleMessageCreate(nil, messageCreate("guild", "admin", CommandWhaleAddresses))
	b.handleMessageCreate(nil, messageCreate("guild", "user", CommandWhaleAddresses))

	require.Len(t, commands.messages, 3)
	assert.Equal(t, Message{
		ChannelID: "c1",
		MessageID: "m1",
		AuthorID:  "user",
		Content:   CommandUpdateLeaderboard,
	}, commands.messages[0])
	assert.True(t, commands.messages[1].IsAdmin)
	assert.False(t, commands.messages[2].IsAdmin)
}

func TestBot_HandleMessageCreate_BotAuthor(t *testing.T) {
	b, commands, _ := newTestBot()

	m := messageCreate("guild", "admin", CommandWhaleAddresses)
	m.Author.Bot = true
	b.handleMessageCreate(nil, m)

	require.Len(t, commands.messages, 1)
	assert.True(t, commands.messages[0].AuthorIsBot)
	assert.False(t, commands.messages[0].IsAdmin)
}

func TestBot_HandleGuildMemberUpdate(t *testing.T) {
	b, _, roles := newTestBot()

	update := &discordgo.GuildMemberUpdate{
		Member: &discordgo.Member{
			GuildID: "guild",
			User:    &discordgo.User{ID: "u1"},
			Roles:   []string{"whale"},
		},
		BeforeUpdate: &discordgo.Member{Roles: []string{}},
	}
	b.handleGuildMemberUpdate(nil, update)

	require.Len(t, roles.changes, 1)
	assert.Equal(t, "u1", roles.changes[0].userID)
	assert.Empty(t, roles.changes[0].oldRoles)
	assert.Equal(t, []string{"whale"}, roles.changes[0].newRoles)

	// Without a cached previous state there is nothing to compare
	b.handleGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: update.Member})
	// Other guilds are ignored
	b.handleGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "other", User: &discordgo.User{ID: "u2"}},
		BeforeUpdate: &discordgo.Member{},
	})
	assert.Len(t, roles.changes, 1)

	// Failures are logged, not propagated
	roles.err = errors.New("database down")
	b.handleGuildMemberUpdate(nil, update)
	assert.Len(t, roles.changes, 2)
}

func TestBot_ReadyRunsOnce(t *testing.T) {
	calls := 0
	b := NewBot(nil, "guild", &recordingHandler{}, &recordingRoles{}, func(ctx context.Context) { calls++ })

	ready := &discordgo.Ready{User: &discordgo.User{ID: "bot", Username: "whalebot"}}
	b.handleReady(nil, ready)
	b.handleReady(nil, ready)

	assert.Equal(t, 1, calls)
}
