package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/whale-role-bot/internal/errors"
)

type mockSession struct {
	guildErr  error
	members   []*discordgo.Member
	memberErr error
	addErr    error
	removeErr error

	added   []string
	removed []string
	afters  []string
}

func (m *mockSession) Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if m.guildErr != nil {
		return nil, m.guildErr
	}
	return &discordgo.Guild{ID: guildID}, nil
}

func (m *mockSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if m.memberErr != nil {
		return nil, m.memberErr
	}
	for _, member := range m.members {
		if member.User.ID == userID {
			return member, nil
		}
	}
	return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember)
}

func (m *mockSession) GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	m.afters = append(m.afters, after)

	start := 0
	if after != "" {
		for i, member := range m.members {
			if member.User.ID == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(m.members) {
		end = len(m.members)
	}
	return m.members[start:end], nil
}

func (m *mockSession) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, userID)
	return nil
}

func (m *mockSession) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, userID)
	return nil
}

func restError(status, code int) *discordgo.RESTError {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func member(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
}

func TestDiscordGateway_CheckGuild(t *testing.T) {
	ctx := context.Background()

	session := &mockSession{}
	require.NoError(t, newDiscordGateway(session, "guild", 100).CheckGuild(ctx))

	session.guildErr = restError(http.StatusNotFound, discordgo.ErrCodeUnknownGuild)
	err := newDiscordGateway(session, "guild", 100).CheckGuild(ctx)
	assert.ErrorIs(t, err, apperrors.ErrGuildNotFound)

	session.guildErr = errors.New("connection reset")
	err = newDiscordGateway(session, "guild", 100).CheckGuild(ctx)
	assert.Equal(t, apperrors.CategoryGateway, apperrors.Categorize(err).Category)
}

func TestDiscordGateway_HasRole(t *testing.T) {
	ctx := context.Background()
	session := &mockSession{members: []*discordgo.Member{
		member("u1", "whale", "other"),
		member("u2", "other"),
	}}
	gateway := newDiscordGateway(session, "guild", 100)

	has, err := gateway.HasRole(ctx, "u1", "whale")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = gateway.HasRole(ctx, "u2", "whale")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = gateway.HasRole(ctx, "gone", "whale")
	assert.True(t, apperrors.IsNotFound(err))
	assert.ErrorIs(t, err, apperrors.ErrMemberNotFound)
}

func TestDiscordGateway_GrantRevoke(t *testing.T) {
	ctx := context.Background()
	session := &mockSession{}
	gateway := newDiscordGateway(session, "guild", 100)

	require.NoError(t, gateway.GrantRole(ctx, "u1", "whale"))
	require.NoError(t, gateway.RevokeRole(ctx, "u2", "whale"))
	assert.Equal(t, []string{"u1"}, session.added)
	assert.Equal(t, []string{"u2"}, session.removed)

	session.addErr = restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember)
	assert.True(t, apperrors.IsNotFound(gateway.GrantRole(ctx, "u3", "whale")))

	session.removeErr = restError(http.StatusForbidden, 50013)
	err := gateway.RevokeRole(ctx, "u3", "whale")
	assert.False(t, apperrors.IsNotFound(err))
	assert.Equal(t, apperrors.CategoryGateway, apperrors.Categorize(err).Category)
}

func TestDiscordGateway_ListHoldersPages(t *testing.T) {
	var members []*discordgo.Member
	for i := 0; i < memberPageSize+5; i++ {
		roles := []string{"other"}
		if i%500 == 0 {
			roles = append(roles, "whale")
		}
		members = append(members, member(fmt.Sprintf("u%04d", i), roles...))
	}
	session := &mockSession{members: members}

	holders, err := newDiscordGateway(session, "guild", 1000).ListHolders(context.Background(), "whale")
	require.NoError(t, err)

	assert.Equal(t, []string{"u0000", "u0500", "u1000"}, holders)
	assert.Equal(t, []string{"", "u0999"}, session.afters)
}

func TestIsRESTError(t *testing.T) {
	assert.True(t, isRESTError(restError(404, discordgo.ErrCodeUnknownMember), discordgo.ErrCodeUnknownMember))
	assert.False(t, isRESTError(restError(404, discordgo.ErrCodeUnknownGuild), discordgo.ErrCodeUnknownMember, 404))
	assert.True(t, isRESTError(&discordgo.RESTError{Response: &http.Response{StatusCode: 404}}, 1, 404))
	assert.False(t, isRESTError(errors.New("plain"), discordgo.ErrCodeUnknownMember, 404))
	assert.True(t, isRESTError(fmt.Errorf("wrapped: %w", restError(404, 10007)), 10007))
}
