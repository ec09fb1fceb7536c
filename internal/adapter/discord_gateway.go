package adapter

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	apperrors "github.com/whale-role-bot/internal/errors"
)

// memberPageSize is the maximum page size of the list guild members endpoint
const memberPageSize = 1000

// discordSession is the slice of *discordgo.Session the gateway calls
type discordSession interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// DiscordGateway reads and mutates role membership in one guild over REST.
// Every call waits on a shared token bucket.
type DiscordGateway struct {
	session discordSession
	guildID string
	limiter *rate.Limiter
}

// NewDiscordGateway creates a gateway bound to guildID
func NewDiscordGateway(session *discordgo.Session, guildID string, requestsPerSecond float64) *DiscordGateway {
	return newDiscordGateway(session, guildID, requestsPerSecond)
}

func newDiscordGateway(session discordSession, guildID string, requestsPerSecond float64) *DiscordGateway {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}

	return &DiscordGateway{
		session: session,
		guildID: guildID,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
}

// GuildID returns the guild the gateway manages
func (g *DiscordGateway) GuildID() string {
	return g.guildID
}

// CheckGuild verifies the guild is reachable
func (g *DiscordGateway) CheckGuild(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := g.session.Guild(g.guildID, discordgo.WithContext(ctx)); err != nil {
		if isRESTError(err, discordgo.ErrCodeUnknownGuild, http.StatusNotFound, http.StatusForbidden) {
			return apperrors.NewGuildNotFoundError(g.guildID, err)
		}
		return apperrors.NewGatewayError("fetch guild", err)
	}

	return nil
}

// HasRole reports whether the member holds roleID. A user who left the guild
// yields a member not found error.
func (g *DiscordGateway) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return false, err
	}

	member, err := g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, g.memberError("fetch member", userID, err)
	}

	return slices.Contains(member.Roles, roleID), nil
}

// GrantRole adds roleID to the member
func (g *DiscordGateway) GrantRole(ctx context.Context, userID, roleID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := g.session.GuildMemberRoleAdd(g.guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return g.memberError("add role", userID, err)
	}
	return nil
}

// RevokeRole removes roleID from the member
func (g *DiscordGateway) RevokeRole(ctx context.Context, userID, roleID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := g.session.GuildMemberRoleRemove(g.guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return g.memberError("remove role", userID, err)
	}
	return nil
}

// ListHolders pages through the guild members and returns the ids of those
// holding roleID.
func (g *DiscordGateway) ListHolders(ctx context.Context, roleID string) ([]string, error) {
	var holders []string
	after := ""

	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := g.session.GuildMembers(g.guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, apperrors.NewGatewayError("list members", err)
		}

		for _, member := range page {
			if member.User == nil {
				continue
			}
			if slices.Contains(member.Roles, roleID) {
				holders = append(holders, member.User.ID)
			}
		}

		if len(page) < memberPageSize || page[len(page)-1].User == nil {
			return holders, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (g *DiscordGateway) memberError(operation, userID string, err error) error {
	if isRESTError(err, discordgo.ErrCodeUnknownMember, http.StatusNotFound) {
		return apperrors.NewMemberNotFoundError(userID, err)
	}
	return apperrors.NewGatewayError(operation, err)
}

// isRESTError reports whether err is a Discord REST error carrying code, or
// an HTTP status in statuses when Discord sent no JSON error code.
func isRESTError(err error, code int, statuses ...int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}

	if restErr.Message != nil && restErr.Message.Code != 0 {
		return restErr.Message.Code == code
	}
	if restErr.Response != nil {
		return slices.Contains(statuses, restErr.Response.StatusCode)
	}
	return false
}
