package roles

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/log"
)

var (
	// ErrRoleNotFound indicates the role no longer resolves in the guild.
	ErrRoleNotFound = errors.New("role not found in guild")
	// ErrPlatform wraps a failed Discord API mutation. Never retried.
	ErrPlatform = errors.New("discord api call failed")
)

// ToggleResult reports which way a toggle flipped.
type ToggleResult int

const (
	ToggleGranted ToggleResult = iota
	ToggleRevoked
)

func (r ToggleResult) String() string {
	if r == ToggleGranted {
		return "granted"
	}
	return "revoked"
}

// MemberAPI is the slice of the Discord session the toggler needs.
// *discordgo.Session satisfies it.
type MemberAPI interface {
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Toggler flips a member's role membership: grant when absent, revoke when
// held. There is no separate "set" operation; repeated calls alternate.
type Toggler struct {
	api MemberAPI
}

// NewToggler creates a Toggler backed by the given API.
func NewToggler(api MemberAPI) *Toggler {
	return &Toggler{api: api}
}

// Toggle validates that roleID still exists in the guild, then grants or
// revokes it on the member. When the role does not resolve, it fails with
// ErrRoleNotFound and performs no mutation.
func (t *Toggler) Toggle(guildID, userID, roleID string) (ToggleResult, error) {
	guildRoles, err := t.api.GuildRoles(guildID)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch guild roles: %v", ErrPlatform, err)
	}
	found := false
	for _, r := range guildRoles {
		if r.ID == roleID {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}

	member, err := t.api.GuildMember(guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch member: %v", ErrPlatform, err)
	}

	held := false
	for _, r := range member.Roles {
		if r == roleID {
			held = true
			break
		}
	}

	if held {
		if err := t.api.GuildMemberRoleRemove(guildID, userID, roleID); err != nil {
			return 0, fmt.Errorf("%w: remove role: %v", ErrPlatform, err)
		}
		log.Discord().Info("Role revoked", "guildID", guildID, "userID", userID, "roleID", roleID)
		return ToggleRevoked, nil
	}

	if err := t.api.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		return 0, fmt.Errorf("%w: add role: %v", ErrPlatform, err)
	}
	log.Discord().Info("Role granted", "guildID", guildID, "userID", userID, "roleID", roleID)
	return ToggleGranted, nil
}

// Resolve returns the guild role for roleID, or ErrRoleNotFound.
func (t *Toggler) Resolve(guildID, roleID string) (*discordgo.Role, error) {
	guildRoles, err := t.api.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch guild roles: %v", ErrPlatform, err)
	}
	for _, r := range guildRoles {
		if r.ID == roleID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
}

// RoleName resolves a role's display name, falling back to its ID.
func (t *Toggler) RoleName(guildID, roleID string) string {
	guildRoles, err := t.api.GuildRoles(guildID)
	if err != nil {
		return roleID
	}
	for _, r := range guildRoles {
		if r.ID == roleID {
			return r.Name
		}
	}
	return roleID
}
