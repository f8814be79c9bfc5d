package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/small-frappuccino/guildsetup/pkg/log"
	"github.com/small-frappuccino/guildsetup/pkg/util"
)

// ErrStorage indicates the durable role record exists but could not be parsed.
// Callers should report it and treat the registry as empty for that call.
var ErrStorage = errors.New("role config storage error")

// RoleBinding associates a user-facing button label with a guild role.
type RoleBinding struct {
	ButtonText string `json:"buttonText"`
	RoleID     string `json:"roleId"`
}

// RoleConfig is the per-guild role document, persisted wholesale.
type RoleConfig struct {
	Roles []RoleBinding `json:"roles"`
}

// RoleStore persists one RoleConfig JSON file per guild under a base
// directory. Every access re-reads the file; there is no cross-call cache.
//
// The read-modify-write sequence in Upsert is intentionally not guarded
// against concurrent writers for the same guild: write concurrency is
// expected to be near zero and the last completed write wins.
type RoleStore struct {
	dir string
}

// NewRoleStore creates a store rooted at dir.
func NewRoleStore(dir string) *RoleStore {
	return &RoleStore{dir: dir}
}

func (s *RoleStore) path(guildID string) string {
	return filepath.Join(s.dir, guildID+"_roles.json")
}

// Load reads the role document for a guild. A guild with no prior record
// yields an empty config and no error; a record that reads but does not
// parse yields ErrStorage.
func (s *RoleStore) Load(guildID string) (RoleConfig, error) {
	var cfg RoleConfig
	err := util.NewJSONManager(s.path(guildID)).Load(&cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return RoleConfig{Roles: []RoleBinding{}}, nil
		}
		log.Storage().Error("Failed to load role config", "guildID", guildID, "err", err)
		return RoleConfig{Roles: []RoleBinding{}}, fmt.Errorf("%w: guild %s: %v", ErrStorage, guildID, err)
	}
	if cfg.Roles == nil {
		cfg.Roles = []RoleBinding{}
	}
	return cfg, nil
}

// Upsert replaces the binding with a matching label, else appends it, and
// persists the whole document synchronously.
func (s *RoleStore) Upsert(guildID, label, roleID string) error {
	cfg, err := s.Load(guildID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range cfg.Roles {
		if cfg.Roles[i].ButtonText == label {
			cfg.Roles[i].RoleID = roleID
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Roles = append(cfg.Roles, RoleBinding{ButtonText: label, RoleID: roleID})
	}

	if err := util.NewJSONManager(s.path(guildID)).Save(&cfg); err != nil {
		return fmt.Errorf("%w: guild %s: %v", ErrStorage, guildID, err)
	}
	log.Storage().Info("Role binding saved", "guildID", guildID, "label", label, "roleID", roleID)
	return nil
}

// ListBindings returns the guild's bindings in stored order.
func (s *RoleStore) ListBindings(guildID string) ([]RoleBinding, error) {
	cfg, err := s.Load(guildID)
	if err != nil {
		return nil, err
	}
	return cfg.Roles, nil
}
