package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/small-frappuccino/guildsetup/pkg/log"
)

var (
	// ErrPlatform wraps a failed Discord API call during channel creation.
	ErrPlatform = errors.New("discord api call failed")
	// ErrThrottled indicates the requester exceeded the per-user creation rate.
	ErrThrottled = errors.New("channel creation throttled")
)

// State is the lifecycle phase of a managed ephemeral channel.
type State int

const (
	// StateAwaitingJoin means the channel exists and the join grace timer is armed.
	StateAwaitingJoin State = iota
	// StateOccupied means at least one member has been observed in the channel.
	StateOccupied
	// StateEmpty means occupancy dropped to zero and the empty grace timer is armed.
	StateEmpty
	// StateDeleted is terminal.
	StateDeleted
)

// ChannelAPI is the slice of the Discord session the manager needs.
// *discordgo.Session satisfies it.
type ChannelAPI interface {
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberMove(guildID, userID string, channelID *string, options ...discordgo.RequestOption) error
}

// OccupancyFunc reports the live member count of a voice channel.
// ok is false when the channel no longer exists.
type OccupancyFunc func(guildID, channelID string) (count int, ok bool)

// PresenceFunc reports the voice channel a user currently occupies, if any.
type PresenceFunc func(guildID, userID string) (channelID string, ok bool)

// Config holds the lifecycle tunables.
type Config struct {
	// JoinGrace is how long a fresh channel may stay unjoined before deletion.
	JoinGrace time.Duration
	// EmptyGrace is how long an emptied channel may stay empty before deletion.
	EmptyGrace time.Duration
	// CreateInterval and CreateBurst bound per-user channel creation.
	CreateInterval time.Duration
	CreateBurst    int
}

// DefaultConfig mirrors the production grace periods.
func DefaultConfig() Config {
	return Config{
		JoinGrace:      10 * time.Second,
		EmptyGrace:     10 * time.Second,
		CreateInterval: 30 * time.Second,
		CreateBurst:    2,
	}
}

type channelState struct {
	guildID   string
	name      string
	state     State
	createdAt time.Time
	timer     *time.Timer
}

// Manager owns the lifecycle of every ephemeral voice channel it created:
// channel-id -> state in a single table, with one-shot grace timers that
// re-read live state at fire time. Nothing is persisted; a process restart
// orphans in-flight channels, which is inherent to the design.
//
// Timers never need explicit cancellation: every firing re-validates
// occupancy, and deletion is idempotent, so a stale timer is a no-op.
type Manager struct {
	api       ChannelAPI
	occupancy OccupancyFunc
	presence  PresenceFunc
	cfg       Config

	mu        sync.Mutex
	channels  map[string]*channelState
	onDeleted func(guildID, channelID, name string)

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager creates a lifecycle manager. presence may be nil when requester
// relocation is not wanted (tests).
func NewManager(api ChannelAPI, occupancy OccupancyFunc, presence PresenceFunc, cfg Config) *Manager {
	if cfg.JoinGrace <= 0 {
		cfg.JoinGrace = DefaultConfig().JoinGrace
	}
	if cfg.EmptyGrace <= 0 {
		cfg.EmptyGrace = DefaultConfig().EmptyGrace
	}
	if cfg.CreateInterval <= 0 {
		cfg.CreateInterval = DefaultConfig().CreateInterval
	}
	if cfg.CreateBurst <= 0 {
		cfg.CreateBurst = DefaultConfig().CreateBurst
	}
	return &Manager{
		api:       api,
		occupancy: occupancy,
		presence:  presence,
		cfg:       cfg,
		channels:  make(map[string]*channelState),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// SetDeleteHook registers a callback invoked after a managed channel is
// deleted. Best-effort observers only; it runs on the timer goroutine.
func (m *Manager) SetDeleteHook(hook func(guildID, channelID, name string)) {
	m.mu.Lock()
	m.onDeleted = hook
	m.mu.Unlock()
}

// Create provisions a voice channel under the named category (created when
// absent; resolution is exact, case-sensitive, first match wins), arms the
// join grace timer, and relocates the requester into it when they are
// already connected to voice. Relocation is best-effort.
func (m *Manager) Create(guildID, categoryName, name, requesterID string) (*discordgo.Channel, error) {
	if !m.allowCreate(requesterID) {
		return nil, fmt.Errorf("%w: user %s", ErrThrottled, requesterID)
	}

	parentID, err := m.ensureCategory(guildID, categoryName)
	if err != nil {
		return nil, err
	}

	ch, err := m.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create voice channel: %v", ErrPlatform, err)
	}

	m.mu.Lock()
	st := &channelState{
		guildID:   guildID,
		name:      name,
		state:     StateAwaitingJoin,
		createdAt: time.Now(),
	}
	st.timer = time.AfterFunc(m.cfg.JoinGrace, func() { m.onGraceFired(ch.ID) })
	m.channels[ch.ID] = st
	m.mu.Unlock()

	log.Discord().Info("Ephemeral voice channel created",
		"guildID", guildID, "channelID", ch.ID, "name", name, "requesterID", requesterID)

	if m.presence != nil {
		if _, connected := m.presence(guildID, requesterID); connected {
			if err := m.api.GuildMemberMove(guildID, requesterID, &ch.ID); err != nil {
				log.Discord().Warn("Failed to relocate requester into new channel",
					"guildID", guildID, "channelID", ch.ID, "userID", requesterID, "err", err)
			}
		}
	}

	return ch, nil
}

// NoteOccupancyChange must be called whenever a tracked channel's membership
// may have changed. A drop to zero while Occupied arms the empty grace
// timer; any observed occupant marks the channel Occupied. The empty grace
// timer is only armed by a fresh transition to zero, never rearmed by a
// firing that found the channel repopulated.
func (m *Manager) NoteOccupancyChange(channelID string) {
	m.mu.Lock()
	st, tracked := m.channels[channelID]
	if !tracked || st.state == StateDeleted {
		m.mu.Unlock()
		return
	}
	guildID := st.guildID
	m.mu.Unlock()

	count, ok := m.occupancy(guildID, channelID)
	if !ok {
		m.forget(channelID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, tracked = m.channels[channelID]
	if !tracked || st.state == StateDeleted {
		return
	}
	if count > 0 {
		st.state = StateOccupied
		return
	}
	if st.state == StateOccupied {
		st.state = StateEmpty
		st.timer = time.AfterFunc(m.cfg.EmptyGrace, func() { m.onGraceFired(channelID) })
	}
}

// StateOf reports the tracked lifecycle state of a channel.
func (m *Manager) StateOf(channelID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channelID]
	if !ok {
		return 0, false
	}
	return st.state, true
}

// onGraceFired is the single fire-time path for both grace timers:
// wait elapsed, check once, act once.
func (m *Manager) onGraceFired(channelID string) {
	m.mu.Lock()
	st, tracked := m.channels[channelID]
	if !tracked || st.state == StateDeleted {
		m.mu.Unlock()
		return
	}
	guildID := st.guildID
	m.mu.Unlock()

	count, ok := m.occupancy(guildID, channelID)
	if !ok {
		// Already deleted by another path.
		m.forget(channelID)
		return
	}
	if count > 0 {
		m.mu.Lock()
		if st, tracked := m.channels[channelID]; tracked && st.state != StateDeleted {
			st.state = StateOccupied
			st.timer = nil
		}
		m.mu.Unlock()
		return
	}

	m.deleteChannel(guildID, channelID)
}

// deleteChannel re-checks live occupancy immediately before the delete call,
// guarding against a join between timer fire and execution. Failures are
// logged and swallowed; no user is waiting on this path.
func (m *Manager) deleteChannel(guildID, channelID string) {
	count, ok := m.occupancy(guildID, channelID)
	if !ok {
		m.forget(channelID)
		return
	}
	if count > 0 {
		m.mu.Lock()
		if st, tracked := m.channels[channelID]; tracked && st.state != StateDeleted {
			st.state = StateOccupied
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	st, tracked := m.channels[channelID]
	if !tracked || st.state == StateDeleted {
		m.mu.Unlock()
		return
	}
	st.state = StateDeleted
	name := st.name
	lifetime := time.Since(st.createdAt)
	hook := m.onDeleted
	m.mu.Unlock()

	if _, err := m.api.ChannelDelete(channelID); err != nil {
		log.Discord().Warn("Failed to delete ephemeral channel",
			"guildID", guildID, "channelID", channelID, "name", name, "err", err)
	} else {
		log.Discord().Info("Ephemeral voice channel deleted",
			"guildID", guildID, "channelID", channelID, "name", name,
			"lifetime", lifetime.Round(time.Millisecond))
		if hook != nil {
			hook(guildID, channelID, name)
		}
	}
	m.forget(channelID)
}

func (m *Manager) forget(channelID string) {
	m.mu.Lock()
	delete(m.channels, channelID)
	m.mu.Unlock()
}

func (m *Manager) ensureCategory(guildID, categoryName string) (string, error) {
	if categoryName == "" {
		return "", nil
	}
	channels, err := m.api.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("%w: list channels: %v", ErrPlatform, err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == categoryName {
			return ch.ID, nil
		}
	}
	cat, err := m.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: categoryName,
		Type: discordgo.ChannelTypeGuildCategory,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create category: %v", ErrPlatform, err)
	}
	return cat.ID, nil
}

func (m *Manager) allowCreate(userID string) bool {
	m.limitMu.Lock()
	defer m.limitMu.Unlock()
	limiter, ok := m.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(m.cfg.CreateInterval), m.cfg.CreateBurst)
		m.limiters[userID] = limiter
	}
	return limiter.Allow()
}
