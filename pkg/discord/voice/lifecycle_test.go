package voice

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

// fakeChannelAPI simulates a guild's channel tree with mutable occupancy.
// Timers call it from their own goroutines, so every method locks.
type fakeChannelAPI struct {
	mu        sync.Mutex
	nextID    int
	channels  map[string]*discordgo.Channel
	occupants map[string]int

	deleteCalls int
	deleteErr   error
	moveCalls   []string
}

func newFakeChannelAPI() *fakeChannelAPI {
	return &fakeChannelAPI{
		channels:  make(map[string]*discordgo.Channel),
		occupants: make(map[string]int),
	}
}

func (f *fakeChannelAPI) addCategory(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("cat-%d", f.nextID)
	f.channels[id] = &discordgo.Channel{ID: id, Name: name, Type: discordgo.ChannelTypeGuildCategory}
	return id
}

func (f *fakeChannelAPI) setOccupants(channelID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.occupants[channelID] = n
}

func (f *fakeChannelAPI) removeChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
}

func (f *fakeChannelAPI) deletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteCalls
}

func (f *fakeChannelAPI) occupancy(guildID, channelID string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return 0, false
	}
	return f.occupants[channelID], true
}

func (f *fakeChannelAPI) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Channel
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakeChannelAPI) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ch-%d", f.nextID)
	ch := &discordgo.Channel{ID: id, Name: data.Name, Type: data.Type, ParentID: data.ParentID}
	f.channels[id] = ch
	return ch, nil
}

func (f *fakeChannelAPI) ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	ch := f.channels[channelID]
	delete(f.channels, channelID)
	return ch, nil
}

func (f *fakeChannelAPI) GuildMemberMove(guildID, userID string, channelID *string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveCalls = append(f.moveCalls, userID)
	return nil
}

func testConfig() Config {
	return Config{
		JoinGrace:      20 * time.Millisecond,
		EmptyGrace:     20 * time.Millisecond,
		CreateInterval: time.Hour,
		CreateBurst:    1,
	}
}

func TestUnjoinedChannelDeletedAfterJoinGrace(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st, ok := m.StateOf(ch.ID); !ok || st != StateAwaitingJoin {
		t.Fatalf("expected AwaitingJoin, got %v (tracked=%v)", st, ok)
	}

	time.Sleep(100 * time.Millisecond)

	if api.deletes() != 1 {
		t.Fatalf("expected exactly one delete call, got %d", api.deletes())
	}
	if _, ok := m.StateOf(ch.ID); ok {
		t.Fatalf("deleted channel still tracked")
	}
}

func TestJoinWithinGraceCancelsDeletion(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	api.setOccupants(ch.ID, 1)
	m.NoteOccupancyChange(ch.ID)

	time.Sleep(100 * time.Millisecond)

	if api.deletes() != 0 {
		t.Fatalf("occupied channel was deleted")
	}
	if st, ok := m.StateOf(ch.ID); !ok || st != StateOccupied {
		t.Fatalf("expected Occupied, got %v (tracked=%v)", st, ok)
	}
}

func TestEmptyGraceDeletesAfterLastLeave(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	api.setOccupants(ch.ID, 2)
	m.NoteOccupancyChange(ch.ID)

	api.setOccupants(ch.ID, 0)
	m.NoteOccupancyChange(ch.ID)
	if st, _ := m.StateOf(ch.ID); st != StateEmpty {
		t.Fatalf("expected Empty after last leave, got %v", st)
	}

	time.Sleep(100 * time.Millisecond)

	if api.deletes() != 1 {
		t.Fatalf("expected exactly one delete call, got %d", api.deletes())
	}
}

func TestRejoinDuringEmptyGraceAbortsDeletion(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	api.setOccupants(ch.ID, 1)
	m.NoteOccupancyChange(ch.ID)
	api.setOccupants(ch.ID, 0)
	m.NoteOccupancyChange(ch.ID)

	// Rejoin before the empty grace timer fires.
	api.setOccupants(ch.ID, 1)
	m.NoteOccupancyChange(ch.ID)

	time.Sleep(100 * time.Millisecond)

	if api.deletes() != 0 {
		t.Fatalf("rejoined channel was deleted")
	}
	if st, ok := m.StateOf(ch.ID); !ok || st != StateOccupied {
		t.Fatalf("expected Occupied after rejoin, got %v (tracked=%v)", st, ok)
	}
}

func TestFiringSkipsWhenChannelAlreadyGone(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Someone removed the channel out from under the manager.
	api.removeChannel(ch.ID)

	time.Sleep(100 * time.Millisecond)

	if api.deletes() != 0 {
		t.Fatalf("expected no delete call for vanished channel, got %d", api.deletes())
	}
	if _, ok := m.StateOf(ch.ID); ok {
		t.Fatalf("vanished channel still tracked")
	}
}

func TestDeleteFailureIsSwallowed(t *testing.T) {
	api := newFakeChannelAPI()
	api.deleteErr = errors.New("missing permissions")
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if api.deletes() != 1 {
		t.Fatalf("expected one delete attempt, got %d", api.deletes())
	}
	if _, ok := m.StateOf(ch.ID); ok {
		t.Fatalf("failed delete should still untrack the channel")
	}
}

func TestDeleteHookObservesDeletion(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	type deletion struct{ guildID, channelID, name string }
	deleted := make(chan deletion, 1)
	m.SetDeleteHook(func(guildID, channelID, name string) {
		deleted <- deletion{guildID, channelID, name}
	})

	ch, err := m.Create("g1", "", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case d := <-deleted:
		if d.guildID != "g1" || d.channelID != ch.ID || d.name != "lobby" {
			t.Fatalf("unexpected hook values: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("delete hook never fired")
	}
}

func TestDeleteHookSkippedWhenDeleteFails(t *testing.T) {
	api := newFakeChannelAPI()
	api.deleteErr = errors.New("missing permissions")
	m := NewManager(api, api.occupancy, nil, testConfig())

	fired := make(chan struct{}, 1)
	m.SetDeleteHook(func(guildID, channelID, name string) {
		fired <- struct{}{}
	})

	if _, err := m.Create("g1", "", "lobby", "u1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	select {
	case <-fired:
		t.Fatalf("hook fired for a failed delete")
	default:
	}
}

func TestCreateThrottledPerUser(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	if _, err := m.Create("g1", "", "one", "u1"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := m.Create("g1", "", "two", "u1"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled for rapid second create, got %v", err)
	}
	// Another user is not affected.
	if _, err := m.Create("g1", "", "three", "u2"); err != nil {
		t.Fatalf("create for second user: %v", err)
	}
}

func TestCategoryResolutionIsExact(t *testing.T) {
	api := newFakeChannelAPI()
	api.addCategory("voice rooms")
	wantID := api.addCategory("Voice Rooms")
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "Voice Rooms", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.ParentID != wantID {
		t.Fatalf("expected parent %s, got %s", wantID, ch.ParentID)
	}
}

func TestMissingCategoryIsCreated(t *testing.T) {
	api := newFakeChannelAPI()
	m := NewManager(api, api.occupancy, nil, testConfig())

	ch, err := m.Create("g1", "Fresh Category", "lobby", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.ParentID == "" {
		t.Fatalf("expected channel parented under the new category")
	}
	channels, _ := api.GuildChannels("g1")
	found := false
	for _, c := range channels {
		if c.ID == ch.ParentID && c.Type == discordgo.ChannelTypeGuildCategory && c.Name == "Fresh Category" {
			found = true
		}
	}
	if !found {
		t.Fatalf("category was not created")
	}
}

func TestRequesterRelocatedWhenConnected(t *testing.T) {
	api := newFakeChannelAPI()
	presence := func(guildID, userID string) (string, bool) {
		return "elsewhere", userID == "connected"
	}
	m := NewManager(api, api.occupancy, presence, testConfig())

	if _, err := m.Create("g1", "", "lobby", "connected"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Create("g1", "", "lobby", "offline"); err != nil {
		t.Fatalf("create: %v", err)
	}

	api.mu.Lock()
	moves := append([]string(nil), api.moveCalls...)
	api.mu.Unlock()
	if len(moves) != 1 || moves[0] != "connected" {
		t.Fatalf("expected exactly one move for the connected user, got %v", moves)
	}
}
