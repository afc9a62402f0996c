package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zachfi/wsmbot/modules/station"
)

const testStation = "WSM 650 AM"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVoice struct {
	mu        sync.Mutex
	playing   bool
	paused    bool
	connected bool
	playErr   error
	calls     []string
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{connected: true}
}

func (v *fakeVoice) record(call string) {
	v.calls = append(v.calls, call)
}

func (v *fakeVoice) Play(url string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("play " + url)
	if v.playErr != nil {
		return v.playErr
	}
	v.playing = true
	v.paused = false
	return nil
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("stop")
	v.playing = false
	v.paused = false
}

func (v *fakeVoice) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("pause")
	v.playing = false
	v.paused = true
}

func (v *fakeVoice) Resume() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("resume")
	v.playing = true
	v.paused = false
}

func (v *fakeVoice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

func (v *fakeVoice) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *fakeVoice) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *fakeVoice) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("disconnect")
	v.connected = false
	v.playing = false
	v.paused = false
	return nil
}

func (v *fakeVoice) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// fakeDialer hands out voices in order. When dial is set it is used instead.
type fakeDialer struct {
	mu     sync.Mutex
	voices []*fakeVoice
	dial   func(ctx context.Context) (Voice, error)
	dials  int
}

func (d *fakeDialer) Dial(ctx context.Context, _, _ string) (Voice, error) {
	d.mu.Lock()
	d.dials++
	dial := d.dial
	var v *fakeVoice
	if dial == nil && len(d.voices) > 0 {
		v, d.voices = d.voices[0], d.voices[1:]
	}
	d.mu.Unlock()

	if dial != nil {
		return dial(ctx)
	}
	if v == nil {
		return nil, errors.New("no voice available")
	}
	return v, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeUpdater struct {
	mu         sync.Mutex
	err        error
	activities []Activity
}

func (u *fakeUpdater) UpdatePresence(a Activity) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.activities = append(u.activities, a)
	return u.err
}

func (u *fakeUpdater) Last() (Activity, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.activities) == 0 {
		return Activity{}, false
	}
	return u.activities[len(u.activities)-1], true
}

// fakeStation replaces the state with next on every refresh.
type fakeStation struct {
	mu        sync.Mutex
	state     *station.State
	next      *station.Status
	refreshes int
}

func newFakeStation() *fakeStation {
	return &fakeStation{state: station.NewState(testStation)}
}

func (s *fakeStation) Refresh(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.next != nil {
		s.state.Replace(*s.next)
	}
}

func (s *fakeStation) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *fakeStation) State() *station.State { return s.state }

func (s *fakeStation) Name() string { return testStation }

type harness struct {
	dialer     *fakeDialer
	station    *fakeStation
	updater    *fakeUpdater
	controller *Controller
	handlers   *Handlers
}

func newHarness(voices ...*fakeVoice) *harness {
	h := &harness{
		dialer:  &fakeDialer{voices: voices},
		station: newFakeStation(),
		updater: &fakeUpdater{},
	}
	logger := testLogger()
	presence := NewPresence(h.station.State(), testStation, h.updater, logger)
	h.controller = NewController(h.dialer, "http://stream.example.com/wsm", 50*time.Millisecond, h.station.State(), h.station, presence, logger)
	h.handlers = NewHandlers(h.controller, h.station, logger)
	return h
}

func (h *harness) run(t *testing.T, cmd Command) Reply {
	t.Helper()
	f, ok := h.handlers.Lookup(cmd.Name)
	if !ok {
		t.Fatalf("no handler for %q", cmd.Name)
	}
	return f(context.Background(), cmd)
}

func inVoice(name string) Command {
	return Command{
		Name:             name,
		GuildID:          "guild-1",
		UserID:           "user-1",
		VoiceChannelID:   "voice-1",
		VoiceChannelName: "Radio Room",
	}
}
