package pin

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeTimer struct {
	sched   *fakeScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler records scheduled calls and runs them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs every timer that is due. With includeStopped it also runs
// stopped timers, mimicking a timer that raced its Stop call.
func (s *fakeScheduler) fire(includeStopped bool) int {
	s.mu.Lock()
	var due []func()
	for _, t := range s.timers {
		if t.fired || (t.stopped && !includeStopped) {
			continue
		}
		t.fired = true
		due = append(due, t.f)
	}
	s.mu.Unlock()

	for _, f := range due {
		f()
	}
	return len(due)
}

func (s *fakeScheduler) FireAll() int { return s.fire(false) }

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type completions struct {
	mu    sync.Mutex
	codes []string
}

func (c *completions) record(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
}

func (c *completions) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.codes...)
}

// --- Helpers ---

func newTestMachine(t *testing.T, length int) (*Machine, *fakeScheduler, *completions) {
	t.Helper()
	sched := &fakeScheduler{}
	done := &completions{}
	m, err := New(length, done.record, WithScheduler(sched))
	require.NoError(t, err)
	return m, sched, done
}

func typeCode(m *Machine, code string) {
	for i, c := range code {
		m.Digit(i, string(c))
	}
}

// --- Tests ---

func TestNew_Validation(t *testing.T) {
	noop := func(string) {}

	_, err := New(0, noop)
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = New(4, nil)
	require.ErrorIs(t, err, ErrNilCallback)

	_, err = New(4, noop, WithDelay(0))
	require.ErrorIs(t, err, ErrInvalidDelay)

	_, err = New(4, noop, WithDelay(MaxDelay+time.Millisecond))
	require.ErrorIs(t, err, ErrInvalidDelay)

	m, err := New(6, noop)
	require.NoError(t, err)
	s := m.State()
	assert.Equal(t, 6, m.Length())
	assert.Equal(t, PhaseEmpty, s.Phase)
	assert.Equal(t, 0, s.Focus)
	assert.Len(t, s.Slots, 6)
}

func TestDigit_TypingWalksThroughPhases(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	wantPhases := []Phase{PhasePartial, PhasePartial, PhasePartial, PhaseComplete}
	wantFocus := []int{1, 2, 3, NoFocus}
	for i, c := range "1234" {
		require.True(t, m.Digit(i, string(c)))
		s := m.State()
		assert.Equal(t, wantPhases[i], s.Phase, "after digit %d", i)
		assert.Equal(t, wantFocus[i], s.Focus, "after digit %d", i)
		assert.Equal(t, i+1, s.Filled)
	}

	assert.Empty(t, done.all(), "completion waits for the delay")
	require.Equal(t, 1, sched.scheduled())
	assert.Equal(t, DefaultDelay, sched.timers[0].delay)

	assert.Equal(t, 1, sched.FireAll())
	assert.Equal(t, []string{"1234"}, done.all())
	assert.Equal(t, PhaseSubmitted, m.State().Phase)

	assert.Equal(t, 0, sched.FireAll(), "nothing left to fire")
	assert.Equal(t, []string{"1234"}, done.all())
}

func TestDigit_FiltersNonNumerals(t *testing.T) {
	m, _, _ := newTestMachine(t, 4)

	for _, input := range []string{"a", "", " ", "-", "٣"} {
		assert.False(t, m.Digit(0, input), "input %q", input)
	}
	assert.False(t, m.Digit(-1, "1"))
	assert.False(t, m.Digit(4, "1"))

	s := m.State()
	assert.Equal(t, PhaseEmpty, s.Phase)
	assert.Equal(t, 0, s.Focus)
	assert.Equal(t, "", s.Code())
}

func TestDigit_ReplacesSlotWithLastCharacter(t *testing.T) {
	m, _, _ := newTestMachine(t, 4)

	require.True(t, m.Digit(0, "1"))
	require.True(t, m.Digit(0, "17"))
	assert.Equal(t, []string{"7", "", "", ""}, m.State().Slots)

	assert.False(t, m.Digit(0, "7x"), "last character decides")
	assert.Equal(t, []string{"7", "", "", ""}, m.State().Slots)
}

func TestDigit_RapidEntryFiresOnce(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	typeCode(m, "1234")
	assert.False(t, m.Digit(3, "9"), "completed entry is locked")
	assert.False(t, m.Paste("5678"))
	assert.Equal(t, NoFocus, m.Backspace(3))
	assert.False(t, m.Clear(0))

	assert.Equal(t, 1, sched.scheduled(), "completion scheduled once")
	sched.FireAll()
	sched.FireAll()
	assert.Equal(t, []string{"1234"}, done.all())
}

func TestPaste(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		accepted   bool
		wantSlots  []string
		wantFocus  int
		wantPhase  Phase
		wantFinish []string
	}{
		{
			name:      "non-numeric text is rejected entirely",
			text:      "12ab",
			wantSlots: []string{"", "", "", ""},
			wantFocus: 0,
			wantPhase: PhaseEmpty,
		},
		{
			name:       "longer text is truncated then accepted",
			text:       "12345",
			accepted:   true,
			wantSlots:  []string{"1", "2", "3", "4"},
			wantFocus:  NoFocus,
			wantPhase:  PhaseSubmitted,
			wantFinish: []string{"1234"},
		},
		{
			name:      "truncation happens before validation",
			text:      "1234x",
			accepted:  true,
			wantSlots: []string{"1", "2", "3", "4"},
			wantFocus: NoFocus,
			wantPhase: PhaseSubmitted,
			wantFinish: []string{
				"1234",
			},
		},
		{
			name:      "short text focuses first empty slot",
			text:      "12",
			accepted:  true,
			wantSlots: []string{"1", "2", "", ""},
			wantFocus: 2,
			wantPhase: PhasePartial,
		},
		{
			name:      "empty text is rejected",
			text:      "",
			wantSlots: []string{"", "", "", ""},
			wantFocus: 0,
			wantPhase: PhaseEmpty,
		},
		{
			name:      "non-ascii digits are rejected",
			text:      "١٢٣٤",
			wantSlots: []string{"", "", "", ""},
			wantFocus: 0,
			wantPhase: PhaseEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, sched, done := newTestMachine(t, 4)

			assert.Equal(t, tt.accepted, m.Paste(tt.text))
			sched.FireAll()

			s := m.State()
			assert.Equal(t, tt.wantSlots, s.Slots)
			assert.Equal(t, tt.wantFocus, s.Focus)
			assert.Equal(t, tt.wantPhase, s.Phase)
			assert.Equal(t, tt.wantFinish, done.all())
		})
	}
}

func TestPaste_CompletesAroundExistingDigits(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	require.True(t, m.Digit(1, "9"))
	require.True(t, m.Digit(2, "9"))
	require.True(t, m.Digit(3, "9"))
	assert.Equal(t, PhasePartial, m.State().Phase)

	require.True(t, m.Paste("1"))
	sched.FireAll()
	assert.Equal(t, []string{"1999"}, done.all())
}

func TestBackspace(t *testing.T) {
	m, _, _ := newTestMachine(t, 4)

	assert.Equal(t, 0, m.Backspace(0), "slot 0 never moves back")

	typeCode(m, "12")
	require.Equal(t, 2, m.State().Focus)

	assert.Equal(t, 1, m.Backspace(2), "empty slot moves focus back")
	assert.Equal(t, []string{"1", "2", "", ""}, m.State().Slots, "moving back does not clear")

	require.True(t, m.Clear(1))
	s := m.State()
	assert.Equal(t, []string{"1", "", "", ""}, s.Slots)
	assert.Equal(t, 1, s.Focus)

	assert.Equal(t, 0, m.Backspace(0), "filled slot 0 is cleared in place")
	assert.Equal(t, PhaseEmpty, m.State().Phase)

	assert.Equal(t, 0, m.Backspace(-1))
	assert.Equal(t, 0, m.Backspace(9))
}

func TestReset_MidEntryLeavesNoResidue(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	typeCode(m, "12")
	m.Reset()

	s := m.State()
	assert.Equal(t, PhaseEmpty, s.Phase)
	assert.Equal(t, 0, s.Focus)

	typeCode(m, "5678")
	sched.FireAll()
	assert.Equal(t, []string{"5678"}, done.all())
}

func TestReset_CancelsPendingCompletion(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	typeCode(m, "1234")
	m.Reset()

	assert.Equal(t, 0, sched.FireAll(), "timer was stopped")
	assert.Empty(t, done.all())

	typeCode(m, "4321")
	sched.FireAll()
	assert.Equal(t, []string{"4321"}, done.all())
}

func TestReset_IgnoresTimerThatRacedStop(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	typeCode(m, "1234")
	m.Reset()
	typeCode(m, "12")

	sched.fire(true)
	assert.Empty(t, done.all(), "stale completion must not fire")
	assert.Equal(t, PhasePartial, m.State().Phase)
}

func TestClose_CancelsPendingCompletion(t *testing.T) {
	m, sched, done := newTestMachine(t, 4)

	typeCode(m, "1234")
	m.Close()
	sched.fire(true)

	assert.Empty(t, done.all())
	assert.False(t, m.Digit(0, "1"), "closed machine ignores input")
}

func TestCallbackMayResetMachine(t *testing.T) {
	sched := &fakeScheduler{}
	var m *Machine
	var got []string
	m, err := New(4, func(code string) {
		got = append(got, code)
		m.Reset()
	}, WithScheduler(sched))
	require.NoError(t, err)

	typeCode(m, "2468")
	sched.FireAll()

	assert.Equal(t, []string{"2468"}, got)
	assert.Equal(t, PhaseEmpty, m.State().Phase)
}

func TestWallClockScheduler(t *testing.T) {
	codes := make(chan string, 2)
	m, err := New(4, func(code string) { codes <- code }, WithDelay(10*time.Millisecond))
	require.NoError(t, err)

	typeCode(m, "1357")

	select {
	case code := <-codes:
		assert.Equal(t, "1357", code)
	case <-time.After(time.Second):
		t.Fatal("completion did not fire")
	}

	require.Eventually(t, func() bool {
		return m.State().Phase == PhaseSubmitted
	}, time.Second, 5*time.Millisecond)

	select {
	case code := <-codes:
		t.Fatalf("unexpected second completion %q", code)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "empty", PhaseEmpty.String())
	assert.Equal(t, "partial", PhasePartial.String())
	assert.Equal(t, "complete", PhaseComplete.String())
	assert.Equal(t, "submitted", PhaseSubmitted.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
