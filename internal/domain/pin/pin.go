// Package pin implements the fixed-length numeric code pad used for staff
// sign-in.
//
// A Machine tracks one slot per digit and the slot that currently has focus.
// Once every slot is filled, the completion callback is scheduled after a
// short delay so the last digit can render before the surface moves on. The
// callback fires at most once per entry; Reset starts a new entry and Close
// tears the machine down. Both cancel a pending completion.
package pin

import (
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

const (
	// DefaultLength is the PIN length used by the bar terminals.
	DefaultLength = 4
	// DefaultDelay is the pause between filling the last slot and completion.
	DefaultDelay = 300 * time.Millisecond
	// MaxDelay bounds the completion delay.
	MaxDelay = 2 * time.Second
	// NoFocus is reported when no slot accepts keystrokes.
	NoFocus = -1
)

// Sentinel errors for machine construction.
var (
	ErrInvalidLength = errors.New("pin length must be at least 1")
	ErrInvalidDelay  = errors.New("completion delay must be positive and bounded")
	ErrNilCallback   = errors.New("completion callback required")
)

// Phase is the coarse state of an entry.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhasePartial
	PhaseComplete
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhasePartial:
		return "partial"
	case PhaseComplete:
		return "complete"
	case PhaseSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// CompleteFunc receives the entered code, exactly Length numerals long.
type CompleteFunc func(code string)

// State is a point-in-time copy of a machine.
type State struct {
	// Slots holds one entry per digit; empty slots are "".
	Slots  []string
	Focus  int
	Filled int
	Phase  Phase
}

// Code concatenates the filled slots.
func (s State) Code() string {
	return strings.Join(s.Slots, "")
}

// Option configures a Machine.
type Option func(*Machine)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(m *Machine) { m.delay = d }
}

// WithScheduler overrides the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) { m.sched = s }
}

// Machine is the PIN entry state machine.
//
// The completion callback runs on the scheduler's goroutine, so the machine
// guards its state with a mutex. The callback is invoked without the lock
// held and may call back into the machine.
type Machine struct {
	length     int
	delay      time.Duration
	sched      Scheduler
	onComplete CompleteFunc

	mu        sync.Mutex
	slots     []byte // 0 marks an empty slot
	focus     int
	pending   Timer
	entry     uint64 // bumped on Reset so stale timers are ignored
	scheduled bool
	submitted bool
	closed    bool
}

// New returns an empty machine of the given length with focus on slot 0.
func New(length int, onComplete CompleteFunc, opts ...Option) (*Machine, error) {
	if length < 1 {
		return nil, ErrInvalidLength
	}
	if onComplete == nil {
		return nil, ErrNilCallback
	}
	m := &Machine{
		length:     length,
		delay:      DefaultDelay,
		sched:      clockScheduler{},
		onComplete: onComplete,
		slots:      make([]byte, length),
	}
	for _, o := range opts {
		o(m)
	}
	if m.delay <= 0 || m.delay > MaxDelay {
		return nil, ErrInvalidDelay
	}
	return m, nil
}

// Length returns the number of slots.
func (m *Machine) Length() int {
	return m.length
}

// Digit handles a keystroke into slot index. Only the last character of
// input is considered and it must be a numeral; anything else is filtered
// and reported as false. An accepted digit replaces the slot content and
// moves focus to the next slot, or clears focus after the last one.
func (m *Machine) Digit(index int, input string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.editable() || !m.inRange(index) || input == "" {
		return false
	}
	c := input[len(input)-1]
	if !isNumeral(c) {
		return false
	}

	m.slots[index] = c
	if index+1 < m.length {
		m.focus = index + 1
	} else {
		m.focus = NoFocus
	}
	m.checkComplete()
	return true
}

// Backspace handles the backspace key in slot index and returns the new
// focus. A filled slot is cleared in place. On an empty slot focus moves to
// the previous slot; clearing that slot is a separate Clear call. Backspace
// in slot 0 never moves focus.
func (m *Machine) Backspace(index int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.editable() || !m.inRange(index) {
		return m.focus
	}
	if m.slots[index] != 0 {
		m.slots[index] = 0
		m.focus = index
		return m.focus
	}
	if index > 0 {
		m.focus = index - 1
	}
	return m.focus
}

// Clear empties slot index and focuses it.
func (m *Machine) Clear(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.editable() || !m.inRange(index) {
		return false
	}
	m.slots[index] = 0
	m.focus = index
	return true
}

// Paste fills slots from index 0 with raw truncated to Length characters.
// The paste is rejected as a whole unless every kept character is a
// numeral. Focus moves to the first slot still empty afterwards.
func (m *Machine) Paste(raw string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.editable() {
		return false
	}
	text := truncate(raw, m.length)
	if text == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		if !isNumeral(text[i]) {
			return false
		}
	}

	copy(m.slots, text)
	m.focus = m.firstEmpty()
	m.checkComplete()
	return true
}

// Reset clears every slot, focuses slot 0 and cancels a pending completion.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelPending()
	m.entry++
	clear(m.slots)
	m.focus = 0
	m.scheduled = false
	m.submitted = false
}

// Close cancels a pending completion and makes the machine inert.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelPending()
	m.closed = true
}

// State returns a snapshot of the machine.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Slots: make([]string, m.length),
		Focus: m.focus,
		Phase: m.phase(),
	}
	for i, c := range m.slots {
		if c != 0 {
			s.Slots[i] = string(c)
			s.Filled++
		}
	}
	return s
}

// editable reports whether input may change slots. A completed entry is
// locked until the callback has fired and the machine is reset.
func (m *Machine) editable() bool {
	return !m.closed && !m.scheduled && !m.submitted
}

func (m *Machine) inRange(index int) bool {
	return index >= 0 && index < m.length
}

func (m *Machine) firstEmpty() int {
	for i, c := range m.slots {
		if c == 0 {
			return i
		}
	}
	return NoFocus
}

func (m *Machine) phase() Phase {
	switch {
	case m.submitted:
		return PhaseSubmitted
	case m.scheduled:
		return PhaseComplete
	}
	filled := 0
	for _, c := range m.slots {
		if c != 0 {
			filled++
		}
	}
	switch filled {
	case 0:
		return PhaseEmpty
	case m.length:
		return PhaseComplete
	default:
		return PhasePartial
	}
}

// checkComplete schedules the callback when every slot is filled. Callers
// hold m.mu.
func (m *Machine) checkComplete() {
	if m.scheduled || m.firstEmpty() != NoFocus {
		return
	}
	m.scheduled = true
	m.focus = NoFocus

	code := string(m.slots)
	entry := m.entry
	m.pending = m.sched.AfterFunc(m.delay, func() {
		m.fire(entry, code)
	})
}

func (m *Machine) fire(entry uint64, code string) {
	m.mu.Lock()
	if m.closed || m.entry != entry || !m.scheduled || m.submitted {
		m.mu.Unlock()
		return
	}
	m.submitted = true
	m.pending = nil
	cb := m.onComplete
	m.mu.Unlock()

	cb(code)
}

func (m *Machine) cancelPending() {
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

func isNumeral(c byte) bool {
	return c >= '0' && c <= '9'
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
