package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mandala-pos/terminal/internal/domain/order"
	"github.com/mandala-pos/terminal/internal/domain/pin"
	"github.com/mandala-pos/terminal/internal/domain/product"
	"github.com/mandala-pos/terminal/internal/domain/staff"
)

// SignIn is the staff member signed in on a session.
type SignIn struct {
	Member  staff.Member
	Token   string
	Expires time.Time
}

// Session is one bar terminal. Its operations are serialised; the PIN pad
// completes on its own goroutine and takes the same lock.
type Session struct {
	id       string
	remember bool
	mgr      *Manager
	lg       *zap.Logger
	pad      *pin.Machine

	mu       sync.Mutex
	cart     *order.Aggregator
	pickers  map[string]*order.Picker
	signIn   *SignIn
	lastSeen time.Time
	closed   bool

	rejected    int
	lockedUntil time.Time
}

func newSession(m *Manager, id string, remember bool) *Session {
	return &Session{
		id:       id,
		remember: remember,
		mgr:      m,
		lg:       m.deps.Logger.With(zap.String("terminal_id", id)),
		cart:     order.NewAggregator(),
		pickers:  make(map[string]*order.Picker),
		lastSeen: m.now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Remember reports whether the session was opened with "remember me".
func (s *Session) Remember() bool { return s.remember }

// Cart returns the current order.
func (s *Session) Cart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.cartView()
}

// AddItem looks productID up in the catalog and adds qty units of it.
func (s *Session) AddItem(ctx context.Context, productID string, qty int) (CartView, error) {
	if err := s.requireMember(); err != nil {
		return CartView{}, err
	}
	if productID == "" {
		return CartView{}, order.ErrMissingProductID
	}
	if qty <= 0 {
		return CartView{}, &order.InvalidQuantityError{ProductID: productID, Quantity: qty}
	}
	p, err := s.lookup(ctx, productID)
	if err != nil {
		return CartView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(ctx, p, qty)
}

// add merges qty units of p into the order. Callers hold s.mu.
func (s *Session) add(ctx context.Context, p *product.Product, qty int) (CartView, error) {
	if s.signIn == nil {
		return CartView{}, ErrSignedOut
	}
	if _, err := s.cart.Add(*p, qty); err != nil {
		return CartView{}, err
	}
	s.touch()
	s.mgr.metrics.added.Add(ctx, int64(qty))
	zctx.From(ctx).Debug("Item added",
		zap.String("terminal_id", s.id),
		zap.String("product_id", p.ID),
		zap.Int("quantity", qty),
	)
	return s.publishCart(), nil
}

func (s *Session) lookup(ctx context.Context, productID string) (*product.Product, error) {
	if productID == "" {
		return nil, order.ErrMissingProductID
	}
	p, err := s.mgr.deps.Catalog.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup product")
	}
	return p, nil
}

// SetQuantity replaces the quantity of a line; zero or less removes it.
func (s *Session) SetQuantity(ctx context.Context, productID string, qty int) (CartView, error) {
	return s.mutateCart(ctx, func(a *order.Aggregator) error {
		return a.SetQuantity(productID, qty)
	})
}

// RemoveItem removes a line.
func (s *Session) RemoveItem(ctx context.Context, productID string) (CartView, error) {
	return s.mutateCart(ctx, func(a *order.Aggregator) error {
		return a.Remove(productID)
	})
}

// ClearCart empties the order.
func (s *Session) ClearCart(ctx context.Context) (CartView, error) {
	return s.mutateCart(ctx, func(a *order.Aggregator) error {
		a.Clear()
		return nil
	})
}

func (s *Session) mutateCart(_ context.Context, fn func(*order.Aggregator) error) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signIn == nil {
		return CartView{}, ErrSignedOut
	}
	if err := fn(s.cart); err != nil {
		return CartView{}, err
	}
	s.touch()
	return s.publishCart(), nil
}

// PickedQuantity returns the quantity selected on a product card.
func (s *Session) PickedQuantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.picked(productID)
}

// IncrementPicker raises the quantity selected on a product card. Only
// catalog products have a card.
func (s *Session) IncrementPicker(ctx context.Context, productID string) (int, error) {
	if _, err := s.lookup(ctx, productID); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	p, ok := s.pickers[productID]
	if !ok {
		p = order.NewPicker()
		s.pickers[productID] = p
	}
	return p.Increment(), nil
}

// DecrementPicker lowers the quantity selected on a product card, never
// below one. A card back at one is forgotten.
func (s *Session) DecrementPicker(ctx context.Context, productID string) (int, error) {
	if _, err := s.lookup(ctx, productID); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	p, ok := s.pickers[productID]
	if !ok {
		return 1, nil
	}
	qty := p.Decrement()
	if qty == 1 {
		delete(s.pickers, productID)
	}
	return qty, nil
}

// AddPicked adds the quantity selected on a product card to the order and
// resets the card.
func (s *Session) AddPicked(ctx context.Context, productID string) (CartView, error) {
	if err := s.requireMember(); err != nil {
		return CartView{}, err
	}
	p, err := s.lookup(ctx, productID)
	if err != nil {
		return CartView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cart, err := s.add(ctx, p, s.picked(productID))
	if err != nil {
		return CartView{}, err
	}
	delete(s.pickers, productID)
	return cart, nil
}

// picked returns the card quantity for productID. Callers hold s.mu.
func (s *Session) picked(productID string) int {
	if p, ok := s.pickers[productID]; ok {
		return p.Quantity()
	}
	return 1
}

// Pin returns the PIN pad state.
func (s *Session) Pin() pin.State {
	return s.pad.State()
}

// PinDigit types input into slot index.
func (s *Session) PinDigit(index int, input string) (pin.State, bool) {
	s.activity()
	ok := s.pad.Digit(index, input)
	return s.publishPin(), ok
}

// PinBackspace handles backspace in slot index.
func (s *Session) PinBackspace(index int) pin.State {
	s.activity()
	s.pad.Backspace(index)
	return s.publishPin()
}

// PinClear empties slot index.
func (s *Session) PinClear(index int) (pin.State, bool) {
	s.activity()
	ok := s.pad.Clear(index)
	return s.publishPin(), ok
}

// PinPaste fills the pad from pasted text.
func (s *Session) PinPaste(text string) (pin.State, bool) {
	s.activity()
	ok := s.pad.Paste(text)
	return s.publishPin(), ok
}

// PinReset starts a new entry.
func (s *Session) PinReset() pin.State {
	s.activity()
	s.pad.Reset()
	return s.publishPin()
}

// Staff returns the signed-in member.
func (s *Session) Staff() (SignIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signIn == nil {
		return SignIn{}, ErrSignedOut
	}
	s.touch()
	return *s.signIn, nil
}

// Authorize checks that token was issued to the member signed in on this
// session.
func (s *Session) Authorize(token string) error {
	s.mu.Lock()
	in := s.signIn
	s.mu.Unlock()
	if in == nil {
		return ErrSignedOut
	}

	claims, err := s.mgr.deps.Tokens.Verify(token)
	if err != nil {
		return err
	}
	if claims.Subject != in.Member.ID {
		return staff.ErrInvalidToken
	}
	return nil
}

// SignOut forgets the signed-in member and re-arms the PIN pad. The order is
// kept.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.signIn == nil {
		s.mu.Unlock()
		return ErrSignedOut
	}
	member := s.signIn.Member
	s.signIn = nil
	s.touch()
	s.mu.Unlock()

	s.pad.Reset()
	s.publish(EventStaffSignedOut, nil)
	s.publishPin()
	zctx.From(ctx).Info("Staff signed out",
		zap.String("terminal_id", s.id),
		zap.String("staff_id", member.ID),
	)
	return nil
}

// onPinComplete authenticates a completed PIN entry. It runs on the pad's
// scheduler goroutine.
func (s *Session) onPinComplete(code string) {
	ctx, cancel := context.WithTimeout(zctx.Base(context.Background(), s.lg), s.mgr.cfg.AuthTimeout)
	defer cancel()

	if until, locked := s.locked(); locked {
		s.lg.Info("PIN entry locked", zap.Time("until", until))
		s.mgr.metrics.signIn(ctx, "locked")
		s.pad.Reset()
		s.publish(EventPinLocked, encode(func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("until", func(e *jx.Encoder) { e.Str(until.UTC().Format(time.RFC3339)) })
			})
		}))
		s.publishPin()
		return
	}

	member, err := s.mgr.deps.Authenticator.Authenticate(ctx, code)
	if err != nil {
		result := "rejected"
		if !errors.Is(err, staff.ErrUnauthorized) {
			result = "error"
			s.lg.Error("PIN sign-in failed", zap.Error(err))
		} else {
			s.reject()
			s.lg.Info("PIN rejected")
		}
		s.mgr.metrics.signIn(ctx, result)
		s.pad.Reset()
		s.publish(EventPinRejected, nil)
		s.publishPin()
		return
	}

	token, expires, err := s.mgr.deps.Tokens.Issue(member, s.remember)
	if err != nil {
		s.lg.Error("Issue staff token", zap.Error(err))
		s.mgr.metrics.signIn(ctx, "error")
		s.pad.Reset()
		s.publish(EventPinRejected, nil)
		s.publishPin()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.signIn = &SignIn{Member: *member, Token: token, Expires: expires}
	s.rejected = 0
	s.touch()
	s.mu.Unlock()

	s.mgr.metrics.signIn(ctx, "ok")
	s.lg.Info("Staff signed in",
		zap.String("staff_id", member.ID),
		zap.String("role", string(member.Role)),
	)
	s.publish(EventStaffSignedIn, encode(func(e *jx.Encoder) { EncodeMember(e, *member) }))
}

// locked reports whether PIN entry is locked after too many wrong PINs.
func (s *Session) locked() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockedUntil, s.mgr.now().Before(s.lockedUntil)
}

// reject counts a wrong PIN, locking entry once the limit is reached.
func (s *Session) reject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
	if s.rejected >= s.mgr.cfg.PinAttempts {
		s.rejected = 0
		s.lockedUntil = s.mgr.now().Add(s.mgr.cfg.PinLockout)
		s.lg.Warn("PIN entry locked after repeated rejections", zap.Time("until", s.lockedUntil))
	}
}

func (s *Session) requireMember() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signIn == nil {
		return ErrSignedOut
	}
	return nil
}

// idle reports whether the session may be swept at now. A remembered
// session stays open while its staff token is valid.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remember && s.signIn != nil && now.Before(s.signIn.Expires) {
		return false
	}
	return now.Sub(s.lastSeen) > ttl
}

func (s *Session) close() {
	s.pad.Close()
	s.mu.Lock()
	s.closed = true
	s.signIn = nil
	s.mu.Unlock()
	s.publish(EventSessionClosed, nil)
}

func (s *Session) activity() {
	s.mu.Lock()
	s.touch()
	s.mu.Unlock()
}

// touch records activity. Callers hold s.mu.
func (s *Session) touch() {
	s.lastSeen = s.mgr.now()
}

// cartView copies the order. Callers hold s.mu.
func (s *Session) cartView() CartView {
	return CartView{
		Lines: s.cart.Lines(),
		Items: s.cart.Items(),
		Total: s.cart.Total(),
	}
}

// publishCart sends the order to the display. Callers hold s.mu.
func (s *Session) publishCart() CartView {
	v := s.cartView()
	s.publish(EventCartUpdated, encode(v.Encode))
	return v
}

func (s *Session) publishPin() pin.State {
	st := s.pad.State()
	s.publish(EventPinUpdated, encode(func(e *jx.Encoder) { EncodePin(e, st, true) }))
	return st
}

func (s *Session) publish(eventType string, payload []byte) {
	s.mgr.deps.Publisher.Publish(s.id, eventType, payload)
}
