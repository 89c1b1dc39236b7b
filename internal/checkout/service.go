package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
)

type Backend interface {
	CreateReservation(ctx context.Context, eventID int, items []domain.CartItem) (domain.ReservationSession, error)
	GetReservation(ctx context.Context, token string) (*domain.Reservation, error)
	CreatePayment(ctx context.Context, reservationToken string) (string, error)
}

// TokenStore keeps the one reservation a visitor is checking out.
type TokenStore interface {
	Save(ctx context.Context, sid string, rs domain.ReservationSession) error
	// Load returns domain.ErrNoReservation when nothing is stored.
	Load(ctx context.Context, sid string) (domain.ReservationSession, error)
	Discard(ctx context.Context, sid string) error
}

// PayGuard is the in-flight flag for payment initiation, keyed by reservation token.
type PayGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

const (
	EventReservationCreated   = "reservation.created"
	EventReservationExpired   = "reservation.expired"
	EventReservationCancelled = "reservation.cancelled"
	EventPaymentInitiated     = "payment.initiated"
)

// Event is the payload published for checkout lifecycle changes.
type Event struct {
	Type      string    `json:"type"`
	VisitorID string    `json:"visitorId"`
	Token     string    `json:"token"`
	EventID   int       `json:"eventId,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	At        time.Time `json:"at"`
}

type Service struct {
	api    Backend
	tokens TokenStore
	guard  PayGuard
	events Publisher
	clock  clockwork.Clock
	logger observability.Logger
	// countdown ticks between server re-checks while watching
	refreshEvery int
}

func NewService(api Backend, tokens TokenStore, guard PayGuard, events Publisher, clk clockwork.Clock, logger observability.Logger, refreshEvery int) *Service {
	return &Service{
		api:          api,
		tokens:       tokens,
		guard:        guard,
		events:       events,
		clock:        clk,
		logger:       logger,
		refreshEvery: refreshEvery,
	}
}

// Flow is the checkout view of a live reservation.
type Flow struct {
	Machine     *Machine
	Reservation *domain.Reservation
	Countdown   *Countdown
	ServiceFee  int64
	Total       int64
}

func (f *Flow) State() State { return f.Machine.State() }

// Reserve turns the cart into a server reservation and remembers its token.
func (s *Service) Reserve(ctx context.Context, sid string, ev domain.Event, store *cart.Store) (domain.ReservationSession, error) {
	m := NewMachine()
	if store.EventID() != ev.ID && !store.Empty() {
		return domain.ReservationSession{}, errors.Wrapf(domain.ErrInvalidInput, "cart belongs to event %d", store.EventID())
	}
	if err := cart.CheckTotal(store, ev.MaxTicketsPerUser); err != nil {
		observability.ReservationsCreated.WithLabelValues("rejected").Inc()
		return domain.ReservationSession{}, err
	}
	if err := m.To(StateCreating); err != nil {
		return domain.ReservationSession{}, err
	}

	rs, err := s.api.CreateReservation(ctx, ev.ID, store.Items())
	if err != nil {
		_ = m.To(StateIdle)
		observability.ReservationsCreated.WithLabelValues("failed").Inc()
		return domain.ReservationSession{}, err
	}
	if err := s.tokens.Save(ctx, sid, rs); err != nil {
		_ = m.To(StateIdle)
		return domain.ReservationSession{}, errors.Wrap(err, "store reservation token")
	}
	if err := m.To(StateActive); err != nil {
		return domain.ReservationSession{}, err
	}
	observability.ReservationsCreated.WithLabelValues("created").Inc()

	s.publish(ctx, Event{
		Type:      EventReservationCreated,
		VisitorID: sid,
		Token:     rs.Token,
		EventID:   ev.ID,
		Quantity:  store.TotalQuantity(),
		ExpiresAt: rs.ExpiresAt,
	})
	return rs, nil
}

// Resume loads the stored reservation from the backend. A reservation the
// backend no longer knows, or one whose time ran out, comes back as an
// expired Flow with the token already discarded. An unreachable backend
// yields domain.ErrNoReservation.
func (s *Service) Resume(ctx context.Context, sid string) (*Flow, error) {
	rs, err := s.tokens.Load(ctx, sid)
	if err != nil {
		return nil, err
	}

	res, err := s.api.GetReservation(ctx, rs.Token)
	if backend.IsKind(err, backend.KindNetwork) {
		return nil, errors.Mark(errors.Wrap(err, "load reservation"), domain.ErrNoReservation)
	}
	if err != nil {
		s.logger.WithField("token", rs.Token).WithError(err).Info("reservation no longer available")
		s.expire(ctx, sid, rs)
		return &Flow{Machine: Restore(StateExpired), Countdown: &Countdown{}}, nil
	}

	f := &Flow{
		Machine:     Restore(StateActive),
		Reservation: res,
		Countdown:   NewCountdown(res.ExpiresAt, s.clock.Now()),
		ServiceFee:  domain.ServiceFee(res.Subtotal, res.Event.ServiceFeePercent),
	}
	f.Total = res.Subtotal + f.ServiceFee
	if f.Countdown.Expired() {
		_ = f.Machine.To(StateExpired)
		s.expire(ctx, sid, rs)
	}
	return f, nil
}

// Pay opens a payment for the stored reservation and returns the provider
// redirect. While a previous call for the same reservation is in flight it
// fails with domain.ErrPaymentInFlight without reaching the backend.
func (s *Service) Pay(ctx context.Context, sid string) (string, error) {
	rs, err := s.tokens.Load(ctx, sid)
	if err != nil {
		return "", err
	}
	m := Restore(StateActive)
	if !s.clock.Now().Before(rs.ExpiresAt) {
		_ = m.To(StateExpired)
		s.expire(ctx, sid, rs)
		return "", domain.ErrReservationExpired
	}

	ok, err := s.guard.Acquire(ctx, rs.Token)
	if err != nil {
		return "", errors.Wrap(err, "acquire payment guard")
	}
	if !ok {
		return "", domain.ErrPaymentInFlight
	}
	if err := m.To(StatePaying); err != nil {
		return "", err
	}

	redirect, err := s.api.CreatePayment(ctx, rs.Token)
	switch {
	case backend.IsKind(err, backend.KindConflict):
		// the backend is already processing this reservation; the guard stays held
		return "", errors.Mark(err, domain.ErrPaymentInFlight)
	case err != nil:
		s.release(ctx, rs.Token)
		_ = m.To(StateActive)
		return "", err
	case redirect == "":
		s.release(ctx, rs.Token)
		_ = m.To(StateActive)
		return "", domain.ErrMissingPaymentRedirect
	}

	s.publish(ctx, Event{Type: EventPaymentInitiated, VisitorID: sid, Token: rs.Token, ExpiresAt: rs.ExpiresAt})
	return redirect, nil
}

func (s *Service) Cancel(ctx context.Context, sid string) error {
	rs, err := s.tokens.Load(ctx, sid)
	if errors.Is(err, domain.ErrNoReservation) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.tokens.Discard(ctx, sid); err != nil {
		return errors.Wrap(err, "discard reservation token")
	}
	s.publish(ctx, Event{Type: EventReservationCancelled, VisitorID: sid, Token: rs.Token})
	return nil
}

func (s *Service) Expire(ctx context.Context, sid string) error {
	rs, err := s.tokens.Load(ctx, sid)
	if errors.Is(err, domain.ErrNoReservation) {
		return nil
	}
	if err != nil {
		return err
	}
	s.expire(ctx, sid, rs)
	return nil
}

// Token returns the stored reservation token, or "" when there is none.
func (s *Service) Token(ctx context.Context, sid string) string {
	rs, err := s.tokens.Load(ctx, sid)
	if err != nil {
		return ""
	}
	return rs.Token
}

// Finish forgets the reservation once the payment outcome is known.
func (s *Service) Finish(ctx context.Context, sid string) error {
	return s.tokens.Discard(ctx, sid)
}

type Settlement int

const (
	SettleApproved Settlement = iota
	SettleRejected
	SettleUnresolved
)

// Settle moves a paid-for reservation to its final state. The token is kept
// for approved payments so the tickets can still be loaded by it.
func (s *Service) Settle(ctx context.Context, sid string, outcome Settlement) State {
	m := Restore(StatePaying)
	var path []State
	switch outcome {
	case SettleApproved:
		path = []State{StateApproved}
	case SettleRejected:
		path = []State{StateRejected}
	default:
		path = []State{StatePending, StateUnresolved}
	}
	_ = m.Walk(path...)
	if outcome != SettleApproved {
		if err := s.tokens.Discard(ctx, sid); err != nil {
			s.logger.WithError(err).Warn("discard reservation token")
		}
	}
	return m.State()
}

type refresh struct {
	seq uint64
	res *domain.Reservation
	err error
}

// Watch streams the countdown of the stored reservation to onTick, once per
// second, until it reaches zero or ctx is done. Every refreshEvery ticks the
// backend is asked again; its answer can only shorten the countdown.
func (s *Service) Watch(ctx context.Context, sid string, onTick func(remaining int)) error {
	rs, err := s.tokens.Load(ctx, sid)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	var seq Sequencer
	results := make(chan refresh, 1)
	cd := NewCountdown(rs.ExpiresAt, s.clock.Now())

	onTick(cd.Remaining())
	if cd.Expired() {
		s.expire(ctx, sid, rs)
		return domain.ErrReservationExpired
	}

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.Chan():
			remaining, expired := cd.Tick()
			onTick(remaining)
			if expired {
				s.expire(ctx, sid, rs)
				return domain.ErrReservationExpired
			}
			ticks++
			if s.refreshEvery > 0 && ticks%s.refreshEvery == 0 {
				n := seq.Next()
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := s.api.GetReservation(ctx, rs.Token)
					select {
					case results <- refresh{seq: n, res: res, err: err}:
					case <-ctx.Done():
					}
				}()
			}

		case r := <-results:
			if !seq.Apply(r.seq) {
				continue
			}
			if r.err != nil {
				if backend.IsKind(r.err, backend.KindNetwork) {
					continue
				}
				cd.Stop()
				onTick(0)
				s.expire(ctx, sid, rs)
				return domain.ErrReservationExpired
			}
			if cd.Sync(r.res.ExpiresAt, s.clock.Now()) == 0 {
				onTick(0)
				s.expire(ctx, sid, rs)
				return domain.ErrReservationExpired
			}
		}
	}
}

func (s *Service) expire(ctx context.Context, sid string, rs domain.ReservationSession) {
	if err := s.tokens.Discard(context.WithoutCancel(ctx), sid); err != nil {
		s.logger.WithError(err).Warn("discard expired reservation token")
	}
	s.publish(ctx, Event{Type: EventReservationExpired, VisitorID: sid, Token: rs.Token, ExpiresAt: rs.ExpiresAt})
}

func (s *Service) release(ctx context.Context, token string) {
	if err := s.guard.Release(context.WithoutCancel(ctx), token); err != nil {
		s.logger.WithError(err).Warn("release payment guard")
	}
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev.Type, ev); err != nil {
		s.logger.WithField("event", ev.Type).WithError(err).Warn("publish checkout event")
	}
}
