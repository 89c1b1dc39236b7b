package payment

import (
	"context"
	"time"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultAttempts = 20
)

const (
	MsgMissingID       = "The payment identifier was not found."
	MsgApprovedInvalid = "The payment was approved, but the reservation expired or there was no availability left. If you were charged, our team will review the case and issue a refund."
	MsgRejected        = "The payment was rejected or cancelled."
	MsgStillProcessing = "The payment is still being processed. You can check its status in your payment provider account."
	MsgUnconfirmed     = "We could not confirm the payment status."
	MsgConnection      = "Connection error while checking the payment."
	MsgStatusFailed    = "We could not verify the payment status."
)

type StatusSource interface {
	PaymentStatus(ctx context.Context, paymentID string) (domain.PaymentStatus, error)
}

type Outcome int

const (
	OutcomeApproved Outcome = iota
	OutcomeApprovedInvalid
	OutcomeFailed
	OutcomeInconclusive
	OutcomeError
	OutcomeConnection
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeApprovedInvalid:
		return "approved_invalid"
	case OutcomeFailed:
		return "failed"
	case OutcomeInconclusive:
		return "inconclusive"
	case OutcomeError:
		return "error"
	case OutcomeConnection:
		return "connection"
	default:
		return "abandoned"
	}
}

type Result struct {
	Outcome  Outcome
	Status   domain.PaymentStatus
	Attempts int
	Message  string
}

// Final reports whether the outcome settles the checkout. Errors talking to
// the backend leave it open so the page can be reloaded.
func (r Result) Final() bool {
	switch r.Outcome {
	case OutcomeApproved, OutcomeApprovedInvalid, OutcomeFailed, OutcomeInconclusive:
		return true
	}
	return false
}

func (r Result) Settlement() checkout.Settlement {
	switch r.Outcome {
	case OutcomeApproved:
		return checkout.SettleApproved
	case OutcomeApprovedInvalid, OutcomeFailed:
		return checkout.SettleRejected
	default:
		return checkout.SettleUnresolved
	}
}

// Poller asks the backend for a payment's status on a fixed interval until it
// is terminal or the attempt budget runs out.
type Poller struct {
	source   StatusSource
	clock    clockwork.Clock
	interval time.Duration
	attempts int
	logger   observability.Logger
}

func NewPoller(source StatusSource, clk clockwork.Clock, interval time.Duration, attempts int, logger observability.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Poller{source: source, clock: clk, interval: interval, attempts: attempts, logger: logger}
}

// Poll runs one polling loop. The first status request goes out one interval
// after the call; cancelling ctx abandons the loop.
func (p *Poller) Poll(ctx context.Context, paymentID string) Result {
	if paymentID == "" {
		return p.finish(paymentID, Result{Outcome: OutcomeError, Message: MsgMissingID})
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return p.finish(paymentID, Result{Outcome: OutcomeAbandoned, Attempts: attempt - 1})
		case <-ticker.Chan():
		}

		status, err := p.source.PaymentStatus(ctx, paymentID)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return p.finish(paymentID, Result{Outcome: OutcomeAbandoned, Attempts: attempt})
			case backend.IsKind(err, backend.KindNetwork):
				return p.finish(paymentID, Result{Outcome: OutcomeConnection, Attempts: attempt, Message: MsgConnection})
			default:
				msg := backend.ServerMessage(err)
				if msg == "" {
					msg = MsgStatusFailed
				}
				return p.finish(paymentID, Result{Outcome: OutcomeError, Attempts: attempt, Message: msg})
			}
		}

		res := Result{Status: status, Attempts: attempt}
		switch status {
		case domain.PaymentApproved:
			res.Outcome = OutcomeApproved
			return p.finish(paymentID, res)
		case domain.PaymentApprovedInvalid:
			res.Outcome, res.Message = OutcomeApprovedInvalid, MsgApprovedInvalid
			return p.finish(paymentID, res)
		case domain.PaymentRejected, domain.PaymentCancelled:
			res.Outcome, res.Message = OutcomeFailed, MsgRejected
			return p.finish(paymentID, res)
		}

		if attempt >= p.attempts {
			res.Outcome, res.Message = OutcomeInconclusive, MsgUnconfirmed
			if status == domain.PaymentPending || status == domain.PaymentInProcess {
				res.Message = MsgStillProcessing
			}
			return p.finish(paymentID, res)
		}
	}
}

func (p *Poller) finish(paymentID string, r Result) Result {
	observability.PaymentPollAttempts.Observe(float64(r.Attempts))
	observability.PaymentOutcomes.WithLabelValues(r.Outcome.String()).Inc()
	p.logger.WithField("payment_id", paymentID).
		WithField("outcome", r.Outcome.String()).
		WithField("status", string(r.Status)).
		WithField("attempts", r.Attempts).
		Info("payment poll finished")
	return r
}
