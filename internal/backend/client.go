package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blacknight/storefront/internal/observability"
	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionCookie is the cookie the backend issues on login and expects back.
const SessionCookie = "token"

// Client talks to the ticketing REST backend. The backend is authoritative
// for stock, reservations, payments, tickets and sessions.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

func New(baseURL string, timeout time.Duration, logger observability.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "backend",
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			// only transport and 5xx failures say anything about backend health;
			// a caller that gave up says nothing either way
			IsSuccessful: func(err error) bool {
				if err == nil || Abandoned(err) {
					return true
				}
				k := KindOf(err)
				return k != KindNetwork && k != KindServer
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithField("breaker", name).WithField("from", from.String()).Warn("circuit breaker now " + to.String())
			},
		}),
		logger: logger,
	}
}

type credentialsKey struct{}

// WithCredentials attaches the visitor's backend session token to ctx; every
// call made with that ctx forwards it.
func WithCredentials(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialsKey{}, token)
}

func CredentialsFrom(ctx context.Context) string {
	token, _ := ctx.Value(credentialsKey{}).(string)
	return token
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) cookie(name string) *http.Cookie {
	for _, c := range (&http.Response{Header: r.header}).Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in interface{}, opts ...requestOption) (*response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s request", op)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", op)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := CredentialsFrom(ctx); token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &Error{Op: op, Kind: KindNetwork, Err: err, Canceled: ctx.Err() != nil}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Op: op, Kind: KindNetwork, Status: resp.StatusCode, Err: err, Canceled: ctx.Err() != nil}
		}
		r := &response{status: resp.StatusCode, header: resp.Header, body: data}
		if resp.StatusCode >= 400 {
			return nil, &Error{Op: op, Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: errorMessage(data)}
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &Error{Op: op, Kind: KindNetwork, Err: err}
	}

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	observability.BackendCallDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.WithField("op", op).WithField("outcome", outcome).Debug("backend call failed")
		return nil, err
	}
	return out.(*response), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}, opts ...requestOption) error {
	resp, err := c.roundTrip(ctx, op, method, path, in, opts...)
	if err != nil {
		return err
	}
	return decode(op, resp, out)
}

func decode(op string, resp *response, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &Error{Op: op, Kind: KindServer, Status: resp.status, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from a failed response.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
