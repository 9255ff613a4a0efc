package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/septivank/conso-metering/internal/logging"
	"github.com/septivank/conso-metering/metering"
	"github.com/septivank/conso-metering/token"
	"github.com/septivank/conso-metering/tools/timeparser"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://conso.boris.sh/api"
	DefaultUserAgent = "conso-metering-go"
	DefaultTimeout   = 30 * time.Second
)

// Client queries the Conso API for one usage point.
// It is safe for concurrent use; each call issues exactly one request.
type Client struct {
	token      string
	scope      *token.Scope
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *requestMetrics
	now        func() time.Time
}

type options struct {
	prm        string
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	decoder    token.ClaimsDecoder
	registerer prometheus.Registerer
	now        func() time.Time
}

// Option configures a Client
type Option func(*options)

// WithPRM selects the usage point; it must be granted by the token
func WithPRM(prm string) Option {
	return func(o *options) { o.prm = prm }
}

// WithBaseURL overrides the API root
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(o *options) { o.userAgent = userAgent }
}

// WithTimeout bounds each request when no custom http.Client is given
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDecoder replaces the token claims decoder, e.g. with a verifying one
func WithDecoder(decoder token.ClaimsDecoder) Option {
	return func(o *options) { o.decoder = decoder }
}

// WithRegisterer sets where request metrics are registered.
// The default is prometheus.DefaultRegisterer; nil disables registration.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock sets the time source used for default date ranges
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New resolves the token scope and builds a client.
// Token errors (token.ErrInvalidToken, token.ErrScopeAccessDenied) are returned as-is.
func New(tok string, opts ...Option) (*Client, error) {
	o := options{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
		registerer: prometheus.DefaultRegisterer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	scope, err := token.NewResolver(o.decoder).Resolve(tok, o.prm)
	if err != nil {
		return nil, err
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	return &Client{
		token:      tok,
		scope:      scope,
		baseURL:    strings.TrimRight(o.baseURL, "/"),
		userAgent:  o.userAgent,
		httpClient: httpClient,
		logger:     o.logger,
		metrics:    newRequestMetrics(o.registerer),
		now:        o.now,
	}, nil
}

// PRM returns the usage point requests are issued for
func (c *Client) PRM() string {
	return c.scope.Active()
}

// PRMs returns every usage point the token grants
func (c *Client) PRMs() []string {
	return c.scope.PRMs()
}

// DailyConsumption returns daily energy consumption in Wh
func (c *Client) DailyConsumption(ctx context.Context, start, end time.Time) (*metering.MeteringData, error) {
	return c.Fetch(ctx, metering.DailyConsumption, start, end)
}

// ConsumptionLoadCurve returns 30-minute average consumption power in W
func (c *Client) ConsumptionLoadCurve(ctx context.Context, start, end time.Time) (*metering.MeteringData, error) {
	return c.Fetch(ctx, metering.ConsumptionLoadCurve, start, end)
}

// MaxPower returns daily maximum consumption power in VA
func (c *Client) MaxPower(ctx context.Context, start, end time.Time) (*metering.MeteringData, error) {
	return c.Fetch(ctx, metering.ConsumptionMaxPower, start, end)
}

// DailyProduction returns daily energy production in Wh
func (c *Client) DailyProduction(ctx context.Context, start, end time.Time) (*metering.MeteringData, error) {
	return c.Fetch(ctx, metering.DailyProduction, start, end)
}

// ProductionLoadCurve returns 30-minute average production power in W
func (c *Client) ProductionLoadCurve(ctx context.Context, start, end time.Time) (*metering.MeteringData, error) {
	return c.Fetch(ctx, metering.ProductionLoadCurve, start, end)
}

// Fetch queries one endpoint for [start, end). A zero start defaults to yesterday
// and a zero end to today. Names outside metering.DataTypes fail with
// metering.ErrUnknownDataType before any request is sent.
func (c *Client) Fetch(ctx context.Context, dataType metering.DataType, start, end time.Time) (*metering.MeteringData, error) {
	if _, err := metering.ParseDataType(string(dataType)); err != nil {
		return nil, err
	}
	start, end = c.dateRange(start, end)

	u, err := url.Parse(c.baseURL + "/" + string(dataType))
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}
	q := u.Query()
	q.Set("prm", c.scope.Active())
	q.Set("start", timeparser.FormatDate(start))
	q.Set("end", timeparser.FormatDate(end))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	reqLogger := logging.WithRequestID(c.logger, uuid.NewString())
	reqLogger.Debug("requesting metering data",
		zap.String("data_type", string(dataType)),
		zap.String("start", q.Get("start")),
		zap.String("end", q.Get("end")),
	)

	began := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(string(dataType), 0, time.Since(began))
		reqLogger.Error("request failed", zap.Error(err), zap.String("data_type", string(dataType)))
		return nil, fmt.Errorf("failed to query %s: %w", dataType, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.observe(string(dataType), resp.StatusCode, time.Since(began))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", dataType, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, body)
		reqLogger.Warn("api returned error",
			zap.String("data_type", string(dataType)),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	data, err := metering.Decode(body)
	if err != nil {
		reqLogger.Error("failed to map response", zap.Error(err), zap.String("data_type", string(dataType)))
		return nil, fmt.Errorf("%s: %w", dataType, err)
	}

	if unit := dataType.ExpectedUnit(); data.ReadingType.Unit != unit {
		reqLogger.Warn("unexpected unit",
			zap.String("data_type", string(dataType)),
			zap.String("expected", unit),
			zap.String("got", data.ReadingType.Unit),
		)
	}

	reqLogger.Info("metering data fetched",
		zap.String("data_type", string(dataType)),
		zap.Int("readings", data.Len()),
	)

	return data, nil
}

func (c *Client) dateRange(start, end time.Time) (time.Time, time.Time) {
	if !start.IsZero() && !end.IsZero() {
		return start, end
	}
	y, m, d := c.now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if start.IsZero() {
		start = today.AddDate(0, 0, -1)
	}
	if end.IsZero() {
		end = today
	}
	return start, end
}
