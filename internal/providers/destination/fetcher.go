package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/config"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sessionproxy/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidURL is returned for destinations that are not absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid destination url")
	// ErrBodyTooLarge is returned by ReadBody when the limit is exceeded
	ErrBodyTooLarge = errors.New("destination body too large")
)

// Options configures a Fetcher
type Options struct {
	Timeout         time.Duration
	RetryMax        int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	RateLimit       float64 // requests per second, 0 = unlimited
	RateBurst       int
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Transport http.RoundTripper // nil uses a clone of http.DefaultTransport
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}

// OptionsFromConfig maps the destination config section onto Options
func OptionsFromConfig(cfg config.DestinationConfig) Options {
	return Options{
		Timeout:         cfg.Timeout.Std(),
		RetryMax:        cfg.RetryMax,
		RetryWaitMin:    cfg.RetryWaitMin.Std(),
		RetryWaitMax:    cfg.RetryWaitMax.Std(),
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout.Std(),
	}
}

// Request is a request to a destination
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Basic credentials, sent when Username is set
	Username string
	Password string
}

// Fetcher performs destination requests
type Fetcher struct {
	client   *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.HostBreakers
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

type noRetryKey struct{}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("destination")

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		// Content-Encoding is handled by the proxy, never by the transport
		t.DisableCompression = true
		transport = t
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: transport}
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = leveledLogger{logger.Sugar()}
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	breakers := resilience.NewHostBreakers(resilience.Settings{
		Threshold: opts.BreakerFailures,
		Cooldown:  opts.BreakerTimeout,
		OnChange: func(host string, from, to resilience.State) {
			logger.Warn("destination breaker state changed",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Fetcher{
		client:   client,
		limiter:  limiter,
		breakers: breakers,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// checkRetry retries transport errors only. A response of any status is the
// destination's answer and goes back to the browser.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if noRetry, _ := ctx.Value(noRetryKey{}).(bool); noRetry {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Fetch sends req and returns the destination response with its body
// unread. The caller must close the body.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*http.Response, error) {
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, req.URL)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if !isIdempotent(method) {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	r := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if req.Header != nil {
		r.Header = req.Header.Clone()
	}
	r.Header.Del("Host")
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}
	if req.Username != "" {
		r.SetBasicAuth(req.Username, req.Password)
	}

	timer := monitoring.NewTimer(f.metrics)
	var resp *resty.Response
	err = f.breakers.Do(target.Host, func() error {
		var execErr error
		resp, execErr = r.Execute(method, req.URL)
		return execErr
	})

	if err != nil {
		timer.Stop(0, failureReason(err))
		if resp != nil && resp.RawBody() != nil {
			_ = resp.RawBody().Close()
		}
		f.logger.Debug("destination request failed",
			zap.String("method", method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}

	raw := resp.RawResponse
	elapsed := timer.Stop(raw.StatusCode, "")
	f.logger.Debug("destination responded",
		zap.String("method", method),
		zap.String("url", req.URL),
		zap.Int("status", raw.StatusCode),
		zap.Duration("duration", elapsed),
	)
	return raw, nil
}

// BreakerStates returns the breaker state per destination host
func (f *Fetcher) BreakerStates() map[string]string {
	states := f.breakers.States()
	out := make(map[string]string, len(states))
	for host, state := range states {
		out[host] = state.String()
	}
	return out
}

// ReadBody reads at most limit bytes of body. When the body is larger it
// returns the bytes read so far together with ErrBodyTooLarge; the rest of
// the body stays unread. A limit <= 0 reads everything.
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > limit {
		return data, ErrBodyTooLarge
	}
	return data, nil
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete, http.MethodTrace:
		return true
	}
	return false
}

func failureReason(err error) string {
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "transport"
	}
}

// leveledLogger adapts a zap sugared logger to retryablehttp
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
