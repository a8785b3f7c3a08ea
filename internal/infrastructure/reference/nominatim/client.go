package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	userAgent      = "VendorOnboarding/1.0"
	upstreamLimit  = 10
	maxStreets     = 8
)

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("nominatim status %d: %s", e.code, strings.TrimSpace(e.body))
}

// Client searches OpenStreetMap for streets within an Israeli city. Requests are
// throttled to the public instance policy of one per second.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Option func(*Client)

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithExecutor(e *resilience.Executor) Option {
	return func(c *Client) { c.executor = e }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type place struct {
	Address struct {
		Road string `json:"road"`
	} `json:"address"`
}

func (c *Client) Search(ctx context.Context, city, query string) ([]string, error) {
	city, query = strings.TrimSpace(city), strings.TrimSpace(query)
	if city == "" || query == "" {
		return nil, domain.WrapError(domain.ErrValidationFailed, "search streets", errors.New("city and query are required"))
	}

	var places []place
	call := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		places, err = c.fetch(ctx, city, query)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "nominatim.search", call, classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if resilience.Cancelled(err) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrDependencyUnavailable, "search streets", err)
	}

	seen := make(map[string]struct{}, len(places))
	streets := make([]string, 0, maxStreets)
	for _, p := range places {
		road := strings.TrimSpace(p.Address.Road)
		if road == "" {
			continue
		}
		if _, dup := seen[road]; dup {
			continue
		}
		seen[road] = struct{}{}
		streets = append(streets, road)
		if len(streets) == maxStreets {
			break
		}
	}
	return streets, nil
}

func (c *Client) fetch(ctx context.Context, city, query string) ([]place, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%s, %s, Israel", query, city))
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", fmt.Sprint(upstreamLimit))
	params.Set("countrycodes", "il")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "he")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}
	return places, nil
}

func classify(err error) resilience.Verdict {
	if err == nil || resilience.Cancelled(err) {
		return resilience.Verdict{}
	}
	var se *statusError
	if errors.As(err, &se) {
		transient := resilience.TransientHTTPStatus(se.code)
		return resilience.Verdict{Retry: transient, CountFailure: transient}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	return resilience.Verdict{CountFailure: true}
}
