package portal

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bcgov/ago-group-sync/tools"
	"github.com/cenkalti/backoff/v4"
)

const (
	restPath = "/sharing/rest"

	// TokenExpirationMinutes is how long a generated token stays valid.
	TokenExpirationMinutes = 60
)

type Options struct {
	URL      string
	User     string
	Password string
	Insecure bool
	Timeout  time.Duration
	// Retries is the total number of attempts per request, including the first.
	Retries int
}

// Client talks to the portal's sharing REST API. It is not safe for
// concurrent use.
type Client struct {
	portalURL string
	restURL   string
	user      string
	password  string
	retries   int

	http  *http.Client
	token string

	newBackOff func() backoff.BackOff
}

func NewClient(opts Options) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}

	portalURL := strings.TrimRight(opts.URL, "/")
	return &Client{
		portalURL:  portalURL,
		restURL:    portalURL + restPath,
		user:       opts.User,
		password:   opts.Password,
		retries:    retries,
		http:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// Authenticate exchanges the configured credentials for a token used by
// every later call.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{
		"username":   {c.user},
		"password":   {c.password},
		"referer":    {c.portalURL},
		"client":     {"referer"},
		"expiration": {strconv.Itoa(TokenExpirationMinutes)},
		"f":          {"json"},
	}

	var resp struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"`
	}
	if err := c.do(ctx, http.MethodPost, "/generateToken", form, &resp); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrAuth, c.user, err)
	}
	if resp.Token == "" {
		return fmt.Errorf("%w for %s: empty token in response", ErrAuth, c.user)
	}

	c.token = resp.Token
	tools.Log.WithFields(map[string]interface{}{
		"portal":  c.portalURL,
		"user":    c.user,
		"expires": time.UnixMilli(resp.Expires).Format(time.RFC3339),
	}).Debug("Obtained portal token")
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, c.withToken(params), out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, c.withToken(form), out)
}

func (c *Client) withToken(v url.Values) url.Values {
	if v == nil {
		v = url.Values{}
	}
	v.Set("f", "json")
	if c.token != "" {
		v.Set("token", c.token)
	}
	return v
}

// do sends one logical request, retrying transport failures, 429 and 5xx
// responses with exponential backoff. Portal errors in the body are final.
func (c *Client) do(ctx context.Context, method, path string, values url.Values, out any) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.retries-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		body, err := c.send(ctx, method, path, values)
		if err != nil {
			if se, ok := err.(*statusError); ok && !se.transient() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
		}
		if envelope.Error != nil {
			return backoff.Permanent(envelope.Error)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		tools.Log.WithFields(map[string]interface{}{
			"path":    path,
			"attempt": attempt,
			"wait":    wait.String(),
		}).WithError(err).Warn("Portal request failed, retrying")
	}

	return backoff.RetryNotify(op, b, notify)
}

func (c *Client) send(ctx context.Context, method, path string, values url.Values) ([]byte, error) {
	endpoint := c.restURL + path

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+values.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(values.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}
