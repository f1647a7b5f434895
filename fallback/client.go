package fallback

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/dop251/goja-modreg/registry"
)

// request is the shared-state request payload handed from an
// engine-domain caller to the background thread (spec.md §4.7 "Shared
// state").
type request struct {
	version      registry.FallbackVersion
	method       registry.ResolveMethod
	specifier    string
	rawSpecifier string
	referrer     string
	attributes   map[string]string
}

// Client is the single-in-flight fallback service client: exactly one
// background goroutine owns the HTTP connection; engine-domain callers
// rendezvous with it through a mutex/condition-variable pair, mirroring
// FallbackServiceClient's kj::MutexGuarded<SharedState> (spec.md §4.7).
// There is never more than one outstanding request, by construction of
// the single-threaded engine domain that calls TryResolve.
type Client struct {
	mu   sync.Mutex
	cond *sync.Cond

	hasRequest    bool
	inFlight      bool // a caller is inside TryResolve, from submit until it returns
	pending       request
	response      registry.Outcome
	responseReady bool
	shutdown      bool

	rest *resty.Client
	log  *zap.Logger

	baseURL string
}

// New constructs a Client whose background goroutine speaks HTTP to
// baseURL (e.g. "http://localhost:8080"), and starts that goroutine.
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0 // the fallback protocol does its own one-shot disconnect retry
	retryClient.Logger = nil

	rest := resty.New().
		SetTimeout(30 * time.Second).
		SetTransport(retryClient.HTTPClient.Transport).
		// A 301 is a protocol answer (the redirect target handed back to
		// the registry), so it is returned as-is instead of being followed.
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeader("User-Agent", "goja-modreg-fallback/1.0").
		SetHeader("Host", "localhost")

	c := &Client{
		rest:    rest,
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.threadMain()
	return c
}

// Close signals the background goroutine to exit; any in-flight
// TryResolve unblocks with a not-found outcome.
func (c *Client) Close() {
	c.mu.Lock()
	c.shutdown = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// TryResolve submits a resolve request and blocks until the background
// goroutine produces a response (spec.md §4.7 "tryResolve"). It panics if
// called concurrently with another in-flight TryResolve, matching the
// original's KJ_ASSERT("does not support concurrent requests"): the
// engine domain that owns this client is single-threaded per isolate
// (spec.md §5), so overlapping calls indicate a caller bug, not a
// recoverable race.
func (c *Client) TryResolve(version registry.FallbackVersion, method registry.ResolveMethod, specifier, rawSpecifier, referrer string, attributes map[string]string) registry.Outcome {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	if c.hasRequest || c.inFlight {
		c.mu.Unlock()
		panic("fallback: Client does not support concurrent requests")
	}
	c.inFlight = true
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()
	c.pending = request{
		version:      version,
		method:       method,
		specifier:    specifier,
		rawSpecifier: rawSpecifier,
		referrer:     referrer,
		attributes:   attributes,
	}
	c.hasRequest = true
	c.cond.Broadcast()

	for !c.responseReady && !c.shutdown {
		c.cond.Wait()
	}
	if !c.responseReady {
		c.mu.Unlock()
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	out := c.response
	c.responseReady = false
	c.mu.Unlock()
	return out
}

func (c *Client) threadMain() {
	for {
		c.mu.Lock()
		for !c.hasRequest && !c.shutdown {
			c.cond.Wait()
		}
		if c.shutdown {
			c.mu.Unlock()
			return
		}
		req := c.pending
		c.hasRequest = false
		c.mu.Unlock()

		result := c.process(req)

		c.mu.Lock()
		c.response = result
		c.responseReady = true
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

func (c *Client) process(req request) registry.Outcome {
	if req.version == registry.FallbackV1 {
		return c.processV1(req)
	}
	return c.processV2(req)
}

func methodString(m registry.ResolveMethod) string {
	if m == registry.Require {
		return "require"
	}
	return "import"
}

// processV1 builds a GET request with query parameters, preserving the
// original's asymmetric specifier handling: a trailing reserved-prefix
// segment (node:/cloudflare:/workerd:) is sent bare, while anything else
// has its leading "/" stripped before being used as the "actual
// specifier" reported back to handleReturnPayload, even though the raw
// "specifier" query parameter still carries the full original string
// (spec.md §9 open question: preserved bit-for-bit rather than
// "corrected", since callers may depend on the exact wire shape).
func (c *Client) processV1(req request) registry.Outcome {
	actualSpecifier := req.specifier
	prefixed := false
	if idx := strings.LastIndexByte(req.specifier, '/'); idx >= 0 {
		segment := req.specifier[idx+1:]
		if hasAnyReservedPrefix(segment) {
			actualSpecifier = segment
			prefixed = true
		}
	}
	if !prefixed {
		actualSpecifier = strings.TrimPrefix(req.specifier, "/")
	}

	q := url.Values{}
	if prefixed {
		q.Set("specifier", actualSpecifier)
	} else {
		q.Set("specifier", req.specifier)
	}
	q.Set("referrer", req.referrer)
	q.Set("rawSpecifier", req.rawSpecifier)

	reqURL := c.baseURL + "?" + q.Encode()

	payload, redirect, ok := c.doHTTPGet(reqURL, methodString(req.method))
	if !ok {
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	return c.handleReturnPayload(payload, redirect, actualSpecifier)
}

func (c *Client) doHTTPGet(reqURL, method string) (payload string, redirect bool, ok bool) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.rest.R().
			SetHeader("X-Resolve-Method", method).
			SetDoNotParseResponse(false).
			Get(reqURL)
		if err != nil {
			lastErr = err
			if attempt == 0 && isDisconnect(err) {
				continue
			}
			c.log.Error("fallback service request failed", zap.Error(err), zap.String("url", reqURL))
			return "", false, false
		}
		switch resp.StatusCode() {
		case 301:
			loc := resp.Header().Get("Location")
			if loc == "" {
				c.log.Error("fallback service returned a redirect with no location", zap.String("url", reqURL))
				return "", false, false
			}
			return loc, true, true
		case 200:
			return string(resp.Body()), false, true
		default:
			c.log.Error("fallback service failed to fetch module",
				zap.Int("status", resp.StatusCode()), zap.String("url", reqURL))
			return "", false, false
		}
	}
	if lastErr != nil {
		c.log.Error("fallback service request failed after retry", zap.Error(lastErr), zap.String("url", reqURL))
	}
	return "", false, false
}

func (c *Client) processV2(req request) registry.Outcome {
	wr := wireRequest{
		Type:         methodString(req.method),
		Specifier:    req.specifier,
		RawSpecifier: req.rawSpecifier,
		Referrer:     req.referrer,
	}
	for name, value := range req.attributes {
		wr.Attributes = append(wr.Attributes, wireAttribute{Name: name, Value: value})
	}
	body, err := encodeWireRequest(wr)
	if err != nil {
		c.log.Error("fallback service request encode failed", zap.Error(err))
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}

	payload, redirect, ok := c.doHTTPPost(body, uuid.NewString())
	if !ok {
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	return c.handleReturnPayload(payload, redirect, req.specifier)
}

func (c *Client) doHTTPPost(body []byte, correlationID string) (payload string, redirect bool, ok bool) {
	reqURL := c.baseURL + "/"
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.rest.R().
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Request-Id", correlationID).
			SetBody(body).
			Post(reqURL)
		if err != nil {
			lastErr = err
			if attempt == 0 && isDisconnect(err) {
				continue
			}
			c.log.Error("fallback service request failed", zap.Error(err), zap.String("url", reqURL))
			return "", false, false
		}
		switch resp.StatusCode() {
		case 301:
			loc := resp.Header().Get("Location")
			if loc == "" {
				c.log.Error("fallback service returned a redirect with no location", zap.String("url", reqURL))
				return "", false, false
			}
			return loc, true, true
		case 200:
			return string(resp.Body()), false, true
		default:
			c.log.Error("fallback service failed to fetch module",
				zap.Int("status", resp.StatusCode()), zap.String("url", reqURL))
			return "", false, false
		}
	}
	if lastErr != nil {
		c.log.Error("fallback service request failed after retry", zap.Error(lastErr), zap.String("url", reqURL))
	}
	return "", false, false
}

// handleReturnPayload interprets an HTTP response into not-found, module,
// or redirect outcomes (spec.md §4.7, grounded on
// fallback-service.c++'s handleReturnPayload): an empty body means "not
// found", a 301 carries the redirect target as plain text, and anything
// else must decode as a module description whose optional name, if
// present, must match the requested specifier. Every rejection path is
// logged (spec.md:185, spec.md:189): a protocol error is never silently
// swallowed, only ever translated into a not-found outcome.
func (c *Client) handleReturnPayload(payload string, redirect bool, specifier string) registry.Outcome {
	if payload == "" {
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	if redirect {
		return registry.Outcome{Kind: registry.OutcomeRedirect, Redirect: payload}
	}
	m, err := decodeWireModule([]byte(payload), specifier)
	if err != nil {
		c.log.Error("fallback service returned an undecodable module payload",
			zap.Error(err), zap.String("specifier", specifier))
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	if m.Name != "" && m.Name != specifier {
		c.log.Error("fallback service module name does not match requested specifier",
			zap.String("specifier", specifier), zap.String("moduleName", m.Name))
		return registry.Outcome{Kind: registry.OutcomeNotFound}
	}
	m.Name = specifier
	return registry.Outcome{Kind: registry.OutcomeModule, Module: &m}
}

func hasAnyReservedPrefix(s string) bool {
	for _, p := range []string{"node:", "cloudflare:", "workerd:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isDisconnect(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
