package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/logger"
)

const (
	// DefaultTimeout leaves room for a backend waking up from a cold start.
	DefaultTimeout = 60 * time.Second

	userAgent       = "spigell/resume-match"
	contentTypeJSON = "application/json"
	requestIDHeader = "X-Request-ID"

	defaultMaxLogLength = 200

	// DefaultMaxBodySize bounds a decoded response body, reports included.
	DefaultMaxBodySize = 64 << 20

	msgRejected = "invalid email or password"
)

type Client struct {
	baseURL    string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration
	// OnUnauthorized runs once for every 401 answer to a call that carried a
	// credential, before the error is returned.
	OnUnauthorized func()
	MaxLogLength   int
	MaxBodySize    int64
}

// Options describes a single call. JSON takes precedence over Body.
type Options struct {
	Method      string
	JSON        any
	Body        io.Reader
	ContentType string
	Headers     http.Header
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Data is the decoded body when it is well-formed JSON, nil otherwise.
	Data any
}

func New(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: baseURL,
		logger:  logger,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		UserAgent:    userAgent,
		Timeout:      DefaultTimeout,
		MaxLogLength: defaultMaxLogLength,
		MaxBodySize:  DefaultMaxBodySize,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path against the configured base address.
func (c *Client) URL(path string) string {
	return JoinURL(c.baseURL, path)
}

// Call issues a request against the base address. The credential is attached
// as a bearer token when not empty. Errors are always *apierr.Error.
func (c *Client) Call(ctx context.Context, path string, opts *Options, credential string) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, path, opts, credential)
	if err != nil {
		return nil, apierr.Validation(fmt.Sprintf("building request: %v", err))
	}

	reqID := req.Header.Get(requestIDHeader)
	c.logger.Debug("make request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", reqID),
		zap.Bool("authenticated", credential != ""),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.FromContext(ctx, err)
		}
		return nil, apierr.Network(err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp, c.MaxBodySize)
	if errors.Is(err, errBodyTooLarge) {
		return nil, apierr.Malformed(err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.FromContext(ctx, err)
		}
		return nil, apierr.Network(fmt.Errorf("reading response: %w", err))
	}

	c.logger.Debug("got response",
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Int("length", len(body)),
		zap.String("preview", logger.TruncateForLog(string(body), c.MaxLogLength)),
	)

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}

	data, decodeErr := decodeJSON(body)
	if decodeErr == nil {
		out.Data = data
	}

	// Without a credential a 401 means the submitted login data was wrong,
	// not that a session expired.
	if resp.StatusCode == http.StatusUnauthorized && credential == "" {
		msg := serviceMessage(out.Data)
		if msg == "" {
			msg = msgRejected
		}
		return out, apierr.Service(resp.StatusCode, msg)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("authentication rejected by the service", zap.String("request_id", reqID))
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return out, apierr.AuthExpired(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, apierr.Service(resp.StatusCode, serviceMessage(out.Data))
	}

	if decodeErr != nil && isJSON(resp.Header) {
		return out, apierr.Malformed(decodeErr)
	}

	return out, nil
}

func (c *Client) newRequest(ctx context.Context, path string, opts *Options, credential string) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	body := opts.Body
	contentType := opts.ContentType
	if opts.JSON != nil {
		payload, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
		contentType = contentTypeJSON
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, err
	}

	for key, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return setHeaders(req, contentType, credential, c.UserAgent), nil
}

func setHeaders(req *http.Request, contentType, credential, agent string) *http.Request {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if credential != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", credential))
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", agent)
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.New().String())
	}

	return req
}
