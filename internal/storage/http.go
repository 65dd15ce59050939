package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// StatusError is returned when the object endpoint answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("object store returned status %d: %s", e.Code, e.Body)
}

// HTTPConfig configures an HTTPStore
type HTTPConfig struct {
	// Base URL; objects are PUT to <Endpoint>/<bucket>/<key>
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Timeout         time.Duration
}

// HTTPStore uploads objects with HTTP PUT to an S3-style endpoint.
type HTTPStore struct {
	client   *fasthttp.Client
	endpoint string
	auth     string
	timeout  time.Duration
	closed   atomic.Bool
}

// NewHTTPStore validates the endpoint and builds the client
func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("http store: invalid endpoint %q", cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &HTTPStore{
		client: &fasthttp.Client{
			Name:                "blobship",
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		timeout:  timeout,
	}

	if cfg.AccessKeyID != "" {
		creds := cfg.AccessKeyID + ":" + cfg.AccessKeySecret
		s.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	}

	return s, nil
}

// PutObject uploads data in one request
func (s *HTTPStore) PutObject(ctx context.Context, bucket, key string, data []byte, meta Metadata) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if bucket == "" || key == "" {
		return fmt.Errorf("%w: %q/%q", ErrInvalidKey, bucket, key)
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.objectURL(bucket, key))
	req.Header.SetMethod(fasthttp.MethodPut)
	req.Header.SetContentType(meta.ContentType)
	if meta.ContentEncoding != "" {
		req.Header.Set("Content-Encoding", meta.ContentEncoding)
	}
	if s.auth != "" {
		req.Header.Set("Authorization", s.auth)
	}
	req.SetBody(data)

	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return fmt.Errorf("put %s: %w", key, context.DeadlineExceeded)
		}
		return fmt.Errorf("put %s: %w", key, err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		body := resp.Body()
		if len(body) > 512 {
			body = body[:512]
		}
		return &StatusError{Code: code, Body: string(body)}
	}

	return nil
}

func (s *HTTPStore) objectURL(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.endpoint + "/" + url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

// Close releases idle connections
func (s *HTTPStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.client.CloseIdleConnections()
	return nil
}
