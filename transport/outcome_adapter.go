package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lti-bridge/core"
)

const defaultOutcomeClientTimeout = 30 * time.Second
const defaultOutcomeResponseBodyLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OutcomeAdapter posts signed POX grade envelopes to the consumer's
// outcome service over HTTP.
type OutcomeAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewOutcomeAdapter(client HTTPDoer) *OutcomeAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultOutcomeClientTimeout}
	}
	return &OutcomeAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultOutcomeResponseBodyLimit,
	}
}

func (a *OutcomeAdapter) Post(ctx context.Context, req core.OutcomeRequest) (core.OutcomeResponse, error) {
	if a == nil || a.Client == nil {
		return core.OutcomeResponse{}, transportError(
			"transport: outcome adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return core.OutcomeResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid outcome service url",
			http.StatusBadRequest,
			map[string]any{"url": strings.TrimSpace(req.URL)},
		)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return core.OutcomeResponse{}, transportError(
			"transport: outcome service url must be absolute",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"url": parsedURL.String()},
		)
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return core.OutcomeResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create outcome request",
			http.StatusBadRequest,
			map[string]any{"url": parsedURL.String()},
		)
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "application/xml"
	}
	httpReq.Header.Set("Content-Type", contentType)
	if authorization := strings.TrimSpace(req.Authorization); authorization != "" {
		httpReq.Header.Set("Authorization", authorization)
	}

	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.OutcomeResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute outcome request",
			http.StatusBadGateway,
			map[string]any{"url": parsedURL.String()},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := a.MaxResponseBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultOutcomeResponseBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.OutcomeResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read outcome response body",
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode},
		)
	}
	if int64(len(body)) > maxBodyBytes {
		return core.OutcomeResponse{}, transportError(
			fmt.Sprintf("transport: outcome response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode, "response_limit_b": maxBodyBytes},
		)
	}

	return core.OutcomeResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
	}, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.OutcomePoster = (*OutcomeAdapter)(nil)
