package inbound

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lti-bridge/core"
)

const defaultRequestBodyLimit int64 = 1 << 20 // 1 MiB

// Request is the decoded inbound HTTP request at the bridge boundary.
type Request struct {
	Method  string
	URL     string
	Form    url.Values
	Headers map[string]string
	RawBody []byte
}

// Result is what the boundary renders back to the tool consumer's browser.
type Result struct {
	StatusCode  int
	RedirectURL string
	Body        string
	Metadata    map[string]any
}

// BridgeService is the subset of the orchestrator the dispatcher needs.
type BridgeService interface {
	HandleRequest(ctx context.Context, method string, requestURL string, params core.LaunchParams) (core.RequestOutcome, error)
}

// Dispatcher turns decoded HTTP requests into orchestrator calls and
// renders the outcome: a survey redirect for launches, a return redirect
// (or plain confirmation) for grading callbacks.
type Dispatcher struct {
	Service BridgeService
	Logger  core.Logger
}

func NewDispatcher(service BridgeService) *Dispatcher {
	return &Dispatcher{Service: service}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if d == nil || d.Service == nil {
		return Result{}, inboundInternal("inbound: dispatcher requires a service", nil)
	}
	requestURL := strings.TrimSpace(req.URL)
	if requestURL == "" {
		return Result{}, inboundBadInput("inbound: request url is required", nil)
	}
	params := paramsFromForm(req.Form)
	if len(params) == 0 {
		return Result{}, inboundBadInput("inbound: request carries no parameters", map[string]any{
			"url": requestURL,
		})
	}

	outcome, err := d.Service.HandleRequest(ctx, req.Method, requestURL, params)
	if err != nil {
		if errorTextCode(err) == core.BridgeErrorNoPendingCallback {
			// A grading callback with no registered record is skipped, not
			// failed. Duplicate deliveries land here after the first consume.
			return Result{
				StatusCode: http.StatusOK,
				Body:       "no grade submitted",
				Metadata: map[string]any{
					"kind":    "grading_callback",
					"skipped": true,
				},
			}, nil
		}
		return Result{}, inboundWrapError(
			err,
			errorCategory(err),
			"inbound: request handling failed",
			errorStatus(err),
			errorTextCode(err),
			map[string]any{"url": requestURL, "kind": string(outcome.Kind)},
		)
	}

	switch outcome.Kind {
	case core.RequestKindGradingCallback:
		return renderGradeResult(outcome.Grade), nil
	default:
		return Result{
			StatusCode:  http.StatusFound,
			RedirectURL: outcome.Launch.RedirectURL,
			Metadata: map[string]any{
				"kind":                "launch",
				"callback_registered": outcome.Launch.CallbackRegistered,
			},
		}, nil
	}
}

// Handler adapts the dispatcher to net/http. Form decoding failures and
// handler errors are rendered with the taxonomy status code and text code.
func (d *Dispatcher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, defaultRequestBodyLimit)
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, inboundBadInput("inbound: read request body", nil))
			return
		}
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			writeError(w, inboundBadInput("inbound: decode form body", nil))
			return
		}
		for key, values := range r.URL.Query() {
			if !form.Has(key) {
				form[key] = values
			}
		}

		result, err := d.Dispatch(r.Context(), Request{
			Method:  r.Method,
			URL:     requestURL(r),
			Form:    form,
			Headers: flattenHeaders(r.Header),
			RawBody: raw,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if result.RedirectURL != "" {
			http.Redirect(w, r, result.RedirectURL, result.StatusCode)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(result.StatusCode)
		_, _ = io.WriteString(w, result.Body)
	})
}

func renderGradeResult(grade core.GradeSubmission) Result {
	metadata := map[string]any{
		"kind":       "grading_callback",
		"result_id":  grade.ResultID,
		"message_id": grade.MessageID,
	}
	if grade.ReturnURL != "" {
		return Result{
			StatusCode:  http.StatusFound,
			RedirectURL: grade.ReturnURL,
			Metadata:    metadata,
		}
	}
	return Result{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("grade for %s submitted", grade.ResultID),
		Metadata:   metadata,
	}
}

func paramsFromForm(form url.Values) core.LaunchParams {
	if len(form) == 0 {
		return core.LaunchParams{}
	}
	params := make(core.LaunchParams, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	return params
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		scheme = forwarded
	}
	// The signature base string covers path but not the form body's query
	// duplicates; strip the query since parameters already joined the set.
	return scheme + "://" + r.Host + r.URL.Path
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	textCode := errorTextCode(err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, textCode)
}

func errorStatus(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

func errorTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
		return richErr.TextCode
	}
	return core.BridgeErrorInternal
}

func errorCategory(err error) goerrors.Category {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category != "" {
		return richErr.Category
	}
	return goerrors.CategoryInternal
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
