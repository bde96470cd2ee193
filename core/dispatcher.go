package core

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrGradeOutOfRange rejects grades outside [0.0, 1.0] before any state is
// touched.
var ErrGradeOutOfRange = goerrors.New(
	"core: grade must be between 0.0 and 1.0",
	goerrors.CategoryBadInput,
).WithCode(http.StatusBadRequest).WithTextCode(BridgeErrorGradeRange)

// GradingDispatcher drives one deferred grade submission end to end. The
// pipeline is a hard gate: each stage runs only when every prior stage
// succeeded, and the pending record is consumed exactly once regardless of
// downstream outcome. A submission that fails after the consume is not
// retried and the record is not restored.
type GradingDispatcher struct {
	Config      Config
	Callbacks   CallbackStore
	Credentials CredentialStore
	Signer      *RequestSigner
	Poster      OutcomePoster
	Throttle    ThrottlePolicy
	Metrics     MetricsRecorder
	Logger      Logger
	Now         func() time.Time
}

func NewGradingDispatcher(cfg Config, callbacks CallbackStore, credentials CredentialStore, poster OutcomePoster) *GradingDispatcher {
	return &GradingDispatcher{
		Config:      cfg,
		Callbacks:   callbacks,
		Credentials: credentials,
		Signer:      NewRequestSigner(),
		Poster:      poster,
		Metrics:     NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SubmitGrade performs the grading callback for one inbound request:
// parse and range check the grade, consume the pending record, build and
// sign the POX body, POST it, and scan the response for the provider's
// success marker.
func (d *GradingDispatcher) SubmitGrade(ctx context.Context, params LaunchParams) (GradeSubmission, error) {
	if d == nil {
		return GradeSubmission{}, fmt.Errorf("core: grading dispatcher is not configured")
	}
	start := d.now()

	grade, err := parseGrade(params.Get(ParamGrade))
	if err != nil {
		return GradeSubmission{}, err
	}

	resultID := params.Get(ParamResultSourcedID)
	record, err := d.consume(ctx, resultID)
	if err != nil {
		return GradeSubmission{}, err
	}

	submission := GradeSubmission{
		ResultID:    record.ResultID,
		Grade:       grade,
		ReturnURL:   d.resolveReturnURL(params, record),
		SubmittedAt: start,
	}

	cred, err := d.credential(ctx, record.ConsumerKey)
	if err != nil {
		return submission, err
	}

	body, messageID, err := BuildReplaceResultEnvelope(record.ResultID, grade)
	if err != nil {
		return submission, goerrors.Wrap(err, goerrors.CategoryInternal, "core: build outcome envelope").
			WithTextCode(BridgeErrorInternal)
	}
	submission.MessageID = messageID

	signed, err := d.Signer.Sign(http.MethodPost, record.OutcomeServiceURL, map[string]string{
		ParamBodyHash: BodyHash(body),
	}, cred)
	if err != nil {
		return submission, goerrors.Wrap(err, goerrors.CategoryInternal, "core: sign outcome request").
			WithTextCode(BridgeErrorInternal)
	}

	if d.Throttle != nil {
		if err := d.Throttle.BeforeSubmit(ctx, record.ConsumerKey); err != nil {
			return submission, ensureBridgeErrorEnvelope(bridgeErrorMapper(err))
		}
	}

	res, err := d.post(ctx, OutcomeRequest{
		URL:           record.OutcomeServiceURL,
		Body:          body,
		Authorization: signed.AuthorizationHeader(),
		ContentType:   "application/xml",
		Timeout:       d.Config.OutcomeTimeout(),
	})
	d.observeSubmit(ctx, record.ConsumerKey, res, err, start)
	if err != nil {
		return submission, err
	}
	submission.ResponseBody = string(res.Body)

	if !OutcomeAccepted(res.Body, d.Config.Outcome.SuccessMarker) {
		return submission, goerrors.New(
			fmt.Sprintf("core: outcome service did not acknowledge result %s", record.ResultID),
			goerrors.CategoryOperation,
		).WithCode(http.StatusBadGateway).WithTextCode(BridgeErrorOutcomeRejected)
	}
	return submission, nil
}

func (d *GradingDispatcher) consume(ctx context.Context, resultID string) (PendingCallback, error) {
	if d.Callbacks == nil {
		return PendingCallback{}, fmt.Errorf("core: callback store is not configured")
	}
	record, err := d.Callbacks.Consume(ctx, resultID)
	if err != nil {
		return PendingCallback{}, ensureBridgeErrorEnvelope(bridgeErrorMapper(err))
	}
	if record.OutcomeServiceURL == "" {
		return PendingCallback{}, goerrors.New(
			fmt.Sprintf("core: pending callback %s has no outcome service url", record.ResultID),
			goerrors.CategoryInternal,
		).WithTextCode(BridgeErrorInternal)
	}
	return record, nil
}

func (d *GradingDispatcher) credential(ctx context.Context, consumerKey string) (ConsumerCredential, error) {
	if d.Credentials == nil || consumerKey == "" {
		// Unsigned outbound mode: the provider accepted unsigned launches,
		// the outcome POST still carries a signature with an empty secret.
		return ConsumerCredential{ConsumerKey: consumerKey}, nil
	}
	secret, err := d.Credentials.LookupSecret(ctx, consumerKey)
	if err != nil {
		return ConsumerCredential{}, ensureBridgeErrorEnvelope(bridgeErrorMapper(err))
	}
	return ConsumerCredential{ConsumerKey: consumerKey, ConsumerSecret: secret}, nil
}

func (d *GradingDispatcher) post(ctx context.Context, req OutcomeRequest) (OutcomeResponse, error) {
	if d.Poster == nil {
		return OutcomeResponse{}, goerrors.New(
			"core: outcome poster is not configured",
			goerrors.CategoryInternal,
		).WithTextCode(BridgeErrorInternal)
	}
	res, err := d.Poster.Post(ctx, req)
	if err != nil {
		return OutcomeResponse{}, goerrors.Wrap(err, goerrors.CategoryExternal, "core: outcome service post failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(BridgeErrorOutcomeTransport)
	}
	return res, nil
}

func (d *GradingDispatcher) resolveReturnURL(params LaunchParams, record PendingCallback) string {
	if url := params.ReturnURL(); url != "" {
		return url
	}
	return record.ReturnURL
}

func (d *GradingDispatcher) observeSubmit(ctx context.Context, consumerKey string, res OutcomeResponse, err error, start time.Time) {
	if d.Throttle != nil && err == nil {
		_ = d.Throttle.AfterSubmit(ctx, consumerKey, res)
	}
	if d.Metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tags := map[string]string{"consumer_key": consumerKey, "outcome": outcome}
	d.Metrics.IncCounter(ctx, "ltibridge.outcome.post", 1, tags)
	d.Metrics.ObserveHistogram(ctx, "ltibridge.outcome.post.duration_ms",
		float64(d.now().Sub(start).Milliseconds()), tags)
}

func (d *GradingDispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func parseGrade(raw string) (float64, error) {
	if raw == "" {
		return 0, goerrors.New(
			fmt.Sprintf("core: %s is required", ParamGrade),
			goerrors.CategoryBadInput,
		).WithCode(http.StatusBadRequest).WithTextCode(BridgeErrorGradeRange)
	}
	grade, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, goerrors.New(
			fmt.Sprintf("core: invalid %s value %q", ParamGrade, raw),
			goerrors.CategoryBadInput,
		).WithCode(http.StatusBadRequest).WithTextCode(BridgeErrorGradeRange)
	}
	if !ValidGrade(grade) {
		return 0, ErrGradeOutOfRange
	}
	return grade, nil
}
