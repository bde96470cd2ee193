package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type stubOutcomePoster struct {
	requests  []OutcomeRequest
	response  OutcomeResponse
	err       error
	responses []OutcomeResponse
}

func (p *stubOutcomePoster) Post(_ context.Context, req OutcomeRequest) (OutcomeResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return OutcomeResponse{}, p.err
	}
	if len(p.responses) > 0 {
		res := p.responses[0]
		p.responses = p.responses[1:]
		return res, nil
	}
	return p.response, nil
}

func acceptedResponse() OutcomeResponse {
	return OutcomeResponse{
		StatusCode: 200,
		Body:       []byte("<imsx_codeMajor>success</imsx_codeMajor>"),
	}
}

func newTestDispatcher(poster OutcomePoster) (*GradingDispatcher, *MemoryCallbackStore) {
	cfg := DefaultConfig()
	store := NewMemoryCallbackStore(0)
	credentials := NewMemoryCredentialStore(map[string]string{"consumer-1": "s3cret"})
	dispatcher := NewGradingDispatcher(cfg, store, credentials, poster)
	return dispatcher, store
}

func gradingParams(resultID string, grade string) LaunchParams {
	return LaunchParams{
		ParamResultSourcedID: resultID,
		ParamGrade:           grade,
		ParamConsumerKey:     "consumer-1",
	}
}

func registerPending(t *testing.T, store *MemoryCallbackStore, resultID string) {
	t.Helper()
	if _, err := store.Register(context.Background(), PendingCallback{
		ResultID:          resultID,
		OutcomeServiceURL: "https://lms.example.com/outcomes",
		ConsumerKey:       "consumer-1",
		ReturnURL:         "https://lms.example.com/return",
	}); err != nil {
		t.Fatalf("register pending: %v", err)
	}
}

func TestGradingDispatcher_SubmitGradeSuccess(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	dispatcher, store := newTestDispatcher(poster)
	registerPending(t, store, "sourced-1")

	submission, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-1", "0.85"))
	if err != nil {
		t.Fatalf("submit grade: %v", err)
	}
	if submission.ResultID != "sourced-1" {
		t.Fatalf("unexpected result id %q", submission.ResultID)
	}
	if submission.MessageID == "" {
		t.Fatalf("expected a message identifier")
	}
	if submission.ReturnURL != "https://lms.example.com/return" {
		t.Fatalf("unexpected return url %q", submission.ReturnURL)
	}

	if len(poster.requests) != 1 {
		t.Fatalf("expected one outcome post, got %d", len(poster.requests))
	}
	req := poster.requests[0]
	if req.URL != "https://lms.example.com/outcomes" {
		t.Fatalf("unexpected outcome url %q", req.URL)
	}
	if req.ContentType != "application/xml" {
		t.Fatalf("unexpected content type %q", req.ContentType)
	}
	if !strings.Contains(string(req.Body), "<textString>0.9</textString>") {
		t.Fatalf("expected half-up formatted grade in body: %s", req.Body)
	}
	if !strings.Contains(req.Authorization, "oauth_body_hash") {
		t.Fatalf("expected oauth_body_hash in authorization header: %q", req.Authorization)
	}
	if !strings.Contains(req.Authorization, "oauth_signature") {
		t.Fatalf("expected oauth_signature in authorization header: %q", req.Authorization)
	}
}

func TestGradingDispatcher_BoundaryGradesAccepted(t *testing.T) {
	for _, grade := range []string{"0", "0.0", "1", "1.0"} {
		poster := &stubOutcomePoster{response: acceptedResponse()}
		dispatcher, store := newTestDispatcher(poster)
		registerPending(t, store, "sourced-b")

		if _, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-b", grade)); err != nil {
			t.Fatalf("submit boundary grade %s: %v", grade, err)
		}
	}
}

func TestGradingDispatcher_GradeOutOfRangeBeforeConsume(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	dispatcher, store := newTestDispatcher(poster)
	registerPending(t, store, "sourced-2")

	for _, grade := range []string{"-0.1", "1.1", "abc", ""} {
		if _, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-2", grade)); err == nil {
			t.Fatalf("expected grade %q to be rejected", grade)
		}
	}

	// The range check runs before the consume, the record must survive.
	if _, err := store.Consume(context.Background(), "sourced-2"); err != nil {
		t.Fatalf("expected pending record to survive rejected grades: %v", err)
	}
	if len(poster.requests) != 0 {
		t.Fatalf("expected no outcome posts, got %d", len(poster.requests))
	}
}

func TestGradingDispatcher_NoPendingCallback(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	dispatcher, _ := newTestDispatcher(poster)

	_, err := dispatcher.SubmitGrade(context.Background(), gradingParams("missing", "0.5"))
	if !errors.Is(err, ErrNoPendingCallback) {
		t.Fatalf("expected ErrNoPendingCallback, got %v", err)
	}
}

func TestGradingDispatcher_TransportFailureConsumesRecord(t *testing.T) {
	poster := &stubOutcomePoster{err: fmt.Errorf("connection refused")}
	dispatcher, store := newTestDispatcher(poster)
	registerPending(t, store, "sourced-3")

	_, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-3", "0.5"))
	if err == nil {
		t.Fatalf("expected transport failure to surface")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != BridgeErrorOutcomeTransport {
		t.Fatalf("expected %s, got %v", BridgeErrorOutcomeTransport, err)
	}

	// No restore after a failed dispatch: the record is gone.
	if _, err := store.Consume(context.Background(), "sourced-3"); !errors.Is(err, ErrNoPendingCallback) {
		t.Fatalf("expected consumed record to stay consumed, got %v", err)
	}
}

func TestGradingDispatcher_RejectedResponseConsumesRecord(t *testing.T) {
	poster := &stubOutcomePoster{response: OutcomeResponse{
		StatusCode: 200,
		Body:       []byte("<imsx_codeMajor>failure</imsx_codeMajor>"),
	}}
	dispatcher, store := newTestDispatcher(poster)
	registerPending(t, store, "sourced-4")

	_, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-4", "0.5"))
	if err == nil {
		t.Fatalf("expected rejected outcome to surface")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != BridgeErrorOutcomeRejected {
		t.Fatalf("expected %s, got %v", BridgeErrorOutcomeRejected, err)
	}

	if _, err := store.Consume(context.Background(), "sourced-4"); !errors.Is(err, ErrNoPendingCallback) {
		t.Fatalf("expected consumed record to stay consumed, got %v", err)
	}

	// Same grade again is not retried: the record was spent.
	if _, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-4", "0.5")); !errors.Is(err, ErrNoPendingCallback) {
		t.Fatalf("expected repeat submission to miss, got %v", err)
	}
}

type blockingThrottle struct {
	err error
}

func (p blockingThrottle) BeforeSubmit(context.Context, string) error { return p.err }

func (p blockingThrottle) AfterSubmit(context.Context, string, OutcomeResponse) error { return nil }

func TestGradingDispatcher_ThrottleBlocksPost(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	dispatcher, store := newTestDispatcher(poster)
	dispatcher.Throttle = blockingThrottle{err: fmt.Errorf("rate limit exceeded for consumer")}
	registerPending(t, store, "sourced-5")

	_, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-5", "0.5"))
	if err == nil {
		t.Fatalf("expected throttled submission to fail")
	}
	if len(poster.requests) != 0 {
		t.Fatalf("expected no outcome posts while throttled, got %d", len(poster.requests))
	}
}

func TestGradingDispatcher_UsesConfiguredTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Outcome.TimeoutSeconds = 7
	poster := &stubOutcomePoster{response: acceptedResponse()}
	store := NewMemoryCallbackStore(0)
	dispatcher := NewGradingDispatcher(cfg, store, NewMemoryCredentialStore(map[string]string{"consumer-1": "s3cret"}), poster)
	registerPending(t, store, "sourced-6")

	if _, err := dispatcher.SubmitGrade(context.Background(), gradingParams("sourced-6", "0.5")); err != nil {
		t.Fatalf("submit grade: %v", err)
	}
	if got := poster.requests[0].Timeout; got != 7*time.Second {
		t.Fatalf("expected 7s timeout, got %s", got)
	}
}
