package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const testLaunchURL = "https://bridge.example.com/launch"

func newTestService(t *testing.T, poster OutcomePoster, options ...Option) *Service {
	t.Helper()
	cfg := Config{
		SurveyBaseURL: "https://surveys.example.com/run",
		SurveyID:      "SV_default",
	}
	base := []Option{
		WithConsumerSecrets(map[string]string{"consumer-1": "s3cret"}),
		WithOutcomePoster(poster),
	}
	svc, err := NewService(cfg, append(base, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func signServiceParams(t *testing.T, base LaunchParams) LaunchParams {
	t.Helper()
	extra := map[string]string{}
	for key, value := range base {
		extra[key] = value
	}
	signed, err := NewRequestSigner().Sign("POST", testLaunchURL, extra, ConsumerCredential{
		ConsumerKey:    "consumer-1",
		ConsumerSecret: "s3cret",
	})
	if err != nil {
		t.Fatalf("sign params: %v", err)
	}
	params := LaunchParams{}
	for key, value := range signed.Parameters {
		params[key] = value
	}
	return params
}

func launchFixture() LaunchParams {
	return LaunchParams{
		ParamMessageType:     MessageTypeBasicLaunch,
		ParamVersion:         VersionLTI1p0,
		ParamResourceLinkID:  "link-1",
		ParamSurveyURL:       "https://surveys.example.com/custom",
		ParamSurveyID:        "SV_custom",
		ParamResultSourcedID: "sourced-1",
		ParamOutcomeURL:      "https://lms.example.com/outcomes",
		ParamPresentationURL: "https://lms.example.com/return",
	}
}

func TestService_LaunchRegistersCallbackAndRedirects(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	svc := newTestService(t, poster)

	outcome, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, launchFixture()))
	if err != nil {
		t.Fatalf("handle launch: %v", err)
	}
	if outcome.Kind != RequestKindLaunch {
		t.Fatalf("expected launch classification, got %s", outcome.Kind)
	}
	if !outcome.Launch.CallbackRegistered {
		t.Fatalf("expected callback registration")
	}
	if outcome.Launch.ResultID != "sourced-1" {
		t.Fatalf("unexpected result id %q", outcome.Launch.ResultID)
	}
	if !strings.Contains(outcome.Launch.RedirectURL, "SID=SV_custom") {
		t.Fatalf("expected SID in redirect, got %q", outcome.Launch.RedirectURL)
	}
	if !strings.HasPrefix(outcome.Launch.RedirectURL, "https://surveys.example.com/custom") {
		t.Fatalf("expected overridden survey url, got %q", outcome.Launch.RedirectURL)
	}
}

func TestService_LaunchWithoutGradingCoordinates(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	svc := newTestService(t, poster)

	params := launchFixture()
	delete(params, ParamResultSourcedID)
	delete(params, ParamOutcomeURL)

	outcome, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, params))
	if err != nil {
		t.Fatalf("handle launch: %v", err)
	}
	if outcome.Launch.CallbackRegistered {
		t.Fatalf("expected no callback registration without grading coordinates")
	}
	if outcome.Launch.RedirectURL == "" {
		t.Fatalf("expected a redirect url")
	}
}

func TestService_LaunchRejectsUnsignedRequest(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	callbacks := NewMemoryCallbackStore(0)
	svc := newTestService(t, poster, WithCallbackStore(callbacks))

	_, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, launchFixture())
	if err == nil {
		t.Fatalf("expected unsigned launch to be rejected")
	}
	if _, err := callbacks.Consume(context.Background(), "sourced-1"); !errors.Is(err, ErrNoPendingCallback) {
		t.Fatalf("expected no pending callback after rejected launch, got %v", err)
	}
}

func TestService_LaunchRejectsInvalidShape(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	svc := newTestService(t, poster)

	params := launchFixture()
	params[ParamVersion] = "LTI-2p0"

	if _, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, params)); err == nil {
		t.Fatalf("expected malformed launch to be rejected")
	}
}

func TestService_GradingCallbackTakesPrecedence(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	svc := newTestService(t, poster)

	// Launch first so a pending record exists.
	if _, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, launchFixture())); err != nil {
		t.Fatalf("handle launch: %v", err)
	}

	// The callback carries a full launch shape plus grading parameters.
	// It must be handled as a grading callback, not as a launch.
	params := launchFixture()
	params[ParamGrade] = "0.85"
	outcome, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, params))
	if err != nil {
		t.Fatalf("handle grading callback: %v", err)
	}
	if outcome.Kind != RequestKindGradingCallback {
		t.Fatalf("expected grading classification, got %s", outcome.Kind)
	}
	if outcome.Grade.ReturnURL != "https://lms.example.com/return" {
		t.Fatalf("unexpected return url %q", outcome.Grade.ReturnURL)
	}
	if len(poster.requests) != 1 {
		t.Fatalf("expected one outcome post, got %d", len(poster.requests))
	}
	if !strings.Contains(string(poster.requests[0].Body), "<textString>0.9</textString>") {
		t.Fatalf("expected formatted grade in outcome body")
	}
}

func TestService_GradingCallbackAtMostOnce(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	svc := newTestService(t, poster)

	if _, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, launchFixture())); err != nil {
		t.Fatalf("handle launch: %v", err)
	}

	params := launchFixture()
	params[ParamGrade] = "0.5"
	if _, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, params)); err != nil {
		t.Fatalf("first grading callback: %v", err)
	}

	_, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, params))
	if !errors.Is(err, ErrNoPendingCallback) {
		t.Fatalf("expected second grading callback to miss, got %v", err)
	}
	if len(poster.requests) != 1 {
		t.Fatalf("expected exactly one outcome post, got %d", len(poster.requests))
	}
}

func TestService_ProvideGradingDisabled(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	cfg := Config{
		SurveyBaseURL: "https://surveys.example.com/run",
		SurveyID:      "SV_default",
	}
	svc, err := NewService(cfg,
		WithConsumerSecrets(map[string]string{"consumer-1": "s3cret"}),
		WithOutcomePoster(poster),
		WithOptionsResolver(staticResolver{config: func() Config {
			out := DefaultConfig()
			out.SurveyBaseURL = cfg.SurveyBaseURL
			out.SurveyID = cfg.SurveyID
			out.ProvideGrading = false
			return out
		}()}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	outcome, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, launchFixture()))
	if err != nil {
		t.Fatalf("handle launch: %v", err)
	}
	if outcome.Launch.CallbackRegistered {
		t.Fatalf("expected no registration with grading disabled")
	}

	params := launchFixture()
	params[ParamGrade] = "0.5"
	outcome, err = svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, params))
	if err != nil {
		t.Fatalf("expected grading-shaped request to fall back to launch handling: %v", err)
	}
	if outcome.Kind != RequestKindLaunch {
		t.Fatalf("expected launch classification with grading disabled, got %s", outcome.Kind)
	}
	if len(poster.requests) != 0 {
		t.Fatalf("expected no outcome posts with grading disabled")
	}
}

type staticResolver struct {
	config Config
}

func (r staticResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.config, nil
}

func TestService_PurgeExpired(t *testing.T) {
	poster := &stubOutcomePoster{response: acceptedResponse()}
	svc := newTestService(t, poster)

	if _, err := svc.HandleRequest(context.Background(), "POST", testLaunchURL, signServiceParams(t, launchFixture())); err != nil {
		t.Fatalf("handle launch: %v", err)
	}

	// Nothing has expired yet; the sweep must still succeed.
	if _, err := svc.PurgeExpired(context.Background()); err != nil {
		t.Fatalf("purge expired: %v", err)
	}
}

func TestService_ConfigResolution(t *testing.T) {
	svc, err := NewService(Config{
		ServiceName:   "custom-bridge",
		SurveyBaseURL: "https://surveys.example.com/run",
		SurveyID:      "SV_default",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "custom-bridge" {
		t.Fatalf("expected runtime service name to win, got %q", cfg.ServiceName)
	}
	if cfg.OAuth.TimestampWindowSeconds != 300 {
		t.Fatalf("expected default timestamp window, got %d", cfg.OAuth.TimestampWindowSeconds)
	}
	if cfg.Outcome.SuccessMarker != "success" {
		t.Fatalf("expected default success marker, got %q", cfg.Outcome.SuccessMarker)
	}
}
