package core

import (
	"strings"
	"time"
)

// Parameter names fixed by the LTI 1.1 contract plus the custom parameters
// the bridge consumes. Keys are case-sensitive.
const (
	ParamMessageType      = "lti_message_type"
	ParamVersion          = "lti_version"
	ParamResourceLinkID   = "resource_link_id"
	ParamSurveyURL        = "custom_qualtrics_url"
	ParamSurveyID         = "custom_survey_id"
	ParamGrade            = "custom_grade"
	ParamResultSourcedID  = "lis_result_sourcedid"
	ParamOutcomeURL       = "lis_outcome_service_url"
	ParamReturnURL        = "custom_return_url"
	ParamPresentationURL  = "launch_presentation_return_url"
	ParamConsumerKey      = "oauth_consumer_key"
	ParamSignature        = "oauth_signature"
	ParamSignatureMethod  = "oauth_signature_method"
	ParamTimestamp        = "oauth_timestamp"
	ParamNonce            = "oauth_nonce"
	ParamOAuthVersion     = "oauth_version"
	ParamBodyHash         = "oauth_body_hash"
	ParamSurveySessionKey = "SID"
)

const (
	MessageTypeBasicLaunch = "basic-lti-launch-request"
	VersionLTI1p0          = "LTI-1p0"
	SignatureMethodHMAC    = "HMAC-SHA1"
)

// LaunchParams holds the decoded parameter set of one inbound request.
// Immutable by convention after construction; the orchestrator owns it for
// the duration of a single request.
type LaunchParams map[string]string

func (p LaunchParams) Get(name string) string {
	if len(p) == 0 {
		return ""
	}
	return strings.TrimSpace(p[name])
}

func (p LaunchParams) Has(name string) bool {
	return p.Get(name) != ""
}

// IsGradingCallback reports whether the parameter set has the grading
// callback shape: a result identifier plus a grade value. Classification is
// independent of launch validity; when a request satisfies both shapes the
// grading callback takes precedence.
func (p LaunchParams) IsGradingCallback() bool {
	return p.Has(ParamResultSourcedID) && p.Has(ParamGrade)
}

// ConsumerKey returns the OAuth consumer key, empty when none was supplied.
func (p LaunchParams) ConsumerKey() string {
	return p.Get(ParamConsumerKey)
}

// ReturnURL resolves the post-grade redirect target. The launch
// presentation URL wins over the custom return URL when both are present.
func (p LaunchParams) ReturnURL() string {
	if url := p.Get(ParamPresentationURL); url != "" {
		return url
	}
	return p.Get(ParamReturnURL)
}

func (p LaunchParams) Clone() LaunchParams {
	if len(p) == 0 {
		return LaunchParams{}
	}
	out := make(LaunchParams, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}

// ConsumerCredential pairs a tool-consumer key with its shared secret.
type ConsumerCredential struct {
	ConsumerKey    string
	ConsumerSecret string
}

// PendingCallback is the stored state for one deferred grade submission.
// At most one record exists per ResultID; it is created at launch time and
// retired by exactly one consume.
type PendingCallback struct {
	ResultID          string
	OutcomeServiceURL string
	ConsumerKey       string
	ReturnURL         string
	RegisteredAt      time.Time
	ExpiresAt         time.Time
}

// GradeSubmission is the outcome of one grading dispatch.
type GradeSubmission struct {
	ResultID     string
	Grade        float64
	MessageID    string
	ReturnURL    string
	ResponseBody string
	SubmittedAt  time.Time
}

// LaunchResult carries the redirect the orchestrator resolved for a valid,
// authenticated launch.
type LaunchResult struct {
	RedirectURL        string
	CallbackRegistered bool
	ResultID           string
}
