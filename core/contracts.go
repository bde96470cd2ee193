package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// CredentialStore maps a consumer key to its shared secret. Lookups are
// read-only from the engine's perspective.
type CredentialStore interface {
	LookupSecret(ctx context.Context, consumerKey string) (string, error)
}

// CallbackStore holds at most one pending-grade record per result id.
// Register and Consume must be atomic with respect to each other per key:
// two concurrent consumes for the same id yield exactly one record and one
// ErrNoPendingCallback.
type CallbackStore interface {
	// Register creates (or overwrites, last wins) the pending record. It
	// reports whether a record was created; both the result id and the
	// outcome service URL must be non-empty for registration to happen.
	Register(ctx context.Context, callback PendingCallback) (bool, error)
	// Consume atomically fetches and removes the record. A second consume
	// for the same id returns ErrNoPendingCallback.
	Consume(ctx context.Context, resultID string) (PendingCallback, error)
}

// NonceLedger tracks OAuth nonces within the timestamp freshness window.
// Claim returns false when the (consumerKey, nonce) pair was already seen.
type NonceLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// OutcomeRequest is the signed POX POST handed to the transport.
type OutcomeRequest struct {
	URL           string
	Body          []byte
	Authorization string
	ContentType   string
	Timeout       time.Duration
}

// OutcomeResponse is what the transport observed from the outcome service.
type OutcomeResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// OutcomePoster issues the grading callback POST. Implementations must
// bound the call with the request timeout and surface transport-level
// failures as errors rather than synthetic responses.
type OutcomePoster interface {
	Post(ctx context.Context, req OutcomeRequest) (OutcomeResponse, error)
}

// ThrottlePolicy gates outbound outcome POSTs per consumer key.
type ThrottlePolicy interface {
	BeforeSubmit(ctx context.Context, consumerKey string) error
	AfterSubmit(ctx context.Context, consumerKey string, res OutcomeResponse) error
}

// SecretProvider encrypts consumer secrets at rest. Implementations live
// under security/; the SQL credential store is the main consumer.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// JobExecutionMessage mirrors the queue contract for the retention purge
// job a host scheduler runs against the stores (see adapters/gojob).
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
