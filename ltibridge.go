package ltibridge

import "github.com/goliatone/go-lti-bridge/core"

type Config = core.Config

type OAuthConfig = core.OAuthConfig

type OutcomeConfig = core.OutcomeConfig

type OverridesConfig = core.OverridesConfig

type PassthroughConfig = core.PassthroughConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type CredentialStore = core.CredentialStore
type CallbackStore = core.CallbackStore
type NonceLedger = core.NonceLedger
type OutcomePoster = core.OutcomePoster
type ThrottlePolicy = core.ThrottlePolicy
type SecretProvider = core.SecretProvider
type MetricsRecorder = core.MetricsRecorder

type LaunchParams = core.LaunchParams
type LaunchResult = core.LaunchResult
type GradeSubmission = core.GradeSubmission
type PendingCallback = core.PendingCallback
type RequestOutcome = core.RequestOutcome
type RequestKind = core.RequestKind

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithSecretProvider  = core.WithSecretProvider
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithCredentialStore = core.WithCredentialStore
	WithCallbackStore   = core.WithCallbackStore
	WithNonceLedger     = core.WithNonceLedger
	WithOutcomePoster   = core.WithOutcomePoster
	WithThrottlePolicy  = core.WithThrottlePolicy
	WithRequestSigner   = core.WithRequestSigner
	WithConsumerSecrets = core.WithConsumerSecrets
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
