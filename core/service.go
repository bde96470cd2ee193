package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// RequestKind classifies one inbound request after parameter inspection.
type RequestKind string

const (
	RequestKindLaunch          RequestKind = "launch"
	RequestKindGradingCallback RequestKind = "grading_callback"
)

// RequestOutcome is the result of handling one inbound request. Exactly
// one of Launch or Grade is populated, selected by Kind.
type RequestOutcome struct {
	Kind   RequestKind
	Launch LaunchResult
	Grade  GradeSubmission
}

// Service is the LTI bridge orchestrator: it classifies inbound requests,
// authenticates them, registers pending grade callbacks at launch time and
// dispatches deferred grade submissions.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	secretProvider  SecretProvider
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	credentialStore CredentialStore
	callbackStore   CallbackStore
	nonceLedger     NonceLedger
	verifier        *SignatureVerifier
	dispatcher      *GradingDispatcher
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	SecretProvider  SecretProvider
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	CredentialStore CredentialStore
	CallbackStore   CallbackStore
	NonceLedger     NonceLedger
	OutcomePoster   OutcomePoster
	ThrottlePolicy  ThrottlePolicy
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ltibridge", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ltibridge"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.requestSigner == nil {
		builder.requestSigner = NewRequestSigner()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.callbackStore == nil {
		builder.callbackStore = NewMemoryCallbackStore(0)
	}
	if builder.nonceLedger == nil {
		builder.nonceLedger = NewMemoryNonceLedgerWithLimits(
			finalConfig.TimestampWindow(),
			finalConfig.OAuth.NonceLedgerMaxEntries,
		)
	}

	verifier := NewSignatureVerifier(
		builder.credentialStore,
		builder.nonceLedger,
		finalConfig.TimestampWindow(),
	)

	dispatcher := &GradingDispatcher{
		Config:      finalConfig,
		Callbacks:   builder.callbackStore,
		Credentials: builder.credentialStore,
		Signer:      builder.requestSigner,
		Poster:      builder.outcomePoster,
		Throttle:    builder.throttlePolicy,
		Metrics:     builder.metricsRecorder,
		Logger:      logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		secretProvider:  builder.secretProvider,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		credentialStore: builder.credentialStore,
		callbackStore:   builder.callbackStore,
		nonceLedger:     builder.nonceLedger,
		verifier:        verifier,
		dispatcher:      dispatcher,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	deps := ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		SecretProvider:  s.secretProvider,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		CredentialStore: s.credentialStore,
		CallbackStore:   s.callbackStore,
		NonceLedger:     s.nonceLedger,
	}
	if s.dispatcher != nil {
		deps.OutcomePoster = s.dispatcher.Poster
		deps.ThrottlePolicy = s.dispatcher.Throttle
	}
	return deps
}

// HandleRequest classifies params and runs the matching flow. A request
// that carries both a valid launch shape and the grading callback shape is
// handled as a grading callback; classification happens before validation.
func (s *Service) HandleRequest(ctx context.Context, method string, requestURL string, params LaunchParams) (RequestOutcome, error) {
	if s == nil {
		return RequestOutcome{}, newBridgeError("core: service is not configured", goerrors.CategoryInternal, BridgeErrorInternal)
	}
	if s.config.ProvideGrading && params.IsGradingCallback() {
		grade, err := s.SubmitGrade(ctx, method, requestURL, params)
		return RequestOutcome{Kind: RequestKindGradingCallback, Grade: grade}, err
	}
	launch, err := s.Launch(ctx, method, requestURL, params)
	return RequestOutcome{Kind: RequestKindLaunch, Launch: launch}, err
}

// Launch validates and authenticates a basic launch, registers the pending
// grade callback when the launch carries grading coordinates, and resolves
// the survey redirect.
func (s *Service) Launch(ctx context.Context, method string, requestURL string, params LaunchParams) (result LaunchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"consumer_key":     params.ConsumerKey(),
		"resource_link_id": params.Get(ParamResourceLinkID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "launch", err, fields)
	}()

	if err = ValidateLaunch(params); err != nil {
		err = s.mapError(err)
		return LaunchResult{}, err
	}
	if err = s.authenticate(ctx, method, requestURL, params); err != nil {
		return LaunchResult{}, err
	}

	if s.config.ProvideGrading && s.callbackStore != nil {
		resultID := params.Get(ParamResultSourcedID)
		registered, registerErr := s.callbackStore.Register(ctx, PendingCallback{
			ResultID:          resultID,
			OutcomeServiceURL: params.Get(ParamOutcomeURL),
			ConsumerKey:       params.ConsumerKey(),
			ReturnURL:         params.ReturnURL(),
			RegisteredAt:      startedAt,
		})
		if registerErr != nil {
			err = s.mapError(registerErr)
			return LaunchResult{}, err
		}
		result.CallbackRegistered = registered
		if registered {
			result.ResultID = resultID
			fields["result_id"] = resultID
		}
	}

	target, err := ResolveSurveyTarget(s.config, params)
	if err != nil {
		err = s.mapError(err)
		return LaunchResult{}, err
	}
	redirect, err := BuildRedirectURL(s.config, target, params)
	if err != nil {
		err = s.mapError(err)
		return LaunchResult{}, err
	}
	result.RedirectURL = redirect
	return result, nil
}

// SubmitGrade authenticates a grading callback and runs the dispatch
// pipeline. The pending record is consumed exactly once; a failure after
// the consume does not restore it.
func (s *Service) SubmitGrade(ctx context.Context, method string, requestURL string, params LaunchParams) (submission GradeSubmission, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"consumer_key": params.ConsumerKey(),
		"result_id":    params.Get(ParamResultSourcedID),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "submit_grade", err, fields)
	}()

	if !s.config.ProvideGrading {
		err = s.mapError(ErrNoPendingCallback)
		return GradeSubmission{}, err
	}
	if err = s.authenticate(ctx, method, requestURL, params); err != nil {
		return GradeSubmission{}, err
	}

	submission, err = s.dispatcher.SubmitGrade(ctx, params)
	if err != nil {
		err = s.mapError(err)
		return submission, err
	}
	return submission, nil
}

// PurgeExpired sweeps expired state out of the callback store and the
// nonce ledger. Hosts run it on a schedule (see adapters/gojob).
func (s *Service) PurgeExpired(ctx context.Context) (pruned int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["pruned"] = pruned
		s.observeOperation(ctx, startedAt, "purge_expired", err, fields)
	}()

	if purger, ok := s.callbackStore.(interface {
		PurgeExpired(context.Context) (int, error)
	}); ok {
		count, purgeErr := purger.PurgeExpired(ctx)
		if purgeErr != nil {
			err = s.mapError(purgeErr)
			return pruned, err
		}
		pruned += count
	}
	if s.nonceLedger != nil {
		count, purgeErr := s.nonceLedger.PurgeExpired(ctx)
		if purgeErr != nil {
			err = s.mapError(purgeErr)
			return pruned, err
		}
		pruned += count
	}
	return pruned, nil
}

func (s *Service) authenticate(ctx context.Context, method string, requestURL string, params LaunchParams) error {
	if s.verifier == nil {
		return nil
	}
	if err := s.verifier.Verify(ctx, method, requestURL, params); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
