package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
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
	outcomePoster   OutcomePoster
	throttlePolicy  ThrottlePolicy
	requestSigner   *RequestSigner
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithCallbackStore(store CallbackStore) Option {
	return func(b *serviceBuilder) {
		b.callbackStore = store
	}
}

func WithNonceLedger(ledger NonceLedger) Option {
	return func(b *serviceBuilder) {
		b.nonceLedger = ledger
	}
}

func WithOutcomePoster(poster OutcomePoster) Option {
	return func(b *serviceBuilder) {
		b.outcomePoster = poster
	}
}

func WithThrottlePolicy(policy ThrottlePolicy) Option {
	return func(b *serviceBuilder) {
		b.throttlePolicy = policy
	}
}

func WithRequestSigner(signer *RequestSigner) Option {
	return func(b *serviceBuilder) {
		b.requestSigner = signer
	}
}

// WithConsumerSecrets provisions an in-memory credential store from a
// key-to-secret map, the configuration-file operating mode.
func WithConsumerSecrets(secrets map[string]string) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = NewMemoryCredentialStore(secrets)
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("ltibridge", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return bridgeErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.SurveyBaseURL) != "" {
		layer["survey_base_url"] = cfg.SurveyBaseURL
	}
	if includeZero || strings.TrimSpace(cfg.SurveyID) != "" {
		layer["survey_id"] = cfg.SurveyID
	}
	if includeZero || cfg.ProvideGrading {
		layer["provide_grading"] = cfg.ProvideGrading
	}
	if includeZero || cfg.Overrides.AllowURL || cfg.Overrides.AllowID {
		layer["overrides"] = map[string]any{
			"allow_url": cfg.Overrides.AllowURL,
			"allow_id":  cfg.Overrides.AllowID,
		}
	}
	if includeZero || cfg.Passthrough.All || len(cfg.Passthrough.Params) > 0 {
		layer["passthrough"] = map[string]any{
			"all":    cfg.Passthrough.All,
			"params": append([]string(nil), cfg.Passthrough.Params...),
		}
	}
	if includeZero || cfg.OAuth.TimestampWindowSeconds > 0 || cfg.OAuth.NonceLedgerMaxEntries > 0 {
		oauth := map[string]any{}
		if includeZero || cfg.OAuth.TimestampWindowSeconds > 0 {
			oauth["timestamp_window_seconds"] = cfg.OAuth.TimestampWindowSeconds
		}
		if includeZero || cfg.OAuth.NonceLedgerMaxEntries > 0 {
			oauth["nonce_ledger_max_entries"] = cfg.OAuth.NonceLedgerMaxEntries
		}
		layer["oauth"] = oauth
	}
	if includeZero || cfg.Outcome.TimeoutSeconds > 0 || strings.TrimSpace(cfg.Outcome.SuccessMarker) != "" {
		outcome := map[string]any{}
		if includeZero || cfg.Outcome.TimeoutSeconds > 0 {
			outcome["timeout_seconds"] = cfg.Outcome.TimeoutSeconds
		}
		if includeZero || strings.TrimSpace(cfg.Outcome.SuccessMarker) != "" {
			outcome["success_marker"] = cfg.Outcome.SuccessMarker
		}
		layer["outcome"] = outcome
	}
	return layer
}
