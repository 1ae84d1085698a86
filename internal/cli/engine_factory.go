package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/blobrelay/internal/config"
	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/internal/metrics"
	"github.com/aretw0/blobrelay/internal/runtime"
	"github.com/aretw0/blobrelay/pkg/adapters/azblob"
	"github.com/aretw0/blobrelay/pkg/adapters/file"
	"github.com/aretw0/blobrelay/pkg/adapters/keyvault"
	"github.com/aretw0/blobrelay/pkg/adapters/memory"
	"github.com/aretw0/blobrelay/pkg/adapters/redis"
	"github.com/aretw0/blobrelay/pkg/adapters/s3"
	"github.com/aretw0/blobrelay/pkg/adapters/secrets"
	"github.com/aretw0/blobrelay/pkg/adapters/sftp"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/persistence/middleware"
	"github.com/aretw0/blobrelay/pkg/ports"
	"github.com/aretw0/blobrelay/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App bundles the engine with the resources it owns.
type App struct {
	Engine   *runtime.Engine
	Registry *prometheus.Registry
	Logger   *slog.Logger

	// Bucket is set when objects are served from memory, so callers can seed it.
	Bucket *memory.Bucket

	closers []func() error
}

// Close releases connections opened by NewApp.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// AppOption overrides parts of the wiring, mostly for tests.
type AppOption func(*appOptions)

type appOptions struct {
	logger    *slog.Logger
	fetcher   ports.ContentFetcher
	deliverer ports.Deliverer
	secrets   ports.SecretStore
	debug     bool
}

// WithLogger sets the logger instead of deriving it from the config.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// WithFetcher replaces the configured content fetcher.
func WithFetcher(f ports.ContentFetcher) AppOption {
	return func(o *appOptions) {
		o.fetcher = f
	}
}

// WithDeliverer replaces the configured deliverer.
func WithDeliverer(d ports.Deliverer) AppOption {
	return func(o *appOptions) {
		o.deliverer = d
	}
}

// WithSecretStore replaces the configured secret store.
func WithSecretStore(s ports.SecretStore) AppOption {
	return func(o *appOptions) {
		o.secrets = s
	}
}

// WithDebugHooks logs every lifecycle event at debug level.
func WithDebugHooks(enabled bool) AppOption {
	return func(o *appOptions) {
		o.debug = enabled
	}
}

// NewApp builds the state store, adapters and engine described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	o := appOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = cfg.Logger()
	}

	app := &App{
		Registry: prometheus.NewRegistry(),
		Logger:   o.logger,
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	store, locker, err := app.buildStore(ctx, cfg.State)
	if err != nil {
		return fail(err)
	}
	managerOpts := []session.Option{session.WithLogger(o.logger)}
	if locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(locker))
	}
	manager := session.NewManager(store, managerOpts...)

	fetcher := o.fetcher
	if fetcher == nil {
		if fetcher, err = app.buildFetcher(cfg.Storage); err != nil {
			return fail(err)
		}
	}

	deliverer := o.deliverer
	if deliverer == nil {
		secretStore := o.secrets
		if secretStore == nil {
			if secretStore, err = buildSecretStore(cfg.Secrets); err != nil {
				return fail(err)
			}
		}
		deliverer, err = sftp.New(sftp.Config{
			Host:           cfg.SFTP.Host,
			Port:           cfg.SFTP.Port,
			Username:       cfg.SFTP.Username,
			BasePath:       cfg.SFTP.RemotePath,
			KeySecretName:  cfg.SFTP.KeySecretName,
			Passphrase:     cfg.SFTP.KeyPassphrase,
			KnownHostsFile: cfg.SFTP.KnownHosts,
			DialTimeout:    cfg.SFTP.DialTimeout,
		}, secretStore, sftp.WithLogger(o.logger))
		if err != nil {
			return fail(fmt.Errorf("configure sftp delivery: %w", err))
		}
	}

	collectorSet, err := metrics.New(app.Registry)
	if err != nil {
		return fail(fmt.Errorf("register metrics: %w", err))
	}
	hooks := collectorSet.Hooks()
	if o.debug {
		hooks = hooks.Merge(createDebugHooks(o.logger))
	}

	app.Engine, err = runtime.NewEngine(manager, fetcher, deliverer,
		runtime.WithPolicy(cfg.Retry),
		runtime.WithLogger(o.logger),
		runtime.WithLifecycleHooks(hooks),
	)
	if err != nil {
		return fail(fmt.Errorf("error initializing engine: %w", err))
	}
	return app, nil
}

func (a *App) buildStore(ctx context.Context, cfg config.StateConfig) (ports.StateStore, ports.DistributedLocker, error) {
	var (
		store  ports.StateStore
		locker ports.DistributedLocker
	)
	switch cfg.Backend {
	case config.StateMemory:
		store = memory.NewStore()
	case config.StateFile:
		store = file.New(cfg.Dir)
	case config.StateRedis:
		var redisOpts []redis.Option
		if cfg.TTL > 0 {
			redisOpts = append(redisOpts, redis.WithTTL(cfg.TTL))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisOpts...)
		a.closers = append(a.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		store = rs
		locker = redis.NewLocker(rs.Client(), rs.Prefix())
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}

	if len(cfg.EncryptionKey) > 0 {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: cfg.EncryptionKey})
		if err != nil {
			return nil, nil, err
		}
		store = middleware.Chain(store, mw)
	}
	return store, locker, nil
}

func (a *App) buildFetcher(cfg config.StorageConfig) (ports.ContentFetcher, error) {
	switch cfg.Backend {
	case config.StorageAzure:
		return azblob.New(cfg.ConnectionString, cfg.Container)
	case config.StorageS3:
		return s3.New(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	case config.StorageMemory:
		a.Bucket = memory.NewBucket()
		return a.Bucket, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func buildSecretStore(cfg config.SecretsConfig) (ports.SecretStore, error) {
	switch cfg.Backend {
	case config.SecretsKeyVault:
		return keyvault.New(cfg.VaultName)
	case config.SecretsFile:
		return secrets.NewDir(cfg.Dir), nil
	case config.SecretsEnv:
		return secrets.NewEnv(cfg.EnvPrefix), nil
	}
	return nil, fmt.Errorf("unknown secret backend %q", cfg.Backend)
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	if logger == nil {
		logger = logging.NewNop()
	}
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("Transition", "instance_id", e.InstanceID, "from", e.From, "to", e.To)
		},
		OnStepAttempt: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Step Attempt", "instance_id", e.InstanceID, "step", e.Step, "attempt", e.Attempt)
		},
		OnStepRetry: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Step Retry", "instance_id", e.InstanceID, "step", e.Step, "attempt", e.Attempt, "delay", e.Delay)
		},
		OnStepResult: func(ctx context.Context, e *domain.StepEvent) {
			if e.Err != nil {
				logger.Debug("Step Result (Error)", "instance_id", e.InstanceID, "step", e.Step, "kind", e.Err.Kind, "err", e.Err.Detail)
			} else {
				logger.Debug("Step Result (Success)", "instance_id", e.InstanceID, "step", e.Step, "duration", e.Duration)
			}
		},
	}
}
