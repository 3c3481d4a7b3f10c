// Package app wires the four services together: store, token signer,
// upstream clients, routers and HTTP servers.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/adapter"
	"github.com/jun/socialnet/internal/adapter/dynamo"
	"github.com/jun/socialnet/internal/adapter/memory"
	"github.com/jun/socialnet/internal/auth"
	"github.com/jun/socialnet/internal/client"
	"github.com/jun/socialnet/internal/config"
	"github.com/jun/socialnet/internal/crypto"
	"github.com/jun/socialnet/internal/handler"
	"github.com/jun/socialnet/internal/middleware"
	"github.com/jun/socialnet/internal/observability"
	"github.com/jun/socialnet/internal/push"
	"github.com/jun/socialnet/internal/secret"
	"github.com/jun/socialnet/internal/session"
	"github.com/jun/socialnet/internal/token"
	"github.com/jun/socialnet/internal/user"
)

// Service names.
const (
	Data = "data"
	Auth = "auth"
	User = "user"
	Push = "push"
)

// Services lists every service in start order.
var Services = []string{Data, Auth, User, Push}

const metricsNamespace = "socialnet"

// App holds the dependencies shared by the services of one process.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	tracing *observability.TracerProvider
	metrics *observability.Collector

	awsCfg aws.Config

	storeOnce sync.Once
	store     adapter.EntityStore
	storeErr  error
}

// NewApp initializes the process-wide dependencies. name labels metrics and
// traces; it is a service name or "all".
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger, name string) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: observability.NewCollector(metricsNamespace, name),
	}

	tp, err := observability.InitTracing(ctx, "socialnet-"+name, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	a.tracing = tp

	if cfg.DevMode {
		log.Info("DEV_MODE: using in-memory store and local token signer")
		return a, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	a.awsCfg = awsCfg
	return a, nil
}

// Shutdown flushes traces.
func (a *App) Shutdown(ctx context.Context) error {
	return a.tracing.Shutdown(ctx)
}

// Router builds the router of one service.
func (a *App) Router(ctx context.Context, service string) (*chi.Mux, error) {
	switch service {
	case Data:
		return a.DataRouter(ctx)
	case Auth:
		return a.AuthRouter(ctx)
	case User:
		return a.UserRouter(ctx), nil
	case Push:
		return a.PushRouter(), nil
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}
}

func (a *App) DataRouter(ctx context.Context) (*chi.Mux, error) {
	store, err := a.entityStore(ctx)
	if err != nil {
		return nil, err
	}
	h := handler.NewDataHandler(store, a.log.With(zap.String("service", Data)))
	return a.router(Data, h.Routes), nil
}

func (a *App) AuthRouter(ctx context.Context) (*chi.Mux, error) {
	store, err := a.entityStore(ctx)
	if err != nil {
		return nil, err
	}
	svc := auth.NewService(store, a.cfg.TokenTTL)
	h := handler.NewAuthHandler(svc, a.log.With(zap.String("service", Auth)))
	return a.router(Auth, h.Routes), nil
}

// UserRouter also starts the expired-session sweeper, which stops with ctx.
func (a *App) UserRouter(ctx context.Context) *chi.Mux {
	log := a.log.With(zap.String("service", User))

	sessions := session.NewManager()
	sessions.StartSweeper(ctx, a.cfg.SessionSweepInterval, log)
	a.metrics.TrackGauge(metricsNamespace, "active_sessions", "Number of cached user sessions",
		func() float64 { return float64(sessions.Len()) })

	svc := user.NewService(
		client.NewDataService(a.upstream(Data, a.cfg.DataServerURL)),
		client.NewAuthService(a.upstream(Auth, a.cfg.AuthServerURL)),
		client.NewPushService(a.upstream(Push, a.cfg.PushServerURL)),
		sessions,
		a.cfg.TokenTTL,
		log,
	)
	h := handler.NewUserHandler(svc, log)

	return a.router(User, h.Routes, cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", chimiddleware.RequestIDHeader},
		ExposedHeaders: []string{chimiddleware.RequestIDHeader},
		MaxAge:         300,
	}))
}

func (a *App) PushRouter() *chi.Mux {
	log := a.log.With(zap.String("service", Push))
	svc := push.NewService(
		client.NewDataService(a.upstream(Data, a.cfg.DataServerURL)),
		a.tracing.Tracer(),
		a.metrics,
		log,
	)
	return a.router(Push, handler.NewPushHandler(svc, log).Routes)
}

func (a *App) router(service string, mount func(chi.Router), extra ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(a.tracing.Tracer()))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(a.log.With(zap.String("service", service))))
	if a.cfg.MetricsEnabled {
		r.Use(middleware.Metrics(a.metrics))
	}
	r.Use(extra...)

	if a.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":%q}`, service)
	})
	handler.Unrouted(r)

	mount(r)
	return r
}

func (a *App) upstream(service, baseURL string) *client.Client {
	opts := client.DefaultOptions()
	opts.Timeout = a.cfg.UpstreamTimeout
	return client.New(service, baseURL, opts, a.log)
}

// entityStore builds the store once per process so that the data and auth
// services share it when run together.
func (a *App) entityStore(ctx context.Context) (adapter.EntityStore, error) {
	a.storeOnce.Do(func() {
		signer, err := a.signer(ctx)
		if err != nil {
			a.storeErr = err
			return
		}

		var base adapter.TableStore
		if a.cfg.DevMode {
			base = memory.NewStore()
		} else {
			ddb := dynamodb.NewFromConfig(a.awsCfg, func(o *dynamodb.Options) {
				if a.cfg.DynamoDBEndpoint != "" {
					o.BaseEndpoint = aws.String(a.cfg.DynamoDBEndpoint)
				}
			})
			base = dynamo.NewStore(ddb, a.cfg.TablePrefix)
		}

		base = adapter.Instrument(base, a.tracing.Tracer(), a.metrics)
		a.store = adapter.NewScopedStore(base, token.NewAuthority(signer))
	})
	return a.store, a.storeErr
}

func (a *App) signer(ctx context.Context) (crypto.Signer, error) {
	if !a.cfg.DevMode && a.cfg.TokenSigner == "kms" {
		a.log.Info("signing tokens with KMS", zap.String("key_id", a.cfg.KMSKeyID))
		return crypto.NewKMSSigner(kms.NewFromConfig(a.awsCfg), a.cfg.KMSKeyID), nil
	}

	var resolver secret.Resolver = secret.NewEnvResolver()
	if !a.cfg.DevMode {
		resolver = secret.Chain{secret.NewEnvResolver(), secret.NewSSMResolver(ssm.NewFromConfig(a.awsCfg))}
	}
	key, err := resolver.GetSecret(ctx, a.cfg.TokenKeyParam)
	switch {
	case err == nil:
		return crypto.NewLocalSigner([]byte(key))
	case a.cfg.DevMode:
		// Tokens only verify inside this process.
		a.log.Warn("token key not set, using a random key", zap.Error(err))
		buf := make([]byte, 32)
		rand.Read(buf)
		return crypto.NewLocalSigner(buf)
	default:
		return nil, fmt.Errorf("failed to resolve token key: %w", err)
	}
}

// Serve runs the named services on their configured addresses until ctx is
// done, then shuts them down gracefully.
func (a *App) Serve(ctx context.Context, services ...string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var servers []*http.Server
	for _, name := range services {
		r, err := a.Router(ctx, name)
		if err != nil {
			return err
		}
		servers = append(servers, &http.Server{
			Addr:              a.addr(name),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		go func() {
			a.log.Info("starting server", zap.String("service", services[i]), zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", services[i], err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info("shutting down servers")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer shutdownCancel()

	errs := []error{serveErr}
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

func (a *App) addr(service string) string {
	switch service {
	case Data:
		return a.cfg.DataAddr
	case Auth:
		return a.cfg.AuthAddr
	case User:
		return a.cfg.UserAddr
	default:
		return a.cfg.PushAddr
	}
}
