package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel"

	dlgconfig "github.com/voicetyped/adaptive/config"
	"github.com/voicetyped/adaptive/internal/connectutil"
	dialoghandler "github.com/voicetyped/adaptive/internal/dialog/handler"
	"github.com/voicetyped/adaptive/pkg/declarative"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/events"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/hooks"
	"github.com/voicetyped/adaptive/pkg/storage"
	"github.com/voicetyped/adaptive/pkg/telemetry"
	"github.com/voicetyped/adaptive/pkg/urlvalidation"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[dlgconfig.DialogConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	serviceOpts := []frame.Option{
		frame.WithConfig(&cfg),
		frame.WithName("adaptive-dialog"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithRegisterPublisher(eventRef, eventURL),
	}
	if cfg.StateBackend() == dlgconfig.StateStoreGorm {
		serviceOpts = append(serviceOpts, frame.WithDatastore())
	}

	ctx, srv := frame.NewService(serviceOpts...)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	pub := events.NewPublisher(srv.QueueManager(), "dialog", eventRef)

	var validation []urlvalidation.Option
	if cfg.HTTPAllowPrivate {
		validation = append(validation, urlvalidation.AllowPrivateIPs())
	}
	hookExec := hooks.NewExecutor(pub,
		hooks.WithTimeout(cfg.HTTPRequestTimeout()),
		hooks.WithBreakerConfig(hooks.BreakerConfig{
			FailureThreshold:    cfg.CBFailThreshold,
			ResetTimeout:        cfg.BreakerResetTimeout(),
			HalfOpenMaxAttempts: hooks.DefaultBreakerConfig.HalfOpenMaxAttempts,
		}),
		hooks.WithValidation(validation...),
	)

	var evaluator expression.Evaluator = expression.NewGojaEngine(cfg.ExpressionTimeout())
	if cfg.Engine() == dlgconfig.ExpressionEngineCEL {
		celEngine, err := expression.NewCELEngine()
		if err != nil {
			log.Fatalf("creating CEL engine: %v", err)
		}
		evaluator = celEngine
	}

	tracker := telemetry.Multi{
		telemetry.NewOTelClient(otel.Tracer(telemetry.InstrumentationName)),
		pub,
	}

	store, closeStore, err := openStore(ctx, srv, &cfg)
	if err != nil {
		log.Fatalf("opening state store: %v", err)
	}
	defer closeStore()

	builder := declarative.NewBuilder(nil,
		declarative.WithHTTPClient(hookExec),
		declarative.WithTelemetry(tracker),
	)
	loader := declarative.NewLoader(cfg.DialogDir, builder)
	if _, err := loader.LoadAll(); err != nil {
		util.Log(ctx).WithError(err).Error("loading dialogs")
	}

	manager := dialog.NewManager(loader.Set(), cfg.RootDialog, store,
		dialog.WithServices(dialog.Services{
			Expressions: evaluator,
			Telemetry:   tracker,
		}),
		dialog.WithPublisher(pub),
	)

	loader.OnReload(func(set *dialog.Set) {
		manager.SetDialogs(set)
		if err := pub.Emit(ctx, events.DialogsReloaded, "", events.ReloadData{Dialogs: loader.IDs()}); err != nil {
			util.Log(ctx).WithError(err).Error("publishing dialog reload")
		}
	})

	if cfg.HotReload {
		err := pool.Submit(ctx, func() {
			if err := loader.WatchAndReload(ctx); err != nil {
				util.Log(ctx).WithError(err).Error("watching dialog directory")
			}
		})
		if err != nil {
			util.Log(ctx).WithError(err).Error("starting dialog watcher")
		}
	}

	handler := dialoghandler.NewDialogHandler(manager, cfg.RootDialog, loader, store, pool,
		dialoghandler.WithConversationTTL(cfg.ConversationTTL()),
	)
	handler.StartReaper(ctx)

	mux := http.NewServeMux()
	mux.Handle(handler.Handler(connectutil.DefaultOptions()...))
	authenticated := connectutil.AuthenticatedHTTPMiddleware(mux, authenticator)

	slog.InfoContext(ctx, "dialog service ready",
		slog.String("root_dialog", cfg.RootDialog),
		slog.String("state_store", cfg.StateBackend()),
		slog.String("expression_engine", cfg.Engine()),
	)

	srv.Init(ctx, frame.WithHTTPHandler(connectutil.H2CHandler(authenticated)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

// openStore opens the configured conversation state backend.
func openStore(ctx context.Context, srv *frame.Service, cfg *dlgconfig.DialogConfig) (storage.Store, func(), error) {
	switch cfg.StateBackend() {
	case dlgconfig.StateStoreBolt:
		b, err := storage.OpenBolt(cfg.StateBoltPath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case dlgconfig.StateStoreGorm:
		g := storage.NewGorm(srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"))
		if err := g.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	}
	return storage.NewMemory(), func() {}, nil
}
