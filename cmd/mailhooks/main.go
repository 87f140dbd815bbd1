package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-mailhooks/adapters/gojob"
	"github.com/goliatone/go-mailhooks/core"
	"github.com/goliatone/go-mailhooks/crm"
	"github.com/goliatone/go-mailhooks/migrations"
	"github.com/goliatone/go-mailhooks/postmark"
	sqlstore "github.com/goliatone/go-mailhooks/store/sql"
	"github.com/goliatone/go-mailhooks/webhooks"
)

type persistenceConfig struct {
	debug  bool
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-mailhooks" }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	ctx := context.Background()
	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	client, err := openDatabase(ctx)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		log.Fatalf("build stores: %v", err)
	}

	processor := buildProcessor(ctx, cfg, factory)
	handler := webhooks.NewHandler(webhooks.BodyHMACVerifier{Secret: cfg.Webhook.Secret}, processor)
	handler.SignatureHeader = cfg.Webhook.SignatureHeader

	inventory := &inventoryAPI{client: postmark.NewClient(cfg.Postmark, nil)}

	r := chi.NewRouter()
	r.Post("/mailer/postmark/callback", handler.ServeHTTP)
	r.Get("/api/postmark/servers", inventory.listServers)
	r.Get("/api/postmark/templates", inventory.listTemplates)
	r.Get("/api/postmark/templates/{alias}/variables", inventory.templateVariables)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("mailhooks listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}

func openDatabase(ctx context.Context) (*persistence.Client, error) {
	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var dialect schema.Dialect
	var migrationDialect string
	switch driver {
	case "postgres":
		dialect = pgdialect.New()
		migrationDialect = migrations.DialectPostgres
	case "sqlite3":
		dialect = sqlitedialect.New()
		migrationDialect = migrations.DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	client, err := persistence.New(persistenceConfig{
		debug:  envBool("DB_DEBUG"),
		driver: driver,
		server: dsn,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func buildProcessor(ctx context.Context, cfg core.Config, factory *sqlstore.RepositoryFactory) *webhooks.Processor {
	store := factory.MessageStore()
	resolver := webhooks.NewResolver(store, cfg.Correlation.Channel, cfg.Correlation.Window())
	processor := webhooks.NewProcessor(store, factory.MessageEventStore(), resolver)

	if envBool("MAILHOOKS_DEDUPE") {
		processor.Ledger = factory.WebhookDeliveryStore()
	}
	if cfg.CRM.Enabled() {
		notifier := buildNotifier(cfg.CRM)
		if envBool("MAILHOOKS_ASYNC_NOTIFY") {
			notifier = startAsyncNotifier(ctx, notifier)
		}
		processor.Notifier = notifier
	}
	return processor
}

// startAsyncNotifier moves CRM calls off the webhook request path: the
// handler enqueues and a background worker drains against the delegate.
func startAsyncNotifier(ctx context.Context, delegate core.CRMNotifier) core.CRMNotifier {
	broker := gojob.NewMemoryQueue(0)
	queued, err := crm.NewQueueNotifier(gojob.NewEnqueuerAdapter(broker))
	if err != nil {
		log.Printf("async crm notifier unavailable, notifying inline: %v", err)
		return delegate
	}
	worker, err := crm.NewWorker(gojob.NewDequeuerAdapter(broker, gojob.RetryPolicy{
		MaxAttempts:     5,
		MaxDelay:        5 * time.Minute,
		DeadLetterOnMax: true,
	}), delegate)
	if err != nil {
		log.Printf("async crm notifier unavailable, notifying inline: %v", err)
		return delegate
	}
	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Printf("crm notification worker stopped: %v", err)
		}
	}()
	return queued
}

// buildNotifier fronts the CRM lookup with an in-process cache so bursts
// of events for one message resolve the record id once.
func buildNotifier(cfg core.CRMConfig) core.CRMNotifier {
	client := crm.NewClient(cfg, nil)

	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		log.Printf("crm lookup cache unavailable, using direct lookups: %v", err)
		return crm.NewNotifier(client)
	}
	cached, err := crm.NewCachedEmailLookup(client, cacheService)
	if err != nil {
		return crm.NewNotifier(client)
	}
	return crm.NewNotifierWith(cached, client)
}
