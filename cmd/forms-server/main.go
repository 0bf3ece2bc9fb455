// cmd/forms-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	awsclients "clinic-forms/internal/common/aws"
	"clinic-forms/internal/common/config"
	"clinic-forms/internal/common/database"
	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/common/observability"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/mail"
	"clinic-forms/internal/notification"
	"clinic-forms/internal/server"
	"clinic-forms/internal/storage"
	"clinic-forms/internal/submission"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting forms server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	validation.SetEmailPolicy(validation.DefaultEmailPolicy().Merge(validation.EmailPolicy{
		DenyDomains:     cfg.Forms.EmailPolicy.DenyDomains,
		AllowDomains:    cfg.Forms.EmailPolicy.AllowDomains,
		MinLabels:       cfg.Forms.EmailPolicy.MinLabels,
		MinTLDLength:    cfg.Forms.EmailPolicy.MinTLDLength,
		MaxTLDLength:    cfg.Forms.EmailPolicy.MaxTLDLength,
		MinDomainLength: cfg.Forms.EmailPolicy.MinDomainLength,
	}))

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- AWS config, only when a provider needs it ---
	var awsCfg aws.Config
	if cfg.Mail.Provider == "ses" || cfg.Storage.Provider == "s3" || cfg.Notifications.SMS.Enabled {
		awsCfg, err = awsclients.LoadConfig(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
	}

	// --- Mail transport ---
	var mailer mail.Transport
	switch cfg.Mail.Provider {
	case "ses":
		mailer = mail.NewSESTransport(awsclients.NewSESClient(awsCfg), cfg.Mail.FromEmail)
	case "smtp":
		smtp := cfg.Integrations.SMTP
		mailer = mail.NewSMTPTransport(mail.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			UseTLS:   smtp.UseTLS,
			From:     cfg.Mail.FromEmail,
		})
	default:
		mailer = mail.NewLogTransport(cfg.Mail.FromEmail, log)
	}
	zapLog.Info("Mail transport ready", zap.String("provider", mailer.Name()))

	// --- Object store ---
	var store storage.ObjectStore
	switch cfg.Storage.Provider {
	case "s3":
		s3Client := awsclients.NewS3Client(awsCfg, awsclients.S3Options{
			Endpoint:     cfg.Integrations.AWS.S3.Endpoint,
			UsePathStyle: cfg.Integrations.AWS.S3.UsePathStyle,
		})
		store = storage.NewS3Store(s3Client, cfg.Storage.Bucket, cfg.Integrations.AWS.Region, cfg.Storage.PublicBaseURL)
	default:
		store = storage.NewMemoryStore(cfg.Storage.PublicBaseURL)
	}
	zapLog.Info("Object store ready", zap.String("provider", store.Name()))

	deps := submission.Dependencies{
		Store:    store,
		Mailer:   mailer,
		Renderer: notification.NewRenderer(cfg.Mail),
		Logger:   log,
		Obs:      obs,
	}
	checks := map[string]server.Checker{}

	// --- Init Redis with retry ---
	if cfg.Database.Redis.Enabled {
		redis := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		deps.Guard = submission.NewRedisGuard(redis, config.GetDuration(cfg.Forms.DuplicateWindow))
		checks["redis"] = redis
		zapLog.Info("Redis connected successfully")
	}

	// --- Init PostgreSQL with retry ---
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("postgres schema failed", zap.Error(err))
		}
		deps.Audit = submission.NewPostgresAudit(pg)
		checks["postgres"] = pg
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Staff SMS alerts ---
	if cfg.Notifications.SMS.Enabled {
		deps.Alerter = submission.NewSMSAlerter(
			awsclients.NewSNSClient(awsCfg),
			cfg.Notifications.SMS.Phones,
			cfg.Integrations.AWS.SNS.DefaultSMSSenderID,
		)
		zapLog.Info("SMS alerts enabled", zap.Int("phones", len(cfg.Notifications.SMS.Phones)))
	}

	handler := submission.NewHandler(deps, submission.Options{
		CollaboratorTimeout: config.GetDuration(cfg.Forms.CollaboratorTimeout),
		MaxBodyBytes:        cfg.Server.MaxBodyBytes,
	})

	srv, err := server.NewServer(cfg, handler, log, checks)
	if err != nil {
		zapLog.Fatal("server init failed", zap.Error(err))
	}

	if err := srv.Start(ctx); err != nil {
		zapLog.Error("forms server stopped with error", zap.Error(err))
		return
	}
	zapLog.Info("Forms server stopped gracefully")
}
