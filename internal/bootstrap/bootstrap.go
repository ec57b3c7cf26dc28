// Package bootstrap assembles the campaign engine from configuration. Every
// binary under cmd/ builds its dependencies through New so that storage,
// locking, channel providers and tracking are wired the same way everywhere.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Santonastaso/crm-demo-sub000/internal/channels/ses"
	"github.com/Santonastaso/crm-demo-sub000/internal/channels/sms"
	"github.com/Santonastaso/crm-demo-sub000/internal/channels/whatsapp"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/distlock"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
	"github.com/Santonastaso/crm-demo-sub000/internal/repository/memory"
	"github.com/Santonastaso/crm-demo-sub000/internal/repository/postgres"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
	trackingsvc "github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
	"github.com/Santonastaso/crm-demo-sub000/internal/tracking"
	"github.com/Santonastaso/crm-demo-sub000/internal/worker"
)

// App holds the wired services.
type App struct {
	Config *config.Config

	// DB is nil with the memory driver; Memory is nil with postgres.
	DB     *sqlx.DB
	Memory *memory.Store
	Redis  *redis.Client

	Links      *trackingsvc.LinkBuilder
	Dispatcher *dispatch.Dispatcher
	Segments   *segment.Service
	Campaigns  *campaign.Service
	Tracker    *trackingsvc.Service

	// ActiveCampaigns feeds the step worker.
	ActiveCampaigns worker.CampaignLister

	closers []io.Closer
}

// Option adjusts wiring before services are built. Tests use it to swap
// the dispatcher's providers.
type Option func(*App)

// WithDispatcher replaces the provider-backed dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(a *App) { a.Dispatcher = d }
}

// SetupLogging applies the log section to the process-wide logger. The
// returned closer is nil unless output rotates to a file.
func SetupLogging(cfg config.LogConfig) io.Closer {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(!cfg.KeepPII)
	if cfg.File == "" {
		return nil
	}
	return logger.RotateTo(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
}

// New connects storage and builds every service.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg}

	var (
		campaigns campaign.Repository
		sends     interface {
			campaign.SendRepository
			trackingsvc.Repository
		}
		segments segment.Repository
	)
	switch cfg.Database.Driver {
	case "memory":
		a.Memory = memory.NewStore()
		campaigns, sends, segments = a.Memory.Campaigns(), a.Memory.Sends(), a.Memory.Segments()
		log.Println("[Bootstrap] using in-memory store")
	default:
		db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db)
		campaigns = postgres.NewCampaignRepo(db)
		sends = postgres.NewSendRepo(db)
		segments = postgres.NewSegmentRepo(db)
		log.Println("[Bootstrap] connected to PostgreSQL")
	}

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, a.Redis)
	}

	a.Links = trackingsvc.NewLinkBuilder(cfg.Tracking.BaseURL, cfg.Tracking.SigningKey)
	for _, opt := range opts {
		opt(a)
	}
	if a.Dispatcher == nil {
		d, err := NewDispatcher(ctx, cfg, a.Links)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Dispatcher = d
	}
	log.Printf("[Bootstrap] delivery channels: %v", a.Dispatcher.Channels())

	a.Segments = segment.NewService(segments)
	a.Campaigns = campaign.NewService(campaigns, sends, a.Segments, a.Dispatcher, a.lockFactory(), campaign.Options{
		Concurrency:        cfg.Campaign.Concurrency,
		DelayPolicy:        campaign.DelayPolicy(cfg.Campaign.DelayPolicy),
		FailOnTotalFailure: cfg.Campaign.FailOnTotalFailure,
		StalePendingAfter:  cfg.Campaign.LockTTL,
	})
	a.Tracker = trackingsvc.NewService(sends, trackingsvc.NewBotFilter(cfg.Tracking.BotPatterns...))
	a.ActiveCampaigns = campaigns
	return a, nil
}

// lockFactory prefers Redis, then Postgres advisory locks, then in-process
// locks for the memory driver.
func (a *App) lockFactory() distlock.Factory {
	switch {
	case a.Redis != nil:
		return distlock.NewFactory(a.Redis, nil, a.Config.Campaign.LockTTL)
	case a.DB != nil:
		return distlock.NewFactory(nil, a.DB.DB, a.Config.Campaign.LockTTL)
	}
	return distlock.NewLocalFactory()
}

// NewDispatcher registers a channel for every configured provider. Email
// links are instrumented only when a tracking base URL is set.
func NewDispatcher(ctx context.Context, cfg *config.Config, links *trackingsvc.LinkBuilder) (*dispatch.Dispatcher, error) {
	d := dispatch.NewDispatcher()

	if cfg.SES.FromAddress != "" {
		p, err := ses.New(ctx, cfg.SES)
		if err != nil {
			return nil, fmt.Errorf("ses provider: %w", err)
		}
		var inst dispatch.Instrumenter
		if cfg.Tracking.BaseURL != "" && links != nil {
			inst = links
		}
		d.Register(domain.ChannelEmail, dispatch.NewEmailChannel(p, inst), cfg.SES.RatePerSecond, cfg.SES.Burst)
	} else {
		logger.Warn("email channel disabled", "reason", "ses.from_address is not set")
	}

	if cfg.SMS.Enabled() {
		d.Register(domain.ChannelSMS, dispatch.NewPhoneChannel(sms.New(cfg.SMS)), cfg.SMS.RatePerSecond, cfg.SMS.Burst)
	} else {
		logger.Warn("sms channel disabled", "reason", "sms.base_url is not set")
	}

	if cfg.WhatsApp.Enabled() {
		d.Register(domain.ChannelWhatsApp, dispatch.NewPhoneChannel(whatsapp.New(cfg.WhatsApp)), cfg.WhatsApp.RatePerSecond, cfg.WhatsApp.Burst)
	} else {
		logger.Warn("whatsapp channel disabled", "reason", "whatsapp.base_url is not set")
	}
	return d, nil
}

// NewSQSClient builds the tracking queue client.
func NewSQSClient(ctx context.Context, cfg config.TrackingConfig) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// TrackingRecorder returns the recorder the tracking endpoint writes to:
// the service itself in direct mode, an SQS publisher in sqs mode. The
// returned stop function drains in-flight publishes.
func (a *App) TrackingRecorder(ctx context.Context) (tracking.Recorder, func(), error) {
	if a.Config.Tracking.Mode != "sqs" {
		return tracking.NewDirectRecorder(a.Tracker), func() {}, nil
	}
	client, err := NewSQSClient(ctx, a.Config.Tracking)
	if err != nil {
		return nil, nil, err
	}
	pub := tracking.NewPublisher(client, a.Config.Tracking.QueueURL)
	return pub, pub.Close, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
