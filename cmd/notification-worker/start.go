package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/rrroy5640/NotificationService/config"
	"github.com/rrroy5640/NotificationService/consumer"
	"github.com/rrroy5640/NotificationService/encoder"
	"github.com/rrroy5640/NotificationService/logger"
	"github.com/rrroy5640/NotificationService/source"
	"github.com/rrroy5640/NotificationService/store"
)

const shutdownTimeout = 10 * time.Second

func start(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("stats-interval") {
		cfg.Consumer.StatsInterval = c.Duration("stats-interval")
	}

	l, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.SetGlobal(l)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := loadAWS(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	if cfg.NeedsParameters() {
		ssmClient := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			o.BaseEndpoint = endpoint(cfg.AWS)
		})
		if err := config.ResolveParameters(ctx, ssmClient, &cfg); err != nil {
			return fmt.Errorf("resolve parameters: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = endpoint(cfg.AWS)
	})
	queue, err := source.NewSQS(sqsClient, cfg.Queue.URL, sqsConfig(cfg.Queue))
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	cons, err := consumer.New(queue, st, consumerOptions(cfg.Consumer)...)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	if cfg.Consumer.StatsInterval > 0 {
		done := make(chan struct{})
		go func() {
			defer close(done)
			monitor(ctx, cfg.Consumer.StatsInterval, queue, cons)
		}()
		defer func() { <-done }()
	}

	log.Info().
		Str("queue_url", cfg.Queue.URL).
		Str("store", cfg.Store.Driver).
		Msg("starting notification worker")

	return cons.Run(ctx)
}

func consumerOptions(cc config.ConsumerConfig) []consumer.Option {
	opts := []consumer.Option{
		consumer.WithLogger(log.Logger.With().Str("component", "consumer").Logger()),
		consumer.WithWaitTime(cc.WaitTime),
		consumer.WithPollInterval(cc.PollInterval),
		consumer.WithProcessTimeout(cc.ProcessTimeout),
	}
	if cc.InsertAttempts > 1 {
		opts = append(opts, consumer.WithInsertRetry(backoff(cc, cc.InsertAttempts)))
	}
	if cc.AckAttempts > 1 {
		opts = append(opts, consumer.WithAckRetry(backoff(cc, cc.AckAttempts)))
	}
	return opts
}

func backoff(cc config.ConsumerConfig, attempts int) consumer.Backoff {
	return consumer.Backoff{
		Attempts:  attempts,
		BaseDelay: cc.RetryBaseDelay,
		MaxDelay:  cc.RetryMaxDelay,
		Jitter:    true,
	}
}

func loadAWS(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func endpoint(cfg config.AWSConfig) *string {
	if cfg.Endpoint == "" {
		return nil
	}
	return aws.String(cfg.Endpoint)
}

func sqsConfig(q config.QueueConfig) source.SQSConfig {
	sc := source.SQSConfig{VisibilityTimeoutSeconds: int32(q.VisibilityTimeout / time.Second)}
	if q.ReleaseOnFailure {
		sc.FailVisibilityTimeoutSeconds = aws.Int32(int32(q.FailVisibilityTimeout / time.Second))
	}
	return sc
}

// openStore builds the configured store and returns a func that releases it.
func openStore(ctx context.Context, cfg config.Config, awsCfg aws.Config) (store.Store, func(), error) {
	sc := cfg.Store
	switch sc.Driver {
	case config.DriverMongo:
		m, err := store.NewMongo(ctx, store.MongoConfig{
			URI:        sc.URI,
			Database:   sc.Database,
			Collection: sc.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := m.Close(ctx); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect failed")
			}
		}, nil

	case config.DriverPostgres:
		p, err := store.NewPostgres(ctx, store.PostgresConfig{
			ConnString: sc.URI,
			Table:      sc.Table,
			MaxConns:   sc.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := p.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, nil, err
		}
		return p, p.Close, nil

	case config.DriverS3:
		comp, err := encoder.ParseCompression(sc.Compression)
		if err != nil {
			return nil, nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = endpoint(cfg.AWS)
			o.UsePathStyle = cfg.AWS.Endpoint != ""
		})
		s, err := store.NewS3(client, store.S3Config{
			Bucket:      sc.Bucket,
			Prefix:      sc.Prefix,
			Compression: comp,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

type queueStatser interface {
	Stats(ctx context.Context) (source.QueueStats, error)
}

// monitor logs queue depth and consumer counters every interval until ctx ends.
func monitor(ctx context.Context, interval time.Duration, q queueStatser, cons *consumer.Consumer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ev := log.Info()
		qs, err := q.Stats(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("queue stats unavailable")
		} else {
			ev = ev.Int64("queue_available", qs.Available).
				Int64("queue_in_flight", qs.InFlight).
				Int64("queue_delayed", qs.Delayed)
		}

		s := cons.Stats()
		ev.Int64("received", s.Received).
			Int64("stored", s.Stored).
			Int64("acknowledged", s.Acknowledged).
			Int64("unrecognized", s.Unrecognized).
			Int64("decode_failed", s.DecodeFailed).
			Int64("dispatch_failed", s.DispatchFailed).
			Int64("ack_failed", s.AckFailed).
			Msg("worker stats")
	}
}
