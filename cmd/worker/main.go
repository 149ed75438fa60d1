package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mediagen/internal/gallery"
	"mediagen/internal/infra"
	"mediagen/internal/notify"
	"mediagen/internal/storage"
)

// sweeper removes gallery records past their retention window.
type sweeper struct {
	gallery  *gallery.Service
	logger   infra.Logger
	interval time.Duration
	batch    int
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	blobs, _, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	s := &sweeper{
		gallery:  gallery.NewService(gallery.NewPGStore(runner), blobs, logger),
		logger:   logger,
		interval: cfg.SweepInterval,
		batch:    cfg.SweepBatchSize,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.run(gctx) })

	if cfg.AMQPURL != "" {
		queue, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: amqp setup failed")
		}
		defer queue.Close()
		g.Go(func() error {
			return queue.Consume(gctx, "mediagen-worker", func(_ context.Context, n notify.Notice) error {
				logger.Info().
					Str("notice", string(n.Kind)).
					Str("user_id", n.UserID).
					Str("job_id", n.JobID).
					Time("at", n.At).
					Msg("worker: notice delivered")
				return nil
			})
		})
	}

	logger.Info().Dur("interval", s.interval).Int("batch", s.batch).Msg("worker: started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
		return
	}
	logger.Info().Msg("worker: stopped")
}

func (s *sweeper) run(ctx context.Context) error {
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sweep drains expired records in batches until a short batch shows the
// backlog is empty.
func (s *sweeper) sweep(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := s.gallery.Sweep(ctx, time.Now(), s.batch)
		if err != nil {
			s.logger.Error().Err(err).Msg("worker: sweep failed")
			return
		}
		total += n
		if n < s.batch || n == 0 {
			break
		}
	}
	if total > 0 {
		s.logger.Info().Int("deleted", total).Msg("worker: expired gallery records removed")
	}
}
