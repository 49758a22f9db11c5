// Package app wires configuration into the storage, locking, notification
// and service graph shared by the api-server and the queue-worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/appointment"
	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
	"github.com/hackgods/outpatient-scheduling/internal/config"
	"github.com/hackgods/outpatient-scheduling/internal/db"
	"github.com/hackgods/outpatient-scheduling/internal/directory"
	"github.com/hackgods/outpatient-scheduling/internal/leave"
	"github.com/hackgods/outpatient-scheduling/internal/lock"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
	"github.com/hackgods/outpatient-scheduling/internal/notify"
	"github.com/hackgods/outpatient-scheduling/internal/reconcile"
	redisclient "github.com/hackgods/outpatient-scheduling/internal/redis"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

type App struct {
	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Collector
	Clock   clock.Clock

	// Nil when the corresponding backend is not configured.
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Directory  directory.Repository
	Schedules  *schedule.Store
	Engine     *appointment.Engine
	Queue      *appointment.Queue
	Reconciler *reconcile.Reconciler
	Leave      *leave.Manager
	Publisher  notify.Publisher

	closers []func()
}

type storage struct {
	schedules    schedule.Repository
	appointments appointment.Repository
	tokens       appointment.TokenRepository
	leave        leave.Repository
	directory    directory.Repository
	tx           db.Transactor
}

// Build connects every configured backend and assembles the services.
// Callers must Close the returned App.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, m *metrics.Collector) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: m, Clock: clock.System()}

	split, err := calendar.ParseTimeOfDay(cfg.SessionSplit)
	if err != nil {
		return nil, fmt.Errorf("SESSION_SPLIT: %w", err)
	}

	st, err := a.connectStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker
	var stats appointment.DurationStats
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		})
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		stats = redisclient.NewConsultationStats(rdb, cfg.AvgWindow)
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = lock.NewKeyedMutex()
		stats = appointment.NewMemoryStats(cfg.AvgWindow)
		log.Info("redis not configured, using in-process locks")
	}

	switch cfg.Notifier {
	case config.NotifierKafka:
		kp, err := notify.NewKafkaPublisher(notify.KafkaOptions{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Publisher = kp
		a.closers = append(a.closers, func() {
			if err := kp.Close(); err != nil {
				log.Warn("error closing kafka writer", zap.Error(err))
			}
		})
	default:
		a.Publisher = notify.NewLogPublisher(log.Named("notify"))
	}

	a.Directory = st.directory
	a.Schedules = schedule.NewStore(st.schedules, a.Clock, split, log.Named("schedule"))
	a.Engine = appointment.NewEngine(st.appointments, appointment.NewTokenAllocator(st.tokens), a.Schedules, locker, st.tx,
		appointment.EngineOptions{
			Stats:       stats,
			Clock:       a.Clock,
			NoShowGrace: cfg.NoShowGrace,
			Logger:      log.Named("appointment"),
			Metrics:     m,
		})
	a.Queue = appointment.NewQueue(st.appointments, stats, a.Schedules, log.Named("queue"))
	a.Reconciler = reconcile.New(a.Engine, a.Schedules, st.directory, a.Publisher, log.Named("reconcile"), m)
	a.Leave = leave.NewManager(st.leave, a.Schedules, a.Reconciler, locker, a.Clock, log.Named("leave"), m)

	return a, nil
}

func (a *App) connectStorage(ctx context.Context) (*storage, error) {
	if a.Config.StorageDriver == config.StorageMemory {
		a.Log.Warn("using in-memory storage, state is lost on restart")
		appts := appointment.NewMemoryRepository()
		return &storage{
			schedules:    schedule.NewMemoryRepository(),
			appointments: appts,
			tokens:       appts,
			leave:        leave.NewMemoryRepository(),
			directory:    directory.NewMemoryRepository(),
			tx:           db.NopTransactor{},
		}, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, a.Config.PostgresDSN, db.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	if err := db.Migrate(pgCtx, pool); err != nil {
		return nil, err
	}
	a.Log.Info("connected to postgres")

	return &storage{
		schedules:    schedule.NewPgRepository(pool),
		appointments: appointment.NewPgRepository(pool),
		tokens:       appointment.NewPgTokenRepository(pool),
		leave:        leave.NewPgRepository(pool),
		directory:    directory.NewPgRepository(pool),
		tx:           db.NewTxManager(pool),
	}, nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
