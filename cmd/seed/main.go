package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/calendar"
	"github.com/hackgods/outpatient-scheduling/internal/clock"
	"github.com/hackgods/outpatient-scheduling/internal/config"
	"github.com/hackgods/outpatient-scheduling/internal/db"
	"github.com/hackgods/outpatient-scheduling/internal/logger"
	"github.com/hackgods/outpatient-scheduling/internal/schedule"
)

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to create")
	patients := flag.Int("patients", 2000, "number of patients to create")
	days := flag.Int("days", 14, "days of schedules to open per doctor, starting tomorrow")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	gofakeit.GlobalFaker = gofakeit.New(uint64(time.Now().UnixNano()))

	split, err := calendar.ParseTimeOfDay(cfg.SessionSplit)
	if err != nil {
		log.Fatal("SESSION_SPLIT", zap.Error(err))
	}
	store := schedule.NewStore(schedule.NewPgRepository(pool), clock.System(), split, log.Named("schedule"))

	ids, err := seedDoctors(context.Background(), pool, log, *doctors)
	if err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedSchedules(context.Background(), store, log, ids, *days); err != nil {
		log.Fatal("seed schedules", zap.Error(err))
	}
	if err := seedPatients(context.Background(), pool, log, *patients); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, count int) ([]uuid.UUID, error) {
	log.Info("seeding doctors", zap.Int("count", count))

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info("doctors seeded")
	return ids, nil
}

// seedSchedules opens weekdays with a lunch break. Shift start, slot length
// and capacity vary per doctor.
func seedSchedules(ctx context.Context, store *schedule.Store, log *zap.Logger, doctors []uuid.UUID, days int) error {
	log.Info("seeding schedules", zap.Int("doctors", len(doctors)), zap.Int("days", days))

	tomorrow := calendar.DateOf(time.Now()).AddDate(0, 0, 1)
	lunch := calendar.Window{Start: calendar.NewTimeOfDay(13, 0), End: calendar.NewTimeOfDay(14, 0)}
	durations := []int{10, 15, 20, 30}

	written := 0
	for _, doctor := range doctors {
		startHour := gofakeit.Number(8, 10)
		avail := schedule.Availability{
			IsAvailable:        true,
			WorkStart:          calendar.NewTimeOfDay(startHour, 0),
			WorkEnd:            calendar.NewTimeOfDay(startHour+8, 0),
			Break:              &lunch,
			SlotDurationMins:   durations[gofakeit.Number(0, len(durations)-1)],
			MaxPatientsPerSlot: gofakeit.Number(1, 3),
		}

		for i := 0; i < days; i++ {
			date := tomorrow.AddDate(0, 0, i)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			if _, err := store.SetSchedule(ctx, doctor, date, avail); err != nil {
				return fmt.Errorf("doctor %s on %s: %w", doctor, calendar.FormatDate(date), err)
			}
			written++
		}
	}

	log.Info("schedules seeded", zap.Int("records", written))
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}
