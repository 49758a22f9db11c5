package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

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

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ProgressRatio float64
	ReadRatio     float64
	PatientLimit  int
	DoctorLimit   int
	Days          int
	PostgresDSN   string
	SessionSplit  string
}

// target is one bookable slot, identified the way clients address it.
type target struct {
	Doctor   uuid.UUID
	Date     string
	Start    string
	Capacity int
}

type booked struct {
	ID     uuid.UUID
	Doctor uuid.UUID
	Date   string
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []target

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

// Days returns every (doctor, date) that received at least one booking.
func (dp *DataPool) Days() []booked {
	dp.mu.RLock()
	defer dp.mu.RUnlock()

	seen := make(map[string]bool)
	var out []booked
	for _, b := range dp.appointments {
		k := b.Doctor.String() + b.Date
		if !seen[k] {
			seen[k] = true
			out = append(out, b)
		}
	}
	return out
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	CheckIn       OperationMetrics
	Complete      OperationMetrics
	Cancel        OperationMetrics
	ReadByID      OperationMetrics
	QueuePosition OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	log, err := logger.New("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("progress", cfg.ProgressRatio),
		zap.Float64("read", cfg.ReadRatio))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, log)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("data loaded", zap.Int("patients", len(dataPool.Patients)), zap.Int("slots", len(dataPool.Targets)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	if violations := sim.Verify(context.Background()); violations > 0 {
		log.Error("invariant violations found", zap.Int("count", violations))
		os.Exit(1)
	}
	log.Info("tokens dense and capacity respected on every booked day")
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		ProgressRatio: getFloat("SIM_PROGRESS_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:   getInt("SIM_DOCTOR_LIMIT", 20),
		Days:          getInt("SIM_DAYS", 3),
		PostgresDSN:   baseCfg.PostgresDSN,
		SessionSplit:  baseCfg.SessionSplit,
	}

	total := cfg.BookingRatio + cfg.ProgressRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ProgressRatio /= total
		cfg.ReadRatio /= total
	}

	switch {
	case cfg.PostgresDSN == "":
		return cfg, fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	case cfg.Workers <= 0:
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	}
	return cfg, nil
}

// loadDataPool reads patients directly and derives bookable slots from the
// active schedules of the next few days.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, log *zap.Logger) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients = patients

	doctors, err := loadIDs(ctx, pool, `SELECT id FROM doctors ORDER BY name LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	split, err := calendar.ParseTimeOfDay(cfg.SessionSplit)
	if err != nil {
		return nil, fmt.Errorf("SESSION_SPLIT: %w", err)
	}
	store := schedule.NewStore(schedule.NewPgRepository(pool), clock.System(), split, log.Named("schedule"))

	tomorrow := calendar.DateOf(time.Now()).AddDate(0, 0, 1)
	rng := calendar.DateRange{Start: tomorrow, End: tomorrow.AddDate(0, 0, cfg.Days-1)}
	for _, doctor := range doctors {
		for _, date := range rng.Days() {
			slots, err := store.ListSlots(ctx, doctor, date)
			if err != nil {
				return nil, fmt.Errorf("list slots for %s: %w", doctor, err)
			}
			for _, s := range slots {
				dataPool.Targets = append(dataPool.Targets, target{
					Doctor:   doctor,
					Date:     calendar.FormatDate(date),
					Start:    s.Start.String(),
					Capacity: s.Capacity,
				})
			}
		}
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no open slots in the next %d days", cfg.Days)
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ProgressRatio:
			s.doProgress(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doQueuePosition(ctx, rng)
			case 2:
				s.doListByPatient(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	latency, status, err := s.call(ctx, http.MethodPost, "/appointments", "", map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  t.Doctor.String(),
		"date":       t.Date,
		"slot_start": t.Start,
	}, &out)
	if err == nil && status == http.StatusCreated && out.ID != uuid.Nil {
		s.pool.AddAppointment(booked{ID: out.ID, Doctor: t.Doctor, Date: t.Date})
	}
	s.metrics.Booking.Record(latency, status, err)
}

// doProgress moves a random appointment one step: check in, complete or
// cancel. Conflicts are expected when the appointment already moved on.
func (s *Simulator) doProgress(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	base := "/appointments/" + b.ID.String()

	switch rng.Intn(3) {
	case 0:
		latency, status, err := s.call(ctx, http.MethodPost, base+"/check-in", "doctor", nil, nil)
		s.metrics.CheckIn.Record(latency, status, err)
	case 1:
		latency, status, err := s.call(ctx, http.MethodPost, base+"/complete", "doctor",
			map[string]any{"duration_mins": 5 + rng.Intn(20)}, nil)
		s.metrics.Complete.Record(latency, status, err)
	case 2:
		latency, status, err := s.call(ctx, http.MethodPost, base+"/cancel", "patient",
			map[string]string{"reason": "simulated"}, nil)
		s.metrics.Cancel.Record(latency, status, err)
	}
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	latency, status, err := s.call(ctx, http.MethodGet, "/appointments/"+b.ID.String(), "", nil, nil)
	s.metrics.ReadByID.Record(latency, status, err)
}

func (s *Simulator) doQueuePosition(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	path := fmt.Sprintf("/doctors/%s/queue/%s/%s", b.Doctor, b.Date, b.ID)
	latency, status, err := s.call(ctx, http.MethodGet, path, "", nil, nil)
	s.metrics.QueuePosition.Record(latency, status, err)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	path := fmt.Sprintf("/patients/%s/appointments?limit=20&offset=0", patientID)
	latency, status, err := s.call(ctx, http.MethodGet, path, "", nil, nil)
	s.metrics.ListByPatient.Record(latency, status, err)
}

func (s *Simulator) call(ctx context.Context, method, path, role string, body, out any) (time.Duration, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return latency, resp.StatusCode, err
		}
	}
	return latency, resp.StatusCode, nil
}

// Verify reads back every booked day and checks that tokens run 1..n with
// no gaps or repeats and that no slot holds more active appointments than
// its capacity. It returns the number of violations.
func (s *Simulator) Verify(ctx context.Context) int {
	capacity := make(map[string]int, len(s.pool.Targets))
	for _, t := range s.pool.Targets {
		capacity[t.Doctor.String()+t.Date+t.Start] = t.Capacity
	}

	violations := 0
	for _, day := range s.pool.Days() {
		var list []struct {
			Token     int    `json:"token"`
			Status    string `json:"status"`
			SlotStart string `json:"slot_start"`
		}
		path := fmt.Sprintf("/doctors/%s/appointments/%s", day.Doctor, day.Date)
		if _, status, err := s.call(ctx, http.MethodGet, path, "admin", nil, &list); err != nil || status != http.StatusOK {
			s.log.Error("could not read day", zap.String("doctor", day.Doctor.String()), zap.String("date", day.Date),
				zap.Int("status", status), zap.Error(err))
			violations++
			continue
		}

		tokens := make([]int, 0, len(list))
		active := make(map[string]int)
		for _, a := range list {
			tokens = append(tokens, a.Token)
			if a.Status == "booked" || a.Status == "in_queue" {
				active[a.SlotStart]++
			}
		}
		sort.Ints(tokens)
		for i, tok := range tokens {
			if tok != i+1 {
				s.log.Error("token sequence broken", zap.String("doctor", day.Doctor.String()),
					zap.String("date", day.Date), zap.Int("position", i+1), zap.Int("token", tok))
				violations++
				break
			}
		}
		for start, n := range active {
			if limit, ok := capacity[day.Doctor.String()+day.Date+start]; ok && n > limit {
				s.log.Error("slot over capacity", zap.String("doctor", day.Doctor.String()),
					zap.String("date", day.Date), zap.String("slot", start), zap.Int("active", n), zap.Int("capacity", limit))
				violations++
			}
		}
	}
	return violations
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Check-in", &s.metrics.CheckIn)
	printOperationReport("Complete", &s.metrics.Complete)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Queue position", &s.metrics.QueuePosition)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
