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

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/db"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	PatientLimit int
	StaffLimit   int
	ServiceCode  string
	Token        string
}

// DataPool holds the codes the simulator books against. Doctors and rooms are
// kept small so that workers collide on purpose.
type DataPool struct {
	Patients []string
	Doctors  []string
	Rooms    []string
	Slots    []time.Time
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	Codes     map[string]int
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, code string) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	if code != "" {
		if om.Codes == nil {
			om.Codes = make(map[string]int)
		}
		om.Codes[code]++
	}
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, worst time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	worst = latencies[len(latencies)-1]
	return avg, p50, p95, worst
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  zerolog.Logger
	booking OperationMetrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fallback := logging.Bootstrap("simulate")
		fallback.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg, "simulate")

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		logger.Fatal().Int("workers", cfg.Workers).Dur("duration", cfg.Duration).Msg("SIM_WORKERS and SIM_DURATION must be > 0")
	}
	if baseCfg.JWTSecret != "" {
		cfg.Token, err = adminToken(baseCfg.JWTSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("sign admin token")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, baseCfg.ClinicLocation)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("doctors", len(dataPool.Doctors)).
		Int("rooms", len(dataPool.Rooms)).
		Int("slots", len(dataPool.Slots)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	overlaps, err := countOverlaps(verifyCtx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify overlaps")
	}
	if overlaps > 0 {
		logger.Error().Int("overlaps", overlaps).Msg("double booking detected")
		os.Exit(1)
	}
	logger.Info().Msg("no overlapping active appointments")
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		StaffLimit:   getInt("SIM_STAFF_LIMIT", 3),
		ServiceCode:  getEnv("SIM_SERVICE_CODE", "SV-KHAM"),
	}
}

func adminToken(secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   "simulate",
		"roles": []string{"ADMIN"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, loc *time.Location) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT patient_code FROM patients WHERE is_active ORDER BY id LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, code)
	}
	rows.Close()

	// Tomorrow's morning shift is the contested window.
	now := time.Now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	rows, err = pool.Query(ctx, `
		SELECT DISTINCT e.employee_code
		FROM employees e
		JOIN employee_shifts s ON s.employee_id = e.id
		WHERE e.is_active AND e.employee_code LIKE 'EMP%' AND s.work_date = $1::date
		ORDER BY e.employee_code
		LIMIT $2
	`, day, cfg.StaffLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, code)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT r.room_code
		FROM rooms r
		JOIN room_services rs ON rs.room_id = r.id
		JOIN services sv ON sv.id = rs.service_id
		WHERE r.is_active AND sv.service_code = $1
		ORDER BY r.room_code
		LIMIT $2
	`, cfg.ServiceCode, cfg.StaffLimit)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Rooms = append(dataPool.Rooms, code)
	}
	rows.Close()

	for t := day.Add(8 * time.Hour); t.Before(day.Add(11 * time.Hour)); t = t.Add(15 * time.Minute) {
		dataPool.Slots = append(dataPool.Slots, t)
	}

	if len(dataPool.Patients) == 0 || len(dataPool.Doctors) == 0 || len(dataPool.Rooms) == 0 {
		return nil, fmt.Errorf("nothing to book: run the seed command first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			s.doBooking(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool
	reqBody := map[string]any{
		"patient_code":  p.Patients[rng.Intn(len(p.Patients))],
		"doctor_code":   p.Doctors[rng.Intn(len(p.Doctors))],
		"room_code":     p.Rooms[rng.Intn(len(p.Rooms))],
		"service_codes": []string{s.config.ServiceCode},
		"start_time":    p.Slots[rng.Intn(len(p.Slots))].Format("2006-01-02T15:04:05"),
		"notes":         "load test",
	}
	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/v1/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.booking.Record(latency, 0, "TRANSPORT_ERROR")
		}
		return
	}
	defer resp.Body.Close()

	code := ""
	if resp.StatusCode != http.StatusCreated {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		code = errResp.Error
	}
	s.booking.Record(latency, resp.StatusCode, code)
}

// countOverlaps reports pairs of active appointments that share a doctor,
// room or patient over an intersecting time range.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b ON a.id < b.id
			AND (a.employee_id = b.employee_id OR a.room_id = b.room_id OR a.patient_id = b.patient_id)
			AND a.appointment_start_time < b.appointment_end_time
			AND b.appointment_start_time < a.appointment_end_time
		WHERE a.status IN ('SCHEDULED', 'CHECKED_IN', 'IN_PROGRESS')
		  AND b.status IN ('SCHEDULED', 'CHECKED_IN', 'IN_PROGRESS')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	om := &s.booking
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Println("no bookings attempted")
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, worst := om.Stats()

	fmt.Println("Booking:")
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Created: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	fmt.Printf("  Other rejections: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), worst.Round(time.Millisecond))

	om.mu.Lock()
	codes := make([]string, 0, len(om.Codes))
	for c := range om.Codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		fmt.Printf("  %-28s %d\n", c, om.Codes[c])
	}
	om.mu.Unlock()
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
