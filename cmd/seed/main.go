package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/db"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/logging"
)

type seedOptions struct {
	doctors  int
	nurses   int
	patients int
	rooms    int
	days     int
	seed     uint64
}

type specialization struct {
	id   int64
	code string
	name string
}

type dentalService struct {
	code     string
	name     string
	duration int
	buffer   int
	specCode string
}

var specializations = []specialization{
	{1, "ORTHO", "Orthodontics"},
	{2, "ENDO", "Endodontics"},
	{3, "PERIO", "Periodontics"},
	{4, "PROSTHO", "Prosthodontics"},
	{5, "PEDO", "Pediatric Dentistry"},
	{6, "SURGERY", "Oral Surgery"},
	{7, "IMPLANT", "Implantology"},
	{8, "CLINICAL", "Clinical Staff"},
}

var services = []dentalService{
	{"SV-KHAM", "General examination", 30, 0, ""},
	{"SV-CAOVOI", "Scaling and polishing", 30, 10, ""},
	{"SV-TRAM", "Composite filling", 45, 15, ""},
	{"SV-NHORANG", "Tooth extraction", 60, 15, "SURGERY"},
	{"SV-TUYCHAN", "Root canal treatment", 90, 15, "ENDO"},
	{"SV-NIENGRANG", "Braces adjustment", 45, 15, "ORTHO"},
	{"SV-IMPLANT", "Implant placement", 120, 30, "IMPLANT"},
	{"SV-NHITRE", "Pediatric check-up", 30, 10, "PEDO"},
}

func main() {
	opts := seedOptions{}

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the clinic database with fake reference data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().IntVar(&opts.doctors, "doctors", 12, "number of dentists")
	rootCmd.Flags().IntVar(&opts.nurses, "nurses", 12, "number of assistants")
	rootCmd.Flags().IntVar(&opts.patients, "patients", 2000, "number of patients")
	rootCmd.Flags().IntVar(&opts.rooms, "rooms", 8, "number of treatment rooms")
	rootCmd.Flags().IntVar(&opts.days, "days", 14, "days of shifts to generate from today")
	rootCmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed (0 picks one from the clock)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg, "seed")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		return err
	}
	defer pool.Close()

	if opts.seed == 0 {
		opts.seed = uint64(time.Now().UnixNano())
	}
	faker := gofakeit.New(opts.seed)
	logger.Info().Uint64("seed", opts.seed).Msg("seed starting")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	specIDs, err := seedSpecializations(ctx, tx)
	if err != nil {
		return fmt.Errorf("seed specializations: %w", err)
	}
	serviceIDs, err := seedServices(ctx, tx, specIDs)
	if err != nil {
		return fmt.Errorf("seed services: %w", err)
	}
	if err := seedRooms(ctx, tx, faker, opts.rooms, serviceIDs); err != nil {
		return fmt.Errorf("seed rooms: %w", err)
	}
	staff, err := seedEmployees(ctx, tx, faker, opts, cfg.ClinicalSpecializationID)
	if err != nil {
		return fmt.Errorf("seed employees: %w", err)
	}
	if err := seedShifts(ctx, tx, staff, opts.days, cfg.ClinicLocation); err != nil {
		return fmt.Errorf("seed shifts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info().Int("staff", len(staff)).Int("days", opts.days).Msg("reference data seeded")

	if err := seedPatients(ctx, pool, faker, opts.patients, logger); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedSpecializations(ctx context.Context, tx pgx.Tx) (map[string]int64, error) {
	ids := make(map[string]int64, len(specializations))
	for _, s := range specializations {
		_, err := tx.Exec(ctx, `
			INSERT INTO specializations (id, code, name)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name
		`, s.id, s.code, s.name)
		if err != nil {
			return nil, err
		}
		ids[s.code] = s.id
	}

	_, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('specializations', 'id'), (SELECT MAX(id) FROM specializations))`)
	return ids, err
}

func seedServices(ctx context.Context, tx pgx.Tx, specIDs map[string]int64) ([]int64, error) {
	ids := make([]int64, 0, len(services))
	for _, s := range services {
		var specID *int64
		if s.specCode != "" {
			id := specIDs[s.specCode]
			specID = &id
		}

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO services (service_code, service_name, duration_minutes, buffer_minutes, specialization_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (service_code) DO UPDATE SET service_name = EXCLUDED.service_name
			RETURNING id
		`, s.code, s.name, s.duration, s.buffer, specID).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedRooms(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, count int, serviceIDs []int64) error {
	for i := 1; i <= count; i++ {
		var roomID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO rooms (room_code, room_name)
			VALUES ($1, $2)
			ON CONFLICT (room_code) DO UPDATE SET room_name = EXCLUDED.room_name
			RETURNING id
		`, fmt.Sprintf("P-%02d", i), fmt.Sprintf("Treatment room %d", i)).Scan(&roomID)
		if err != nil {
			return err
		}

		// Every room handles general work; specialist services land in roughly half.
		for j, serviceID := range serviceIDs {
			if j >= 3 && !faker.Bool() {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO room_services (room_id, service_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, roomID, serviceID)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedEmployees(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, opts seedOptions, clinicalID int64) ([]int64, error) {
	var staff []int64

	insert := func(code string, specs []int64) (int64, error) {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO employees (employee_code, full_name)
			VALUES ($1, $2)
			ON CONFLICT (employee_code) DO UPDATE SET full_name = EXCLUDED.full_name
			RETURNING id
		`, code, faker.Name()).Scan(&id)
		if err != nil {
			return 0, err
		}
		for _, spec := range specs {
			_, err := tx.Exec(ctx, `
				INSERT INTO employee_specializations (employee_id, specialization_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, spec)
			if err != nil {
				return 0, err
			}
		}
		return id, nil
	}

	for i := 1; i <= opts.doctors; i++ {
		specialist := specializations[faker.IntRange(0, len(specializations)-2)].id
		id, err := insert(fmt.Sprintf("EMP%03d", i), []int64{clinicalID, specialist})
		if err != nil {
			return nil, err
		}
		staff = append(staff, id)
	}
	for i := 1; i <= opts.nurses; i++ {
		id, err := insert(fmt.Sprintf("NUR%03d", i), []int64{clinicalID})
		if err != nil {
			return nil, err
		}
		staff = append(staff, id)
	}
	// Front desk staff hold no clinical marker and cannot be booked.
	if _, err := insert("REC001", nil); err != nil {
		return nil, err
	}

	return staff, nil
}

func seedShifts(ctx context.Context, tx pgx.Tx, staff []int64, days int, loc *time.Location) error {
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var rows [][]any
	for d := 0; d < days; d++ {
		day := today.AddDate(0, 0, d)
		if day.Weekday() == time.Sunday {
			continue
		}
		morningStart := day.Add(8 * time.Hour)
		afternoonStart := day.Add(13 * time.Hour)
		for _, employeeID := range staff {
			rows = append(rows,
				[]any{employeeID, day, morningStart, morningStart.Add(4 * time.Hour)},
				[]any{employeeID, day, afternoonStart, afternoonStart.Add(4 * time.Hour)},
			)
		}
	}

	_, err := tx.Exec(ctx, `DELETE FROM employee_shifts WHERE work_date >= $1::date`, today)
	if err != nil {
		return err
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"employee_shifts"},
		[]string{"employee_id", "work_date", "start_time", "end_time"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO patients (patient_code, full_name, phone)
				VALUES ($1, $2, $3)
				ON CONFLICT (patient_code) DO NOTHING
			`, fmt.Sprintf("BN%06d", i+1), faker.Name(), faker.Phone())
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		logger.Debug().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	logger.Info().Msg("patients seeded")
	return nil
}
