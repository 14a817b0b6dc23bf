package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("REDIS_URL", "")
	t.Setenv("CLINIC_TIMEZONE", "")
	t.Setenv("CLINICAL_SPECIALIZATION_ID", "")
	t.Setenv("LOCK_WAIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClinicLocation == nil || cfg.ClinicLocation.String() != "Asia/Ho_Chi_Minh" {
		t.Errorf("location = %v", cfg.ClinicLocation)
	}
	if cfg.ClinicalSpecializationID != 8 {
		t.Errorf("clinical specialization = %d, want 8", cfg.ClinicalSpecializationID)
	}
	if cfg.LockWait != 2*time.Second {
		t.Errorf("lock wait = %s", cfg.LockWait)
	}
	if !cfg.IsDev() {
		t.Error("expected dev")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "redis://booker:pw@cache:6380")
	t.Setenv("CLINIC_TIMEZONE", "UTC")
	t.Setenv("CLINICAL_SPECIALIZATION_ID", "3")
	t.Setenv("LOCK_WAIT", "500ms")
	t.Setenv("NO_SHOW_GRACE", "600")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr != "cache:6380" || cfg.RedisUsername != "booker" || cfg.RedisPassword != "pw" {
		t.Errorf("redis = %s %s %s", cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	}
	if cfg.ClinicLocation != time.UTC {
		t.Errorf("location = %v", cfg.ClinicLocation)
	}
	if cfg.ClinicalSpecializationID != 3 {
		t.Errorf("clinical specialization = %d", cfg.ClinicalSpecializationID)
	}
	if cfg.LockWait != 500*time.Millisecond {
		t.Errorf("lock wait = %s", cfg.LockWait)
	}
	if cfg.NoShowGrace != 10*time.Minute {
		t.Errorf("no-show grace = %s", cfg.NoShowGrace)
	}
}

func TestLoadRequiredValues(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without POSTGRES_DSN")
	}

	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET outside dev")
	}

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
