package app_test

import (
	"testing"
	"time"

	"github.com/pronas-pcd/pronas-core/internal/app"
	_ "github.com/pronas-pcd/pronas-core/testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "access-secret-for-tests")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-for-tests")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := app.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("store timeout default: got %s", cfg.StoreTimeout)
	}
	if cfg.AuditTimeout != 5*time.Second {
		t.Fatalf("audit timeout default: got %s", cfg.AuditTimeout)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Fatalf("access ttl default: got %s", cfg.JWTAccessTTL)
	}
}

func TestLoadConfigStoreTimeoutOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_TIMEOUT", "2s")

	cfg, err := app.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StoreTimeout != 2*time.Second {
		t.Fatalf("store timeout override: got %s", cfg.StoreTimeout)
	}
}

func TestLoadConfigRejectsSharedSecrets(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "same-secret")
	t.Setenv("JWT_REFRESH_SECRET", "same-secret")

	if _, err := app.LoadConfig(); err == nil {
		t.Fatal("expected error when access and refresh secrets match")
	}
}
