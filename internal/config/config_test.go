package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.OTPTTL != "10m" {
		t.Errorf("OTPTTL = %q, want %q", cfg.OTPTTL, "10m")
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.OTPCodeLength != 6 {
		t.Errorf("OTPCodeLength = %d, want 6", cfg.OTPCodeLength)
	}
	if cfg.OTPRequestsPerHour != 5 {
		t.Errorf("OTPRequestsPerHour = %d, want 5", cfg.OTPRequestsPerHour)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.DetectorWindowHours != 24 {
		t.Errorf("DetectorWindowHours = %d, want 24", cfg.DetectorWindowHours)
	}
	if cfg.AnomalyCriticalBlockRate != 0.50 {
		t.Errorf("AnomalyCriticalBlockRate = %v, want 0.50", cfg.AnomalyCriticalBlockRate)
	}
	if cfg.AnomalyWarningBlockRate != 0.25 {
		t.Errorf("AnomalyWarningBlockRate = %v, want 0.25", cfg.AnomalyWarningBlockRate)
	}
	if cfg.AnomalyFanoutSources != 100 {
		t.Errorf("AnomalyFanoutSources = %d, want 100", cfg.AnomalyFanoutSources)
	}
	if cfg.AlertKafkaTopic != "authn-anomaly-alerts" {
		t.Errorf("AlertKafkaTopic = %q, want default", cfg.AlertKafkaTopic)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_TTL", "5m")
	os.Setenv("OTP_MAX_ATTEMPTS", "3")
	os.Setenv("DETECTOR_INTERVAL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OTPTTL != "5m" {
		t.Errorf("OTPTTL = %q, want %q", cfg.OTPTTL, "5m")
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Errorf("OTPMaxAttempts = %d, want 3", cfg.OTPMaxAttempts)
	}
	if got := cfg.DetectInterval(); got != 30*time.Minute {
		t.Errorf("DetectInterval = %v, want 30m", got)
	}
}

func TestLoad_DevOTPInProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for dev OTP mode in production")
	}
}

func TestLoad_InvalidThresholdOrdering(t *testing.T) {
	os.Clearenv()
	os.Setenv("ANOMALY_WARNING_BLOCK_RATE", "0.9")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when warning threshold >= critical threshold")
	}
}

func TestLoad_InvalidCodeLength(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_CODE_LENGTH", "2")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for code length below 4")
	}
}

func TestDurationHelpers_Fallbacks(t *testing.T) {
	cfg := &Config{OTPTTL: "bogus", DeliveryTimeout: "", DetectorInterval: "-3s"}
	if got := cfg.ChallengeTTL(); got != 10*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 10m fallback", got)
	}
	if got := cfg.SendTimeout(); got != 15*time.Second {
		t.Errorf("SendTimeout = %v, want 15s fallback", got)
	}
	if got := cfg.DetectInterval(); got != time.Hour {
		t.Errorf("DetectInterval = %v, want 1h fallback", got)
	}
}

func TestAlertKafkaBrokersList(t *testing.T) {
	cfg := &Config{AlertKafkaBrokers: " localhost:9092 , broker2:9092,, "}
	got := cfg.AlertKafkaBrokersList()
	if len(got) != 2 || got[0] != "localhost:9092" || got[1] != "broker2:9092" {
		t.Errorf("AlertKafkaBrokersList = %v, want [localhost:9092 broker2:9092]", got)
	}

	var nilCfg *Config
	if nilCfg.AlertKafkaBrokersList() != nil {
		t.Error("nil config should return nil broker list")
	}
}
