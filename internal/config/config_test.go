package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port == "" {
		t.Fatalf("expected a default port")
	}
	if cfg.Address() != ":"+cfg.Port {
		t.Fatalf("address = %q, want :%s", cfg.Address(), cfg.Port)
	}
	if cfg.DebtAttributionRate <= 0 || cfg.DebtAttributionRate > 1 {
		t.Fatalf("debt attribution rate out of range: %v", cfg.DebtAttributionRate)
	}
	if cfg.TrendLimit < 1 {
		t.Fatalf("trend limit must be positive: %d", cfg.TrendLimit)
	}
}

func TestLoadHonorsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("DEBT_ATTRIBUTION_RATE", "0.5")
	t.Setenv("TREND_LIMIT", "3")

	cfg := Load()
	if cfg.Port != "9191" {
		t.Fatalf("port = %q, want 9191", cfg.Port)
	}
	if cfg.DebtAttributionRate != 0.5 {
		t.Fatalf("debt rate = %v, want 0.5", cfg.DebtAttributionRate)
	}
	if cfg.TrendLimit != 3 {
		t.Fatalf("trend limit = %d, want 3", cfg.TrendLimit)
	}
}

func TestLoadRejectsBadRates(t *testing.T) {
	t.Setenv("DEBT_ATTRIBUTION_RATE", "7")
	t.Setenv("TREND_LIMIT", "-2")

	cfg := Load()
	if cfg.DebtAttributionRate != 0.3 {
		t.Fatalf("out-of-range rate should fall back to 0.3, got %v", cfg.DebtAttributionRate)
	}
	if cfg.TrendLimit != 5 {
		t.Fatalf("negative trend limit should fall back to 5, got %d", cfg.TrendLimit)
	}
}
