package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("HISTORY_WINDOW", "")
	t.Setenv("USE_MEMORY_QUEUE", "")
	t.Setenv("WHATSAPP_GRAPH_API_BASE", "")
	t.Setenv("CATALOG_CACHE_TTL", "")
	t.Setenv("LLM_TEMPERATURE", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("expected history window 10, got %d", cfg.HistoryWindow)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue by default")
	}
	if cfg.WhatsAppGraphAPIBase != "https://graph.facebook.com" {
		t.Fatalf("unexpected graph base %s", cfg.WhatsAppGraphAPIBase)
	}
	if cfg.CatalogCacheTTL != 5*time.Minute {
		t.Fatalf("expected default cache ttl, got %s", cfg.CatalogCacheTTL)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Fatalf("expected default temperature 0.7, got %v", cfg.LLMTemperature)
	}
}

func TestLoadZeroTemperature(t *testing.T) {
	t.Setenv("LLM_TEMPERATURE", "0")
	if cfg := Load(); cfg.LLMTemperature != 0 {
		t.Fatalf("expected temperature 0 to be kept, got %v", cfg.LLMTemperature)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("HISTORY_WINDOW", "6")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("WHATSAPP_GRAPH_API_BASE", "http://localhost:9999/")
	t.Setenv("CATALOG_CACHE_TTL", "30s")
	t.Setenv("BUSINESS_TIMEZONE", "America/Bogota")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.HistoryWindow != 6 {
		t.Fatalf("expected history window override, got %d", cfg.HistoryWindow)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if cfg.WhatsAppGraphAPIBase != "http://localhost:9999" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.WhatsAppGraphAPIBase)
	}
	if cfg.CatalogCacheTTL != 30*time.Second {
		t.Fatalf("expected cache ttl override, got %s", cfg.CatalogCacheTTL)
	}
	if cfg.BusinessTimezone != "America/Bogota" {
		t.Fatalf("expected timezone override, got %s", cfg.BusinessTimezone)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("WEBHOOK_RATE_LIMIT", "fast")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.WebhookRateLimit != 20 {
		t.Fatalf("expected default rate limit, got %v", cfg.WebhookRateLimit)
	}
}
