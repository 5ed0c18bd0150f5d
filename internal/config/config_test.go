package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123"

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// Storage
	t.Setenv("DB_DRIVER", "pg")
	t.Setenv("DATABASE_URL", "postgres://forms@localhost/forms")
	t.Setenv("UPLOADS_DIR", "/var/forms")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")

	// Cache / auth
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("ADMIN_PASSWORD", "pw")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 20
	t.Setenv("RATE_COST_DELETE", "5")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("ENDPOINT_ALLOWED_IPS", "10.0.0.1, 10.0.0.2")

	// Idempotency
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	// Storage
	if cfg.DB.Driver != "postgres" || cfg.DB.URL == "" || cfg.UploadsDir != "/var/forms" || cfg.MaxUploadBytes != 1024 {
		t.Fatalf("storage fields unexpected: %+v", cfg)
	}

	if cfg.RedisAddr != "redis:6379" || cfg.CacheTTL != time.Minute {
		t.Fatalf("cache fields unexpected: %+v", cfg)
	}
	if cfg.Auth.JWTSecret != testSecret || cfg.Auth.JWTTTL != time.Hour || cfg.Auth.AdminUsername != "admin" || cfg.Auth.AdminPassword != "pw" {
		t.Fatalf("auth fields unexpected: %+v", cfg.Auth)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.Rate.RPS != 5.0 || cfg.Rate.Burst != 20 {
		t.Fatalf("rate limiting unexpected: %+v", cfg.Rate)
	}
	if cfg.Rate.Costs["DELETE"] != 5 || cfg.Rate.Costs["GET"] != 1 || cfg.Rate.Costs["POST"] != 2 {
		t.Fatalf("rate costs unexpected: %+v", cfg.Rate.Costs)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !reflect.DeepEqual(cfg.Endpoints.AllowedIPs, []string{"10.0.0.1", "10.0.0.2"}) || cfg.Endpoints.AllowedOrigins != nil {
		t.Fatalf("endpoints unexpected: %+v", cfg.Endpoints)
	}

	// Idempotency
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_DefaultsInTestMode(t *testing.T) {
	t.Setenv("GIN_MODE", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "forms.db" || cfg.UploadsDir != "uploads" {
		t.Fatalf("storage defaults unexpected: %+v", cfg)
	}
	if cfg.RedisAddr != "" || cfg.OTEL.ServiceName != "go-forms-backend" || !cfg.LogRedact {
		t.Fatalf("defaults unexpected: %+v", cfg)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"non-positive timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts"},
		{"bad MAX_HEADER_BYTES", map[string]string{"MAX_HEADER_BYTES": "-1"}, "MAX_HEADER_BYTES"},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"bad upload cap", map[string]string{"MAX_UPLOAD_BYTES": "0"}, "MAX_UPLOAD_BYTES"},
		{"bad cache ttl", map[string]string{"CACHE_TTL": "-1s"}, "CACHE_TTL"},
		{"short secret in release", map[string]string{"GIN_MODE": "release", "JWT_SECRET": "short"}, "JWT_SECRET"},
		{"negative RPS", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"cost above burst", map[string]string{"RATE_COST_GET": "500"}, "RATE_COST_GET"},
		{"negative HSTS", map[string]string{"HSTS_MAX_AGE": "-1h"}, "HSTS_MAX_AGE"},
		{"zero idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sampler out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GIN_MODE", "test")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// --- dotenv ---

func TestLoadDotEnv_FindsFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FORMS_DOTENV_PROBE=hello\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("FORMS_DOTENV_PROBE")
	})

	p, err := LoadDotEnv()
	if err != nil || p != ".env" {
		t.Fatalf("LoadDotEnv = %q, %v", p, err)
	}
	if got := os.Getenv("FORMS_DOTENV_PROBE"); got != "hello" {
		t.Fatalf("variable not loaded: %q", got)
	}
}

// --- helpers ---

func TestHelpers_ParseFallbacks(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_FLOAT", "1.5")

	if getint("X_INT", 7) != 7 {
		t.Fatalf("getint fallback failed")
	}
	if !getbool("X_BOOL", true) {
		t.Fatalf("getbool fallback failed")
	}
	if getdur("X_DUR", time.Second) != time.Second {
		t.Fatalf("getdur fallback failed")
	}
	if getfloat("X_FLOAT", 0) != 1.5 {
		t.Fatalf("getfloat parse failed")
	}
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty should be nil")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"  ":       "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1":  "/api/v1",
		"api/v1//": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
