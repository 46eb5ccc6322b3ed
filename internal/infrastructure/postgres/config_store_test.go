package postgres

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestConfigStore_Load_AssemblesRuntimeConfig(t *testing.T) {
	mock := newMockPool(t)
	store := NewConfigStore(mock, slog.Default())

	sourcesJSON := `[{"type":"r2","priority":0,"base_url":"","auth_name":null,"path_template":"videos/$1"}]`
	defaultsJSON := `{"quality":"high","video_compression":"medium","ttl_ok":3600}`

	mock.ExpectQuery("SELECT name, pattern, capture_groups, sources, defaults, auth_name FROM origins").
		WillReturnRows(pgxmock.NewRows([]string{"name", "pattern", "capture_groups", "sources", "defaults", "auth_name"}).
			AddRow("videos", `^/videos/(\d+)$`, []string{"1"}, []byte(sourcesJSON), []byte(defaultsJSON), (*string)(nil)))

	mock.ExpectQuery("SELECT name, width, height, format, quality, compression, fit, mode FROM derivatives").
		WillReturnRows(pgxmock.NewRows([]string{"name", "width", "height", "format", "quality", "compression", "fit", "mode"}).
			AddRow("thumbnail", intPtr(320), intPtr(180), "jpg", "high", "auto", "cover", "frame"))

	validOptionsJSON := `{"format":["mp4","webm"]}`
	runtimeDefaultsJSON := `{"mode":"video","format":"mp4","quality":"auto","compression":"auto","fit":"contain"}`
	cacheJSON := `{"kv_cache_enabled":true,"enable_cache_tags":true,"default_max_age":86400,"kv_read_cache_ttl":300,"store_indefinitely":false,"bypass_query_parameters":["debug"]}`

	mock.ExpectQuery("SELECT valid_options, defaults, cache FROM runtime_settings").
		WillReturnRows(pgxmock.NewRows([]string{"valid_options", "defaults", "cache"}).
			AddRow([]byte(validOptionsJSON), []byte(runtimeDefaultsJSON), []byte(cacheJSON)))

	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Origins) != 1 || cfg.Origins[0].Name != "videos" {
		t.Fatalf("unexpected origins: %+v", cfg.Origins)
	}
	if !cfg.Origins[0].Matcher.MatchString("/videos/42") {
		t.Fatalf("expected compiled matcher to match, got %v", cfg.Origins[0].Matcher)
	}
	if len(cfg.Origins[0].Sources) != 1 || cfg.Origins[0].Sources[0].PathTemplate != "videos/$1" {
		t.Fatalf("unexpected sources: %+v", cfg.Origins[0].Sources)
	}
	if cfg.Origins[0].Defaults.TTLOk != 3600 {
		t.Fatalf("unexpected origin defaults: %+v", cfg.Origins[0].Defaults)
	}

	deriv, ok := cfg.Derivatives["thumbnail"]
	if !ok || deriv.Width == nil || *deriv.Width != 320 {
		t.Fatalf("unexpected derivatives: %+v", cfg.Derivatives)
	}

	if len(cfg.ValidOptions["format"]) != 2 {
		t.Fatalf("unexpected valid options: %+v", cfg.ValidOptions)
	}
	if cfg.Defaults.Format != "mp4" {
		t.Fatalf("unexpected defaults: %+v", cfg.Defaults)
	}
	if !cfg.Cache.KVCacheEnabled || cfg.Cache.DefaultMaxAge != 86400 {
		t.Fatalf("unexpected cache settings: %+v", cfg.Cache)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfigStore_Load_SkipsOriginWithMalformedPattern(t *testing.T) {
	mock := newMockPool(t)
	store := NewConfigStore(mock, slog.Default())

	mock.ExpectQuery("SELECT name, pattern, capture_groups, sources, defaults, auth_name FROM origins").
		WillReturnRows(pgxmock.NewRows([]string{"name", "pattern", "capture_groups", "sources", "defaults", "auth_name"}).
			AddRow("broken", "(unterminated", []string{}, []byte(`[]`), []byte(`{}`), (*string)(nil)).
			AddRow("good", `^/ok/(\d+)$`, []string{"1"}, []byte(`[]`), []byte(`{}`), (*string)(nil)))

	mock.ExpectQuery("SELECT name, width, height, format, quality, compression, fit, mode FROM derivatives").
		WillReturnRows(pgxmock.NewRows([]string{"name", "width", "height", "format", "quality", "compression", "fit", "mode"}))

	mock.ExpectQuery("SELECT valid_options, defaults, cache FROM runtime_settings").
		WillReturnError(pgx.ErrNoRows)

	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Origins) != 1 || cfg.Origins[0].Name != "good" {
		t.Fatalf("expected only the well-formed origin to survive, got %+v", cfg.Origins)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfigStore_Load_NoRuntimeSettingsRowYieldsZeroValues(t *testing.T) {
	mock := newMockPool(t)
	store := NewConfigStore(mock, slog.Default())

	mock.ExpectQuery("SELECT name, pattern, capture_groups, sources, defaults, auth_name FROM origins").
		WillReturnRows(pgxmock.NewRows([]string{"name", "pattern", "capture_groups", "sources", "defaults", "auth_name"}))

	mock.ExpectQuery("SELECT name, width, height, format, quality, compression, fit, mode FROM derivatives").
		WillReturnRows(pgxmock.NewRows([]string{"name", "width", "height", "format", "quality", "compression", "fit", "mode"}))

	mock.ExpectQuery("SELECT valid_options, defaults, cache FROM runtime_settings").
		WillReturnError(pgx.ErrNoRows)

	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.ValidOptions) != 0 {
		t.Fatalf("expected empty valid options, got %+v", cfg.ValidOptions)
	}
	if cfg.Cache.KVCacheEnabled {
		t.Fatalf("expected zero-value cache settings, got %+v", cfg.Cache)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func intPtr(v int) *int { return &v }
