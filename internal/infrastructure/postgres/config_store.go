// Package postgres adapts pgx/v5 to the repository.ConfigStore and
// repository.KVStore-adjacent primitives this proxy needs. config_store.go
// is grounded on video_repository.go's DBTX/scan style, generalized from a
// single-table entity load to assembling RuntimeConfig out of three
// normalized tables (origins, derivatives, runtime_settings).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/infrastructure/metrics"
)

// sourceRow is the JSON shape stored in origins.sources (§6 Configuration).
type sourceRow struct {
	Type         string  `json:"type"`
	Priority     int     `json:"priority"`
	BaseURL      string  `json:"base_url"`
	AuthName     *string `json:"auth_name"`
	PathTemplate string  `json:"path_template"`
}

type originDefaultsRow struct {
	Quality          string `json:"quality"`
	VideoCompression string `json:"video_compression"`
	TTLOk            int    `json:"ttl_ok"`
}

type transformOptionsRow struct {
	Mode        string `json:"mode"`
	Width       *int   `json:"width"`
	Height      *int   `json:"height"`
	Format      string `json:"format"`
	Quality     string `json:"quality"`
	Compression string `json:"compression"`
	Fit         string `json:"fit"`
}

type cacheSettingsRow struct {
	KVCacheEnabled        bool     `json:"kv_cache_enabled"`
	EnableCacheTags       bool     `json:"enable_cache_tags"`
	DefaultMaxAge         int      `json:"default_max_age"`
	KVReadCacheTTL        int      `json:"kv_read_cache_ttl"`
	StoreIndefinitely     bool     `json:"store_indefinitely"`
	BypassQueryParameters []string `json:"bypass_query_parameters"`
}

// ConfigStore implements repository.ConfigStore over three tables: origins
// (one row per Origin, sources/defaults as JSONB), derivatives (one row per
// named derivative), and runtime_settings (a singleton row holding valid
// option lists, global defaults, and cache settings).
type ConfigStore struct {
	db     DBTX
	logger *slog.Logger
}

// NewConfigStore wraps an already-connected DBTX (a *pgxpool.Pool in
// production, a pgxmock conn in tests).
func NewConfigStore(db DBTX, logger *slog.Logger) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigStore{db: db, logger: logger}
}

// Load assembles a RuntimeConfig from the three backing tables. A malformed
// origin regex or sources payload is logged and the offending origin is
// skipped rather than failing the whole load (§7 ConfigError: "a malformed
// origin regex, a missing required binding ... the affected origin or
// feature is skipped, not the whole process").
func (s *ConfigStore) Load(ctx context.Context) (repository.RuntimeConfig, error) {
	origins, err := s.loadOrigins(ctx)
	if err != nil {
		return repository.RuntimeConfig{}, fmt.Errorf("load origins: %w", err)
	}

	derivatives, err := s.loadDerivatives(ctx)
	if err != nil {
		return repository.RuntimeConfig{}, fmt.Errorf("load derivatives: %w", err)
	}

	validOptions, defaults, cache, err := s.loadRuntimeSettings(ctx)
	if err != nil {
		return repository.RuntimeConfig{}, fmt.Errorf("load runtime settings: %w", err)
	}

	return repository.RuntimeConfig{
		Origins:      origins,
		Derivatives:  derivatives,
		ValidOptions: validOptions,
		Defaults:     defaults,
		Cache:        cache,
	}, nil
}

func (s *ConfigStore) loadOrigins(ctx context.Context) ([]model.Origin, error) {
	const query = `
		SELECT name, pattern, capture_groups, sources, defaults, auth_name
		FROM origins
		ORDER BY priority ASC, name ASC
	`

	rows, err := s.db.Query(ctx, query)
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableOrigins).Inc()
	if err != nil {
		return nil, fmt.Errorf("query origins: %w", err)
	}
	defer rows.Close()

	var origins []model.Origin
	for rows.Next() {
		var (
			name          string
			pattern       string
			captureGroups []string
			sourcesJSON   []byte
			defaultsJSON  []byte
			authName      *string
		)
		if err := rows.Scan(&name, &pattern, &captureGroups, &sourcesJSON, &defaultsJSON, &authName); err != nil {
			return nil, fmt.Errorf("scan origin row: %w", err)
		}

		matcher, err := regexp.Compile(pattern)
		if err != nil {
			s.logger.Warn("skipping origin with malformed pattern", "origin", name, "pattern", pattern, "error", err)
			continue
		}

		var sourceRows []sourceRow
		if err := json.Unmarshal(sourcesJSON, &sourceRows); err != nil {
			s.logger.Warn("skipping origin with malformed sources payload", "origin", name, "error", err)
			continue
		}

		var defaultsRow originDefaultsRow
		if len(defaultsJSON) > 0 {
			if err := json.Unmarshal(defaultsJSON, &defaultsRow); err != nil {
				s.logger.Warn("skipping origin with malformed defaults payload", "origin", name, "error", err)
				continue
			}
		}

		sources := make([]model.Source, 0, len(sourceRows))
		for _, sr := range sourceRows {
			var auth *model.AuthRef
			if sr.AuthName != nil && *sr.AuthName != "" {
				auth = &model.AuthRef{Name: *sr.AuthName}
			}
			sources = append(sources, model.Source{
				Type:         model.SourceType(sr.Type),
				Priority:     sr.Priority,
				BaseURL:      sr.BaseURL,
				Auth:         auth,
				PathTemplate: sr.PathTemplate,
			})
		}

		var originAuth *model.AuthRef
		if authName != nil && *authName != "" {
			originAuth = &model.AuthRef{Name: *authName}
		}

		origins = append(origins, model.Origin{
			Name:          name,
			Matcher:       matcher,
			CaptureGroups: captureGroups,
			Sources:       sources,
			Defaults: model.OriginDefaults{
				Quality:          model.Quality(defaultsRow.Quality),
				VideoCompression: model.Compression(defaultsRow.VideoCompression),
				TTLOk:            defaultsRow.TTLOk,
			},
			Auth: originAuth,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate origins: %w", err)
	}

	return origins, nil
}

func (s *ConfigStore) loadDerivatives(ctx context.Context) (map[string]model.Derivative, error) {
	const query = `SELECT name, width, height, format, quality, compression, fit, mode FROM derivatives`

	rows, err := s.db.Query(ctx, query)
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableDerivatives).Inc()
	if err != nil {
		return nil, fmt.Errorf("query derivatives: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Derivative)
	for rows.Next() {
		var (
			name        string
			width       *int
			height      *int
			format      string
			quality     string
			compression string
			fit         string
			mode        string
		)
		if err := rows.Scan(&name, &width, &height, &format, &quality, &compression, &fit, &mode); err != nil {
			return nil, fmt.Errorf("scan derivative row: %w", err)
		}
		out[name] = model.Derivative{
			Name:        name,
			Width:       width,
			Height:      height,
			Format:      format,
			Quality:     model.Quality(quality),
			Compression: model.Compression(compression),
			Fit:         model.Fit(fit),
			Mode:        model.Mode(mode),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate derivatives: %w", err)
	}

	return out, nil
}

func (s *ConfigStore) loadRuntimeSettings(ctx context.Context) (map[string][]string, model.TransformOptions, repository.CacheSettings, error) {
	const query = `SELECT valid_options, defaults, cache FROM runtime_settings WHERE id = 1`

	var (
		validOptionsJSON []byte
		defaultsJSON     []byte
		cacheJSON        []byte
	)
	row := s.db.QueryRow(ctx, query)
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableRuntimeSettings).Inc()
	if err := row.Scan(&validOptionsJSON, &defaultsJSON, &cacheJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string][]string{}, model.TransformOptions{}, repository.CacheSettings{}, nil
		}
		return nil, model.TransformOptions{}, repository.CacheSettings{}, fmt.Errorf("scan runtime settings: %w", err)
	}

	validOptions := map[string][]string{}
	if len(validOptionsJSON) > 0 {
		if err := json.Unmarshal(validOptionsJSON, &validOptions); err != nil {
			return nil, model.TransformOptions{}, repository.CacheSettings{}, fmt.Errorf("unmarshal valid options: %w", err)
		}
	}

	var defaultsRow transformOptionsRow
	if len(defaultsJSON) > 0 {
		if err := json.Unmarshal(defaultsJSON, &defaultsRow); err != nil {
			return nil, model.TransformOptions{}, repository.CacheSettings{}, fmt.Errorf("unmarshal defaults: %w", err)
		}
	}
	defaults := model.TransformOptions{
		Mode:        model.Mode(defaultsRow.Mode),
		Width:       defaultsRow.Width,
		Height:      defaultsRow.Height,
		Format:      defaultsRow.Format,
		Quality:     model.Quality(defaultsRow.Quality),
		Compression: model.Compression(defaultsRow.Compression),
		Fit:         model.Fit(defaultsRow.Fit),
	}

	var cacheRow cacheSettingsRow
	if len(cacheJSON) > 0 {
		if err := json.Unmarshal(cacheJSON, &cacheRow); err != nil {
			return nil, model.TransformOptions{}, repository.CacheSettings{}, fmt.Errorf("unmarshal cache settings: %w", err)
		}
	}
	cache := repository.CacheSettings{
		KVCacheEnabled:        cacheRow.KVCacheEnabled,
		EnableCacheTags:       cacheRow.EnableCacheTags,
		DefaultMaxAge:         cacheRow.DefaultMaxAge,
		KVReadCacheTTL:        cacheRow.KVReadCacheTTL,
		StoreIndefinitely:     cacheRow.StoreIndefinitely,
		BypassQueryParameters: cacheRow.BypassQueryParameters,
	}

	return validOptions, defaults, cache, nil
}

// Compile-time verification that ConfigStore implements repository.ConfigStore.
var _ repository.ConfigStore = (*ConfigStore)(nil)
