package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/buildforge/wincore/internal/build"
)

// ActiveConfig is one enabled (component, branch) tuple joined with its
// polling configuration.
type ActiveConfig struct {
	Component build.Component
	Branch    build.Branch
	Polling   build.PollingConfig
}

// ActiveConfigs joins catalog rows where the component, branch and polling
// config are all enabled.
func (s *Store) ActiveConfigs(ctx context.Context) ([]ActiveConfig, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT c.id, c.guid, c.name, c.project_key, c.url_template,
			b.id, b.name,
			p.interval_seconds, p.retry_attempts,
			p.download_timeout_seconds, p.extraction_timeout_seconds
		FROM components c
		JOIN component_branches b ON b.component_id = c.id
		JOIN polling_config p ON p.component_id = c.id
		WHERE c.is_enabled = 1 AND b.is_enabled = 1 AND p.is_enabled = 1
		ORDER BY c.id, b.id
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active configs: %w", err)
	}
	defer rows.Close()

	configs := []ActiveConfig{}
	for rows.Next() {
		var ac ActiveConfig
		var dlTimeout, exTimeout int
		err := rows.Scan(
			&ac.Component.ID, &ac.Component.GUID, &ac.Component.Name,
			&ac.Component.ProjectKey, &ac.Component.URLTemplate,
			&ac.Branch.ID, &ac.Branch.Name,
			&ac.Polling.IntervalSeconds, &ac.Polling.RetryAttempts,
			&dlTimeout, &exTimeout,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active config: %w", err)
		}
		ac.Branch.ComponentID = ac.Component.ID
		ac.Polling.Enabled = true
		ac.Polling.DownloadTimeout = time.Duration(dlTimeout) * time.Second
		ac.Polling.ExtractionTimeout = time.Duration(exTimeout) * time.Second
		configs = append(configs, ac)
	}
	return configs, rows.Err()
}

// SystemConfig returns all enabled system_config rows as a key/value map.
func (s *Store) SystemConfig(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT key, value FROM system_config WHERE is_enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan system config: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// SetSystemConfig inserts or replaces one system_config row. The engine does
// not call this at runtime; it exists for seeding and tests.
func (s *Store) SetSystemConfig(ctx context.Context, key, value string, encrypted bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO system_config (key, value, is_enabled, is_encrypted)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			is_encrypted = excluded.is_encrypted
	`, key, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set system config %s: %w", key, err)
	}
	return nil
}

// SeedComponent inserts a catalog component with one polling config row.
// Seeding helper for tests and local bring-up; production catalogs are
// populated by the external system.
func (s *Store) SeedComponent(ctx context.Context, c build.Component, p build.PollingConfig) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO components (guid, name, project_key, url_template, is_enabled)
			VALUES (?, ?, ?, ?, 1)
		`, c.GUID, c.Name, c.ProjectKey, c.URLTemplate)
		if err != nil {
			return fmt.Errorf("failed to insert component: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		enabled := 0
		if p.Enabled {
			enabled = 1
		}
		_, err = tx.Exec(`
			INSERT INTO polling_config (component_id, is_enabled, interval_seconds,
				retry_attempts, download_timeout_seconds, extraction_timeout_seconds)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, enabled, p.IntervalSeconds, p.RetryAttempts,
			int(p.DownloadTimeout.Seconds()), int(p.ExtractionTimeout.Seconds()))
		if err != nil {
			return fmt.Errorf("failed to insert polling config: %w", err)
		}
		return nil
	})
	return id, err
}

// SeedBranch inserts a branch for a seeded component.
func (s *Store) SeedBranch(ctx context.Context, componentID int64, name string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO component_branches (component_id, name, is_enabled)
		VALUES (?, ?, 1)
	`, componentID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert branch: %w", err)
	}
	return res.LastInsertId()
}
