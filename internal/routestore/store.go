// Package routestore persists route definitions as JSON blobs keyed by
// their tenant-scoped internal key, normalizing each row's schemaVersion
// forward through registered migrations as it loads. This is distinct from
// the relational schema bootstrap in internal/platform/migrations, which
// creates the tables this package reads and writes.
package routestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
	"github.com/corewire/routeforge/pkg/logger"
)

// Store is the Postgres-backed route catalog.
type Store struct {
	DB                   *sql.DB
	log                  *logger.Logger
	currentSchemaVersion int
}

// New builds a Store that normalizes loaded rows up to currentSchemaVersion.
func New(db *sql.DB, currentSchemaVersion int, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("routestore")
	}
	return &Store{DB: db, log: log, currentSchemaVersion: currentSchemaVersion}
}

// Save upserts a route definition under its tenant-scoped internal key.
func (s *Store) Save(ctx context.Context, def routemodel.RouteDefinition) error {
	body, err := json.Marshal(def)
	if err != nil {
		return apperrors.Internal("marshal route definition", err)
	}
	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO routes (id, name, tenant_id, description, definition_json, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    definition_json = EXCLUDED.definition_json,
		    status = EXCLUDED.status,
		    version = routes.version + 1,
		    updated_at = EXCLUDED.updated_at
	`, def.Key(), def.Name, def.TenantID, def.Description, body, def.Status, def.SchemaVersion, now)
	if err != nil {
		return apperrors.DatabaseError("save route", err)
	}
	return nil
}

// Get loads one route definition by tenant and route id, normalizing its
// schemaVersion forward before returning it.
func (s *Store) Get(ctx context.Context, tenantID, routeID string) (routemodel.RouteDefinition, error) {
	key := routemodel.Key(tenantID, routeID)
	var body []byte
	row := s.DB.QueryRowContext(ctx, `SELECT definition_json FROM routes WHERE id = $1`, key)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return routemodel.RouteDefinition{}, apperrors.RouteNotFound(tenantID, routeID)
		}
		return routemodel.RouteDefinition{}, apperrors.DatabaseError("get route", err)
	}
	return s.decode(ctx, key, body)
}

// List loads every route definition for a tenant, normalizing each row's
// schemaVersion forward. Legacy rows whose key lacks "::" are migrated to a
// tenant-scoped key on load, best-effort: a migration failure leaves the row
// untouched but still usable under its legacy key.
func (s *Store) List(ctx context.Context, tenantID string) ([]routemodel.RouteDefinition, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID == "" {
		rows, err = s.DB.QueryContext(ctx, `SELECT id, definition_json FROM routes`)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT id, definition_json FROM routes WHERE tenant_id = $1`, tenantID)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("list routes", err)
	}
	defer rows.Close()

	var defs []routemodel.RouteDefinition
	for rows.Next() {
		var key string
		var body []byte
		if err := rows.Scan(&key, &body); err != nil {
			return nil, apperrors.DatabaseError("list routes", err)
		}
		def, err := s.decode(ctx, key, body)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(key, "::") {
			s.migrateLegacyKey(ctx, key, def)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("list routes", err)
	}
	return defs, nil
}

// Delete removes a route definition by its tenant-scoped internal key.
func (s *Store) Delete(ctx context.Context, tenantID, routeID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM routes WHERE id = $1`, routemodel.Key(tenantID, routeID))
	if err != nil {
		return apperrors.DatabaseError("delete route", err)
	}
	return nil
}

func (s *Store) decode(ctx context.Context, key string, body []byte) (routemodel.RouteDefinition, error) {
	var def routemodel.RouteDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return routemodel.RouteDefinition{}, apperrors.Internal("unmarshal route definition "+key, err)
	}
	normalized, err := Normalize(def, s.currentSchemaVersion)
	if err != nil {
		return routemodel.RouteDefinition{}, err
	}
	if normalized.SchemaVersion != def.SchemaVersion {
		normalizedBody, err := json.Marshal(normalized)
		if err == nil {
			if _, err := s.DB.ExecContext(ctx, `UPDATE routes SET definition_json = $1 WHERE id = $2`, normalizedBody, key); err != nil {
				s.log.WithField("key", key).WithError(err).Warn("failed to persist normalized schema version")
			}
		}
	}
	return normalized, nil
}

// migrateLegacyKey rewrites a pre-tenant-scoping row onto its "tenant::id"
// key. Best-effort: any failure is logged and the legacy row is left in
// place, still reachable under its original key.
func (s *Store) migrateLegacyKey(ctx context.Context, legacyKey string, def routemodel.RouteDefinition) {
	newKey := def.Key()
	if newKey == legacyKey {
		return
	}
	_, err := s.DB.ExecContext(ctx, `UPDATE routes SET id = $1 WHERE id = $2`, newKey, legacyKey)
	if err != nil {
		s.log.WithField("legacy_key", legacyKey).WithError(err).Warn("legacy key migration failed, row left in place")
		return
	}
	s.log.WithField("legacy_key", legacyKey).WithField("new_key", newKey).Info("migrated legacy route key")
}
