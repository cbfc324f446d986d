package routestore

import (
	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
)

// rowMigration advances a route definition from its declared schemaVersion
// to the next one. Registered in rowMigrations, keyed by source version.
type rowMigration func(routemodel.RouteDefinition) (routemodel.RouteDefinition, error)

// rowMigrations holds the registered forward-migration chain, keyed by the
// schemaVersion a row must be at for the migration to apply. There are no
// migrations registered yet; as routes.schemaVersion advances, register the
// step here rather than mutating rows ad hoc.
var rowMigrations = map[int]rowMigration{}

// Normalize advances def's schemaVersion forward through any registered
// migrations until it reaches target, rejecting rows whose persisted
// version is already higher than the runtime supports.
func Normalize(def routemodel.RouteDefinition, target int) (routemodel.RouteDefinition, error) {
	if def.SchemaVersion > target {
		return routemodel.RouteDefinition{}, apperrors.SchemaVersionUnsupported(def.SchemaVersion, target)
	}
	for def.SchemaVersion < target {
		migrate, ok := rowMigrations[def.SchemaVersion]
		if !ok {
			// No migration registered from this version; nothing further to
			// normalize, leave it at its current (already-supported) version.
			break
		}
		migrated, err := migrate(def)
		if err != nil {
			return routemodel.RouteDefinition{}, apperrors.Internal("schema migration failed", err)
		}
		migrated.SchemaVersion = def.SchemaVersion + 1
		def = migrated
	}
	return def, nil
}
