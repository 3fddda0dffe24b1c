package datastore

import (
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. One second accommodates the materializer's batched
// transactions without flagging normal operation.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn)
}

// performAutoMigration migrates all catalog tables with per-table logging.
func performAutoMigration(db *gorm.DB, debug bool, dbType string) error {
	migrationStart := time.Now()
	log := getLogger().With("db_type", dbType)

	tableMappings := []struct {
		model any
		name  string
	}{
		{&Star{}, "stars"},
		{&FoldCandidate{}, "fold_candidates"},
		{&CrowdSubject{}, "crowd_subjects"},
		{&DataRelease{}, "data_releases"},
		{&AggregatedClassification{}, "aggregated_classifications"},
		{&DataExport{}, "data_exports"},
	}

	for _, table := range tableMappings {
		tableStart := time.Now()
		existed := db.Migrator().HasTable(table.model)

		if err := db.AutoMigrate(table.model); err != nil {
			enhancedErr := dbError(err, "auto_migrate", "critical",
				"db_type", dbType,
				"table", table.name)
			log.Error("Table migration failed", "table", table.name, "error", enhancedErr)
			return enhancedErr
		}

		if debug {
			action := "updated"
			if !existed {
				action = "created"
			}
			log.Debug("Table migration completed",
				"table", table.name,
				"action", action,
				"duration", time.Since(tableStart))
		}
	}

	log.Debug("Database migration completed successfully",
		"total_duration", time.Since(migrationStart),
		"tables_migrated", len(tableMappings))

	return nil
}
