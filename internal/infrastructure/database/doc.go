// Package database provides SQLite persistence for the SensorThings bridge.
//
// This package manages:
//   - Database connection lifecycle with WAL mode and busy timeout
//   - Schema migrations from embedded SQL files
//   - Connection health monitoring
//
// The bridge stores only entity registry data locally (stable unique IDs and
// last-known values). Historical observations are never persisted; the
// remote SensorThings server remains the system of record.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "./data/stabridge.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
