// Package database provides the SQLite store monomed uses for device
// registry rows and traffic counters.
//
// The recorder is the only writer, so Open pins the pool to a single
// connection; WAL mode still lets readers overlap that writer. The
// database file is created with 0600 permissions.
//
// Schema migrations live in embedded SQL files, one .up.sql and
// .down.sql pair per version, and are applied in lexical order inside
// individual transactions:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
