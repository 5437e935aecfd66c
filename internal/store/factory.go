package store

import (
	"context"
	"fmt"
	"os"
)

// Driver identifies a concrete checkpoint store implementation.
type Driver string

const (
	DriverFS       Driver = "fs"       // filesystem directory tree
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
	DriverS3       Driver = "s3"       // S3-compatible object storage
)

// Open selects a Store implementation using environment variables.
// Defaults to the filesystem store when unset.
//
//	SHAPEMC_STORE_DRIVER: fs|memory|sqlite|postgres|s3 (default fs)
//	SHAPEMC_DATA_DIR: directory root when driver=fs (default ./data)
//	SHAPEMC_SQLITE_PATH: path to sqlite file when driver=sqlite
//	SHAPEMC_POSTGRES_DSN: postgres DSN when driver=postgres
//	(S3 variables documented on OpenS3FromEnv)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("SHAPEMC_STORE_DRIVER")
	if driver == "" {
		driver = string(DriverFS)
	}
	switch Driver(driver) {
	case DriverFS:
		dir := os.Getenv("SHAPEMC_DATA_DIR")
		if dir == "" {
			dir = "./data"
		}
		return NewFSStore(dir)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(os.Getenv("SHAPEMC_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgresStore(os.Getenv("SHAPEMC_POSTGRES_DSN"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}
