package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"gktracker/lib/sqliteutil"
	"gktracker/lib/telemetry"
)

type ServiceParams struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
	// if unspecified, it will use `:memory:`, <dev_state> paths are resolved
	DbPath string
}

type ServiceResult struct {
	DB *sql.DB
}

// SetupService sets up telemetry for the test and opens a sqlite database
// holding DbSchema, both are torn down by the returned cleanup.
func SetupService(t testing.TB, params ServiceParams) (ServiceResult, func()) {
	cleanupTel := telemetry.SetupForTesting(fmt.Sprintf("test:%s", params.Name))
	if params.DbSchema == "" {
		return ServiceResult{}, cleanupTel
	}

	dbpath := params.DbPath
	if dbpath == "" {
		dbpath = ":memory:"
	}
	db, err := sqliteutil.OpenDB(params.DbSchema, dbpath)
	if err != nil {
		cleanupTel()
		t.Fatal(err)
	}

	return ServiceResult{DB: db}, func() {
		db.Close()
		cleanupTel()
	}
}
