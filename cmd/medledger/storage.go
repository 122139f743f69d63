package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/medledger/internal/config"
	"github.com/ehr/medledger/internal/domain/catalog"
	"github.com/ehr/medledger/internal/domain/dispensing"
	"github.com/ehr/medledger/internal/domain/inventory"
	"github.com/ehr/medledger/internal/domain/ledger"
	"github.com/ehr/medledger/internal/platform/db"
	"github.com/ehr/medledger/internal/platform/sqlitedb"
)

// storage bundles the repositories of one driver.
type storage struct {
	driver        string
	pool          *pgxpool.Pool
	sqlite        *sqlx.DB
	catalog       catalog.Repository
	store         inventory.Store
	ledger        ledger.Repository
	orders        dispensing.OrderRepository
	prescriptions dispensing.PrescriptionRepository
	tx            dispensing.TxRunner
	health        db.HealthChecker
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return postgresStorage(pool, cfg), nil
	case config.DriverSQLite:
		sdb, err := sqlitedb.Connect(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliteStorage(sdb), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func postgresStorage(pool *pgxpool.Pool, cfg *config.Config) *storage {
	return &storage{
		driver:        config.DriverPostgres,
		pool:          pool,
		catalog:       catalog.NewRepoPG(pool),
		store:         inventory.NewStorePG(pool),
		ledger:        ledger.NewRepoPG(pool),
		orders:        dispensing.NewOrderRepoPG(pool),
		prescriptions: dispensing.NewPrescriptionRepoPG(pool),
		tx:            db.NewTxRunner(pool, cfg.LockTimeout),
		health:        db.PoolChecker{Pool: pool},
	}
}

func sqliteStorage(sdb *sqlx.DB) *storage {
	return &storage{
		driver:        config.DriverSQLite,
		sqlite:        sdb,
		catalog:       catalog.NewRepoSQLite(sdb),
		store:         inventory.NewStoreSQLite(sdb),
		ledger:        ledger.NewRepoSQLite(sdb),
		orders:        dispensing.NewOrderRepoSQLite(sdb),
		prescriptions: dispensing.NewPrescriptionRepoSQLite(sdb),
		tx:            sqlitedb.NewTxRunner(sdb),
		health:        sqlitedb.Checker{DB: sdb},
	}
}

func (s *storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlite != nil {
		s.sqlite.Close()
	}
}

// scope binds ctx to a department schema when running on postgres. The
// sqlite driver has a single schema and ignores department.
func (s *storage) scope(ctx context.Context, department string) (context.Context, func(), error) {
	if s.pool == nil {
		return ctx, func() {}, nil
	}
	return db.AcquireDepartment(ctx, s.pool, department)
}
