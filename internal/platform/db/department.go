package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	DepartmentKey contextKey = "department"
	DBConnKey     contextKey = "db_conn"
	DBTxKey       contextKey = "db_tx"
)

var departmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaName returns the postgres schema that holds a department's data.
func SchemaName(department string) string {
	return fmt.Sprintf("dept_%s", department)
}

// AcquireDepartment takes a connection from the pool, points its search_path
// at the department schema and returns a context carrying it. The caller must
// call release when done.
func AcquireDepartment(ctx context.Context, pool *pgxpool.Pool, department string) (context.Context, func(), error) {
	if !departmentPattern.MatchString(department) {
		return nil, nil, fmt.Errorf("invalid department identifier: %q", department)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(department))); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("set search_path: %w", err)
	}
	ctx = context.WithValue(ctx, DepartmentKey, department)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return ctx, conn.Release, nil
}

// DepartmentMiddleware resolves the department for each request and binds a
// schema-scoped connection to the request context.
func DepartmentMiddleware(pool *pgxpool.Pool, defaultDepartment string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			department := extractDepartment(c, defaultDepartment)

			if !departmentPattern.MatchString(department) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid department identifier")
			}

			ctx, release, err := AcquireDepartment(c.Request().Context(), pool, department)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer release()

			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("department", department)

			return next(c)
		}
	}
}

func extractDepartment(c echo.Context, defaultDepartment string) string {
	if d, ok := c.Get("jwt_department").(string); ok && d != "" {
		return d
	}
	if d := c.Request().Header.Get("X-Department"); d != "" {
		return d
	}
	if d := c.QueryParam("department"); d != "" {
		return d
	}
	return defaultDepartment
}

// ConnFromContext retrieves the department-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// DepartmentFromContext retrieves the department from context.
func DepartmentFromContext(ctx context.Context) string {
	d, _ := ctx.Value(DepartmentKey).(string)
	return d
}

// CreateDepartmentSchema creates the schema for a department and runs all
// migrations against it. A nil migrator skips migrations.
func CreateDepartmentSchema(ctx context.Context, pool *pgxpool.Pool, department string, migrator *Migrator) error {
	if !departmentPattern.MatchString(department) {
		return fmt.Errorf("invalid department identifier: %s", department)
	}

	schema := SchemaName(department)
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrator != nil {
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}
