package repository

import (
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shiftboard-api/pkg/database"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// forUpdate returns the row-lock suffix for the connected driver. SQLite
// transactions are opened with BEGIN IMMEDIATE and need no row lock.
func forUpdate(q sqlx.ExtContext) string {
	if database.IsSQLite(q) {
		return ""
	}
	return " FOR UPDATE"
}

// forUpdateOf locks only the rows of alias. PostgreSQL refuses a plain FOR
// UPDATE on the nullable side of an outer join.
func forUpdateOf(q sqlx.ExtContext, alias string) string {
	if database.IsSQLite(q) {
		return ""
	}
	return " FOR UPDATE OF " + alias
}

// timestampParam returns a bind placeholder usable for timestamp columns inside
// INSERT ... SELECT, where PostgreSQL cannot infer the parameter type.
func timestampParam(q sqlx.ExtContext) string {
	if database.IsSQLite(q) {
		return "?"
	}
	return "CAST(? AS TIMESTAMPTZ)"
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
