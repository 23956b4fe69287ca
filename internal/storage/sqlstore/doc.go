// Package sqlstore opens the relational database shared by the task store,
// the data source directory and the conversation log. MySQL (via
// go-sql-driver/mysql) and an embedded SQLite file (via modernc.org/sqlite)
// are supported; both speak the same `?` placeholder dialect so the stores
// can share their queries. Schema migrations are embedded per dialect and
// recorded in schema_migrations.
package sqlstore
