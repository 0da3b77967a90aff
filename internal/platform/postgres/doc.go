// Package postgres provides the database side of a migration run: a
// connection pool, read access to the tenant and provider catalog, the
// versioned schema migrator, and the provider-name rewrite with its backup
// tables.
//
// Everything here is idempotent. Migrations are recorded in
// schema_migrations, backups are created only once per run, and the rewrite
// only touches rows that still hold a bare provider name.
package postgres
