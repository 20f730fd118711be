// Package migrations applies the embedded schema for the merge-event
// archive (PostgreSQL) and the supply-history snapshots (ClickHouse).
package migrations

import "embed"

// PostgresFS embeds the merge-event archive migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the supply-history migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
