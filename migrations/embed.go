// Package migrations embeds the schema migration files so cmd/ctl can
// apply them without relying on a working directory relative path,
// generalizing the teacher's cmd/seeder/main.go (which reads
// "../../migrations/001_initial_schema.up.sql" off disk with a
// fallback-path hack) into a single embedded source golang-migrate can
// read from directly.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
