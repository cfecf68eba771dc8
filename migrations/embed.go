// Package migrations embeds the schema for the review, alert and fatigue
// history tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
