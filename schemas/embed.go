// Package schemas carries the JSON Schemas of every persisted document.
package schemas

import "embed"

// Schema file names.
const (
	Checkpoint = "checkpoint.schema.json"
	Capability = "capability.schema.json"
)

// FS holds the schema files.
//
//go:embed *.schema.json
var FS embed.FS
