// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time to ensure the server and library work
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// StartJobRequestSchema is the embedded schema for optimization job
// submissions.
//
// This allows request validation to work in installed binaries and library
// consumers without requiring the schema file to be present on disk.
//
//go:embed start-job-request.schema.json
var StartJobRequestSchema []byte
