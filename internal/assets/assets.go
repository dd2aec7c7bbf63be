// Package assets holds files compiled into the binary.
package assets

import _ "embed"

// CorpusSchemaURL is the resource name the corpus schema is registered under.
const CorpusSchemaURL = "https://polyglot-runner.local/corpus.schema.json"

// CorpusSchema is the JSON Schema every question corpus must satisfy.
//
//go:embed corpus.schema.json
var CorpusSchema string
