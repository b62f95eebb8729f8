// Package schemas embeds the JSON Schema files and registers them with the
// config package on import. CLI entry points should import this package with
// a blank identifier: import _ "github.com/asukhov/nsgctl/schemas"
package schemas

import (
	"embed"

	"github.com/asukhov/nsgctl/internal/config"
)

//go:embed rule-v1.schema.json
var fs embed.FS

func init() {
	data, err := fs.ReadFile("rule-v1.schema.json")
	if err != nil {
		panic("schemas: failed to read embedded rule-v1.schema.json: " + err.Error())
	}
	config.SetSchema(data)
}
