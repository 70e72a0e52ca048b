// Command schema-generator writes the JSON schema for buildhub
// configuration files so editors can validate buildhub.yml.
package main

import (
	"os"
	"path/filepath"

	"github.com/grovetools/buildhub/config"
	"github.com/grovetools/buildhub/logging"
	flag "github.com/spf13/pflag"
)

func main() {
	output := flag.StringP("output", "o", "schema/buildhub.schema.json", "File to write the schema to")
	flag.Parse()

	pretty := logging.NewPrettyLogger()

	data, err := config.GenerateSchema()
	if err != nil {
		pretty.ErrorPretty("Error generating schema", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		pretty.ErrorPretty("Error creating schema directory", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, append(data, '\n'), 0644); err != nil {
		pretty.ErrorPretty("Error writing schema file", err)
		os.Exit(1)
	}
	pretty.Success("Generated schema at " + *output)
}
