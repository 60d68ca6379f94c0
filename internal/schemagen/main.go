// Command schemagen writes the JSON schema of a configuration kind.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/pkg/ruleset"
)

var (
	kind    = flag.String("kind", "ruleset", "Schema to generate, one of: ruleset, config")
	outFile = flag.String("o", "schema.json", "Output file for the generated schema")
)

func main() {
	flag.Parse()

	generators := map[string]func() ([]byte, error){
		"ruleset": ruleset.GenerateSchema,
		"config":  configs.GenerateSchema,
	}

	gen, ok := generators[*kind]
	if !ok {
		log.Fatalf("unknown kind %q", *kind)
	}

	jsData, err := gen()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	// Write schema.json file.
	err = os.WriteFile(*outFile, jsData, 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
