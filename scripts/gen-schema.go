//go:build ignore

// gen-schema writes the scenario JSON Schema for editors and CI linting:
//
//	go run scripts/gen-schema.go [out]
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/verity/pkg/schema"
)

func main() {
	out := "schemas/scenario.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote", out)
}
