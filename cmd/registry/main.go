// Command registry inspects and validates dataset registries.
//
// Usage:
//
//	registry                       print the built-in registry as JSON
//	registry -registry custom.json -validate
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"recruitingetl/internal/loader"
	"recruitingetl/internal/registry"
)

func main() {
	var (
		registryPath string
		validate     bool
	)
	flag.StringVar(&registryPath, "registry", "", "dataset registry JSON (built-in registry when empty)")
	flag.BoolVar(&validate, "validate", false, "validate the registry and exit")
	flag.Parse()

	reg := registry.Default()
	if registryPath != "" {
		var err error
		reg, err = registry.Load(registryPath)
		if err != nil {
			fatalf("%v", err)
		}
	}

	// Load also validates; re-validate so built-in edits get checked too.
	if err := reg.Validate(); err != nil {
		fatalf("invalid registry: %v", err)
	}
	var missing []string
	for _, key := range reg.Keys() {
		if _, ok := loader.ForKey(key); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		fatalf("profiles without loaders: %v", missing)
	}

	if validate {
		fmt.Printf("registry ok: %d profiles, %d signatures\n",
			len(reg.Profiles), len(reg.Signatures))
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reg); err != nil {
		fatalf("encode registry: %v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
