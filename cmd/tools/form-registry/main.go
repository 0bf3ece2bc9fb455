// cmd/tools/form-registry/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"clinic-forms/internal/forms"
	"clinic-forms/pkg/registry"
)

var registryPath string

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	version := exportCmd.String("version", "1.0.0", "Registry version")
	exportCmd.StringVar(&registryPath, "path", "configs/form-registry.yaml", "Output file (.json or .yaml)")
	validateCmd.StringVar(&registryPath, "path", "configs/form-registry.yaml", "Path to registry file")
	strict := validateCmd.Bool("strict", true, "Fail when the file has drifted from the compiled form definitions")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if err := exportRegistry(*version); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d forms to %s\n", len(forms.All()), registryPath)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(*strict); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "list":
		listCmd.Parse(os.Args[2:])
		for _, d := range forms.All() {
			prefix := d.IDPrefix
			if prefix == "" {
				prefix = "-"
			}
			fmt.Printf("%-22s %-14s prefix=%-4s urgent=%-5t files=%d\n",
				d.Name, d.Category, prefix, d.Urgent, len(d.Schema.FileFields()))
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func exportRegistry(version string) error {
	reg, err := registry.Build(forms.All(), version, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(registryPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.SaveRegistry(registryPath, reg)
}

// validateRegistry checks the file on its own and, when strict, against the
// definitions compiled into this binary.
func validateRegistry(strict bool) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	fmt.Printf("Found %d forms.\n", len(reg.Forms))
	if !strict {
		return nil
	}

	current, err := registry.Build(forms.All(), reg.Version, time.Now())
	if err != nil {
		return err
	}
	var drifted []string
	for _, want := range current.Forms {
		got, ok := reg.Lookup(want.ID)
		switch {
		case !ok:
			drifted = append(drifted, want.ID+" (missing)")
		case got.Endpoint != want.Endpoint || got.Encoding != want.Encoding ||
			!cmp.Equal(got.Files, want.Files, cmpopts.EquateEmpty()) ||
			!cmp.Equal(got.Sections, want.Sections, cmpopts.EquateEmpty()):
			drifted = append(drifted, want.ID+" (changed)")
		}
	}
	for _, got := range reg.Forms {
		if _, ok := forms.Lookup(got.ID); !ok {
			drifted = append(drifted, got.ID+" (unknown)")
		}
	}
	if len(drifted) > 0 {
		return fmt.Errorf("registry has drifted from the form definitions: %v; run 'form-registry export'", drifted)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: form-registry <command> [flags]

Commands:
  export    Write the registry document for every compiled form
  validate  Validate a registry file and check it against the compiled forms
  list      List the compiled forms
  help      Show this help message

Examples:
  form-registry export -path configs/form-registry.yaml -version 1.2.0
  form-registry validate -path configs/form-registry.yaml
  form-registry validate -path configs/form-registry.json -strict=false

Use 'form-registry <command> -h' for more information about a command.

`)
}
