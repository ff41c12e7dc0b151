// Command validate checks the integrity of a processed data tree: artifact
// names, stage coverage, label values, aggregate consistency and registry
// coverage. It reads the same environment as the etl command.
//
// Usage:
//
//	go run ./cmd/validate -data-dir source-data
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	gdaladapter "github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/gdal"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/registry"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/observability"
)

func main() {
	dataDir := flag.String("data-dir", "", "data tree root (overrides DATA_DIR)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "WARN: read .env: %v\n", err)
	}
	if *dataDir != "" {
		if err := os.Setenv("DATA_DIR", *dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	fmt.Println("=== Flood Ground Truth Integrity Validation ===")
	fmt.Println()

	reg, err := registry.Load(cfg.RegistryCSV)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load registry: %v\n", err)
		return 1
	}

	tree, err := scanTree(treeDirs{
		floodMaps:    cfg.FloodMapDir,
		staticMerged: cfg.StaticMergedDir,
		groundTruth:  cfg.GroundTruthDir,
		merged:       cfg.GroundTruthMergedDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: scan data tree: %v\n", err)
		return 1
	}

	dates, err := registry.ReadDates(cfg.DatesCSV)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: dates table unavailable: %v\n", err)
	}

	c := &checker{tree: tree, rasters: gdaladapter.NewStore(observability.NewLogger(cfg)), registry: reg, dates: dates}
	phases := []*phase{
		c.validateNames(),
		c.validateCoverage(),
		c.validateLabels(),
		c.validateAggregates(),
		c.validateRegistry(),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Artifacts: %d flood maps, %d merged images, %d ground truth, %d merged ground truth\n",
		len(tree.floodMaps), len(tree.staticMerged), len(tree.groundTruth), len(tree.merged))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	fmt.Println("\nAll validation phases passed.")
	return 0
}
