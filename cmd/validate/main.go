// Command validate checks the integrity of published cube stores and result
// tables. Every chunk of every store is decoded and compared with its
// manifest checksum; every result CSV is scanned for repeated region-years,
// and per-variable tables of one scenario must cover the same region-years.
//
// Usage:
//
//	go run ./cmd/validate -store-dir ./store -output-dir ./output
package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/climate-region-stats/internal/adapter/csvfile"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	storeDir := flag.String("store-dir", "", "directory holding <variable>_<scenario> cube stores")
	outputDir := flag.String("output-dir", "", "directory holding result CSV files")
	flag.Parse()

	if *storeDir == "" && *outputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*storeDir, *outputDir); code != 0 {
		os.Exit(code)
	}
}

func run(storeDir, outputDir string) int {
	fmt.Println("=== Climate Store Integrity Validation ===")
	fmt.Println()

	var phases []*phase
	if storeDir != "" {
		phases = append(phases, validateStores(storeDir))
	}
	if outputDir != "" {
		tables, merged := validateTables(outputDir)
		phases = append(phases, tables, merged)
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateStores(dir string) *phase {
	p := &phase{name: "Store chunk integrity"}
	entries, err := os.ReadDir(dir)
	if err != nil {
		p.errorf("read store directory: %v", err)
		return p
	}
	found := 0
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := store.ReadManifest(path); err != nil {
			continue
		}
		found++
		rep, err := store.Verify(context.Background(), path)
		if err != nil {
			p.errorf("%s: %v", e.Name(), err)
			continue
		}
		fmt.Printf("  %s: %d years, %d steps, %d chunks (%d bytes)\n",
			e.Name(), rep.Years, rep.Steps, rep.Chunks, rep.Bytes)
		for _, problem := range rep.Problems {
			p.errorf("%s: %s", e.Name(), problem)
		}
	}
	if found == 0 {
		p.errorf("no published stores under %s", dir)
	}
	return p
}

// validateTables checks per-variable tables and merged tables separately.
func validateTables(dir string) (tables, merged *phase) {
	tables = &phase{name: "Per-variable result tables"}
	merged = &phase{name: "Merged result tables"}

	statFiles, err := filepath.Glob(filepath.Join(dir, "*_stats.csv"))
	if err != nil {
		tables.errorf("list tables: %v", err)
		return tables, merged
	}
	if len(statFiles) == 0 {
		tables.errorf("no *_stats.csv files under %s", dir)
	}

	// Row counts per scenario, keyed by file, must agree.
	byScenario := make(map[string]map[string]int)
	for _, path := range statFiles {
		res, err := csvfile.CheckFile(path)
		if err != nil {
			tables.errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		for _, k := range res.Duplicates {
			tables.errorf("%s: duplicate row for region %s year %d", filepath.Base(path), k.RegionID, k.Year)
		}
		scenario := scenarioOf(filepath.Base(path))
		if byScenario[scenario] == nil {
			byScenario[scenario] = make(map[string]int)
		}
		byScenario[scenario][filepath.Base(path)] = res.Rows
	}
	for _, scenario := range slices.Sorted(maps.Keys(byScenario)) {
		counts := byScenario[scenario]
		names := slices.Sorted(maps.Keys(counts))
		for _, name := range names[1:] {
			if counts[name] != counts[names[0]] {
				tables.errorf("scenario %s: %s has %d rows, %s has %d",
					scenario, names[0], counts[names[0]], name, counts[name])
			}
		}
	}

	mergedFiles, err := filepath.Glob(filepath.Join(dir, "*_merged.csv"))
	if err != nil {
		merged.errorf("list merged tables: %v", err)
		return tables, merged
	}
	for _, path := range mergedFiles {
		res, err := csvfile.CheckFile(path)
		if err != nil {
			merged.errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		for _, k := range res.Duplicates {
			merged.errorf("%s: duplicate row for region %s year %d", filepath.Base(path), k.RegionID, k.Year)
		}
	}
	return tables, merged
}

// scenarioOf extracts the scenario from "<variable>_<scenario>_stats.csv".
func scenarioOf(name string) string {
	stem := strings.TrimSuffix(name, "_stats.csv")
	if i := strings.Index(stem, "_"); i >= 0 {
		return stem[i+1:]
	}
	return stem
}
