package equivalence

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReportGroup represents a class as written to the grouping report.
type ReportGroup struct {
	Key       string   `json:"key"`
	Size      uint64   `json:"size"`
	Hash      string   `json:"hash"`
	Contracts []string `json:"contracts"`
}

// Dataset is one named set of classes, written as "<name>Groups".
type Dataset struct {
	Name    string
	Classes []Class
}

// Groups converts classes into their report form.
func Groups(classes []Class) []ReportGroup {
	groups := make([]ReportGroup, len(classes))
	for i, c := range classes {
		groups[i] = ReportGroup{
			Key:       c.Key.String(),
			Size:      c.Key.ByteSize,
			Hash:      c.Key.Hash.Hex(),
			Contracts: c.Members,
		}
	}
	return groups
}

// Report builds the grouping report document for the datasets.
func Report(datasets []Dataset) map[string][]ReportGroup {
	doc := make(map[string][]ReportGroup, len(datasets))
	for _, ds := range datasets {
		doc[ds.Name+"Groups"] = Groups(ds.Classes)
	}
	return doc
}

// WriteReport writes the grouping report for the datasets to the file.
func WriteReport(path string, datasets []Dataset) error {
	data, err := json.MarshalIndent(Report(datasets), "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// =============================================================================

// Plateau describes the range of optimizer runs that produced one class.
type Plateau struct {
	Key     Key
	MinRuns uint64
	MaxRuns uint64
	Members int
}

// Plateaus returns the optimizer run range covered by each class. Members
// whose prefix does not end in a run count, such as the optimizer disabled
// variants, are ignored and classes with no numbered members are skipped.
func Plateaus(classes []Class) []Plateau {
	var plateaus []Plateau

	for _, c := range classes {
		p := Plateau{Key: c.Key, MinRuns: math.MaxUint64}

		for _, prefix := range c.Members {
			runs, ok := RunsOf(prefix)
			if !ok {
				continue
			}

			p.Members++
			p.MinRuns = min(p.MinRuns, runs)
			p.MaxRuns = max(p.MaxRuns, runs)
		}

		if p.Members > 0 {
			plateaus = append(plateaus, p)
		}
	}

	return plateaus
}

// RunsOf extracts the optimizer runs value from the end of a prefix.
func RunsOf(prefix string) (uint64, bool) {
	i := strings.LastIndexFunc(prefix, func(r rune) bool { return r < '0' || r > '9' })
	digits := prefix[i+1:]
	if digits == "" {
		return 0, false
	}

	runs, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}

	return runs, true
}
