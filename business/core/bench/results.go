package bench

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ardanlabs/bytecodelab/foundation/contract/equivalence"
)

// Results is an append only collection of measurements backed by a file.
type Results struct {
	path string
	mu   sync.Mutex
	ms   []Measurement
}

// NewResults constructs a collection flushed to the path. An empty path
// keeps the results in memory only.
func NewResults(path string) *Results {
	return &Results{path: path}
}

// Path returns the file the results are flushed to.
func (res *Results) Path() string {
	return res.path
}

// Append adds measurements to the collection.
func (res *Results) Append(ms ...Measurement) {
	res.mu.Lock()
	defer res.mu.Unlock()

	res.ms = append(res.ms, ms...)
}

// Items returns a copy of the measurements.
func (res *Results) Items() []Measurement {
	res.mu.Lock()
	defer res.mu.Unlock()

	ms := make([]Measurement, len(res.ms))
	copy(ms, res.ms)
	return ms
}

// Len returns the number of measurements.
func (res *Results) Len() int {
	res.mu.Lock()
	defer res.mu.Unlock()

	return len(res.ms)
}

// Order applies the ordering function to the stored measurements.
func (res *Results) Order(fn func(ms []Measurement)) {
	res.mu.Lock()
	defer res.mu.Unlock()

	fn(res.ms)
}

// Flush writes every measurement as a JSON array to the results file,
// replacing its previous content.
func (res *Results) Flush() error {
	if res.path == "" {
		return nil
	}

	ms := res.Items()
	if ms == nil {
		ms = []Measurement{}
	}

	data, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(res.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp := res.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, res.path)
}

// Load reads the measurements stored in a results file.
func Load(path string) ([]Measurement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ms []Measurement
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, err
	}

	return ms, nil
}

// =============================================================================

// SortByRuns orders measurements by the optimizer runs of their subject
// prefix with the optimizer disabled variants first. The order is stable
// for equal runs.
func SortByRuns(ms []Measurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		return runsRank(ms[i].Subject) < runsRank(ms[j].Subject)
	})
}

// runsRank places disabled variants before every runs value and unknown
// prefixes last.
func runsRank(prefix string) int64 {
	runs, ok := equivalence.RunsOf(prefix)
	if !ok {
		if isDisabled(prefix) {
			return -1
		}
		return math.MaxInt64
	}
	return int64(runs)
}

func isDisabled(prefix string) bool {
	return strings.HasSuffix(prefix, "none")
}
