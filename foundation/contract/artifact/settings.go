package artifact

import (
	"fmt"
	"strconv"
	"strings"
)

// MetadataMode controls whether the compiler embeds a content hash of the
// source metadata in the trailer.
type MetadataMode string

// Set of metadata modes.
const (
	Embedded MetadataMode = "embedded"
	Stripped MetadataMode = "stripped"
)

// Modes lists the metadata modes in sweep order.
var Modes = []MetadataMode{Embedded, Stripped}

// ParseMetadataMode converts a name into a metadata mode.
func ParseMetadataMode(name string) (MetadataMode, error) {
	switch m := MetadataMode(name); m {
	case Embedded, Stripped:
		return m, nil
	}
	return "", fmt.Errorf("unknown metadata mode %q", name)
}

// noRuns is the prefix suffix used when the optimizer is disabled.
const noRuns = "none"

// Settings represents the optimizer settings an artifact was built with.
type Settings struct {
	Optimize bool         `json:"optimize"`
	Runs     uint32       `json:"runs"`
	Metadata MetadataMode `json:"metadata"`
}

// Optimized constructs settings with the optimizer enabled.
func Optimized(mode MetadataMode, runs uint32) Settings {
	return Settings{Optimize: true, Runs: runs, Metadata: mode}
}

// Unoptimized constructs settings with the optimizer disabled.
func Unoptimized(mode MetadataMode) Settings {
	return Settings{Metadata: mode}
}

// Prefix returns the name artifacts built with these settings are stored
// under, "<metadataMode><runs|none>".
func (s Settings) Prefix() string {
	if !s.Optimize {
		return string(s.Metadata) + noRuns
	}
	return string(s.Metadata) + strconv.FormatUint(uint64(s.Runs), 10)
}

// String implements the Stringer interface.
func (s Settings) String() string {
	return s.Prefix()
}

// Prefixes returns the optimizer disabled prefix followed by the prefixes of
// every runs value from 2^31-1 down to 0 for the metadata mode.
func Prefixes(mode MetadataMode) []string {
	prefixes := []string{Unoptimized(mode).Prefix()}
	for i := range 32 {
		runs := uint32(1)<<(31-i) - 1
		prefixes = append(prefixes, Optimized(mode, runs).Prefix())
	}
	return prefixes
}

// ParsePrefix converts a prefix back into the settings that produced it.
func ParsePrefix(prefix string) (Settings, error) {
	for _, mode := range Modes {
		rest, ok := strings.CutPrefix(prefix, string(mode))
		if !ok {
			continue
		}

		if rest == noRuns {
			return Unoptimized(mode), nil
		}

		runs, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return Settings{}, fmt.Errorf("prefix %q: invalid runs: %w", prefix, err)
		}

		return Optimized(mode, uint32(runs)), nil
	}

	return Settings{}, fmt.Errorf("prefix %q: unknown metadata mode", prefix)
}
