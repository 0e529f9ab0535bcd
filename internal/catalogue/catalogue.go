// Package catalogue loads the offsets catalogue: a version-indexed,
// read-only directory of pointer chains that anchors the memory observer to
// a specific build of the target application.
//
// The catalogue's textual grammar is treated as an external, forwards-
// compatible data format — this package is deliberately a thin YAML
// loader, not a schema owner. New fields appearing in a future catalogue
// are ignored rather than rejected, so an older build of this program can
// still load a newer catalogue.
package catalogue

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rkbx-osc/bridge/internal/procmem"
)

// Bundle holds one pointer chain per field this program observes, for a
// single target-application version.
type Bundle struct {
	MasterBPM       procmem.PointerChain `yaml:"master_bpm"`
	Bar1            procmem.PointerChain `yaml:"bar1"`
	Beat1           procmem.PointerChain `yaml:"beat1"`
	Bar2            procmem.PointerChain `yaml:"bar2"`
	Beat2           procmem.PointerChain `yaml:"beat2"`
	MasterDeckIndex procmem.PointerChain `yaml:"masterdeck_index"`
	Deck1Time       procmem.PointerChain `yaml:"deck1_time"`
	Deck2Time       procmem.PointerChain `yaml:"deck2_time"`
	Deck1TrackID    procmem.PointerChain `yaml:"deck1_track_id"`
	Deck2TrackID    procmem.PointerChain `yaml:"deck2_track_id"`
	APIBearer       procmem.PointerChain `yaml:"api_bearer"`
}

// FromFile parses path as a mapping of target-version string to Bundle.
// Top-level keys whose value is not a mapping, and unknown bundle fields,
// are ignored rather than treated as parse errors, matching the
// catalogue's forwards-compatible contract.
func FromFile(path string) (map[string]Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: reading %s: %w", path, err)
	}

	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("catalogue: parsing %s: %w", path, err)
	}

	bundles := make(map[string]Bundle, len(nodes))
	for version, node := range nodes {
		if node.Kind != yaml.MappingNode {
			continue
		}

		var b Bundle
		if err := node.Decode(&b); err != nil {
			return nil, fmt.Errorf("catalogue: parsing %s version %q: %w", path, version, err)
		}
		bundles[version] = b
	}

	if len(bundles) == 0 {
		return nil, fmt.Errorf("catalogue: %s defines no versions", path)
	}

	return bundles, nil
}

// NewestVersion returns the greatest key of versions under dotted-numeric
// comparison, used as the default target version when the operator doesn't
// name one with -v. Plain string comparison gets this wrong as soon as any
// component reaches two digits ("6.10.0" < "6.9.0" lexicographically), so
// each dot-separated component is compared as an integer instead.
func NewestVersion(versions map[string]Bundle) (string, error) {
	if len(versions) == 0 {
		return "", fmt.Errorf("catalogue: no versions available")
	}

	var newest string
	for v := range versions {
		if newest == "" || versionLess(newest, v) {
			newest = v
		}
	}

	return newest, nil
}

// versionLess reports whether a sorts before b, comparing dotted-numeric
// version strings component by component as integers (so "6.9.0" <
// "6.10.0"). A component that isn't a plain integer on either side falls
// back to a string comparison of that component only.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])

		if aerr != nil || berr != nil {
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
			continue
		}

		if an != bn {
			return an < bn
		}
	}

	return len(as) < len(bs)
}
