package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
"6.7.7":
  master_bpm:
    offsets: [16, 32]
    final_offset: 4
  masterdeck_index:
    offsets: [16]
    final_offset: 144
"7.0.0":
  master_bpm:
    offsets: [16, 40]
    final_offset: 4
  masterdeck_index:
    offsets: [16]
    final_offset: 152
  unknown_future_field: "ignored"
unknown_top_level_key: "ignored too"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offsets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestFromFile_ParsesAllVersions(t *testing.T) {
	bundles, err := FromFile(writeSample(t))
	require.NoError(t, err)

	assert.Len(t, bundles, 2)
	assert.Equal(t, []uint64{16, 32}, bundles["6.7.7"].MasterBPM.Offsets)
	assert.Equal(t, uint64(4), bundles["6.7.7"].MasterBPM.FinalOffset)
}

func TestFromFile_IgnoresUnknownFieldsAndKeys(t *testing.T) {
	bundles, err := FromFile(writeSample(t))
	require.NoError(t, err)

	_, ok := bundles["unknown_top_level_key"]
	assert.False(t, ok)
	assert.Equal(t, uint64(152), bundles["7.0.0"].MasterDeckIndex.FinalOffset)
}

func TestFromFile_MissingFile(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFromFile_EmptyCatalogueIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := FromFile(path)
	assert.Error(t, err)
}

func TestNewestVersion_PicksNewestMajor(t *testing.T) {
	bundles, err := FromFile(writeSample(t))
	require.NoError(t, err)

	newest, err := NewestVersion(bundles)
	require.NoError(t, err)
	assert.Equal(t, "7.0.0", newest)
}

func TestNewestVersion_EmptyMap(t *testing.T) {
	_, err := NewestVersion(nil)
	assert.Error(t, err)
}

// TestNewestVersion_DoubleDigitComponentSortsNumerically guards against the
// lexicographic trap: "6.10.0" < "6.9.0" as strings, but 10 > 9 as a minor
// version component.
func TestNewestVersion_DoubleDigitComponentSortsNumerically(t *testing.T) {
	versions := map[string]Bundle{
		"6.9.0":  {},
		"6.10.0": {},
	}

	newest, err := NewestVersion(versions)
	require.NoError(t, err)
	assert.Equal(t, "6.10.0", newest)
}

func TestVersionLess_ComparesComponentsNumerically(t *testing.T) {
	assert.True(t, versionLess("6.9.0", "6.10.0"))
	assert.False(t, versionLess("6.10.0", "6.9.0"))
	assert.True(t, versionLess("6.7.7", "7.0.0"))
	assert.False(t, versionLess("7.0.0", "7.0.0"))
	assert.True(t, versionLess("7.0", "7.0.1"), "fewer components sorts before a longer, otherwise-equal prefix")
}
