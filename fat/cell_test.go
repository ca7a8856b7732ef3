package fat

import (
	_ "embed"
	"io"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/cell_vectors.csv
var cellVectorsRawCSV string

type cellVector struct {
	Name    string `csv:"name"`
	Version int    `csv:"version"`
	Raw     uint32 `csv:"raw"`
	Kind    string `csv:"kind"`
	Next    uint32 `csv:"next"`
}

func (vector *cellVector) cell(t *testing.T) Cell {
	switch vector.Kind {
	case "Free":
		return FreeCell()
	case "Bad":
		return BadCell()
	case "EndOfChain":
		return EndOfChainCell()
	case "Data":
		return DataCell(ClusterID(vector.Next))
	default:
		t.Fatalf("test vector %q has bogus kind %q", vector.Name, vector.Kind)
		return Cell{}
	}
}

func loadCellVectors(t *testing.T) []cellVector {
	var vectors []cellVector
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(cellVectorsRawCSV),
		func(row cellVector) error {
			vectors = append(vectors, row)
			return nil
		},
	)
	if err != nil && err != io.EOF {
		require.NoError(t, err, "failed to load cell vectors")
	}
	require.NotEmpty(t, vectors)
	return vectors
}

func TestDecodeCellVectors(t *testing.T) {
	for _, vector := range loadCellVectors(t) {
		decoded := DecodeCell(FATVersion(vector.Version), vector.Raw)
		assert.Equalf(
			t,
			vector.cell(t),
			decoded,
			"%s: raw %#x decoded wrong",
			vector.Name,
			vector.Raw)
	}
}

var allVersions = [...]FATVersion{FAT12, FAT16, FAT32}

func TestCodecRoundTrip(t *testing.T) {
	cells := []Cell{
		FreeCell(),
		BadCell(),
		EndOfChainCell(),
		DataCell(2),
		DataCell(0x123),
	}

	for _, version := range allVersions {
		for _, cell := range cells {
			raw := cell.Encode(version)
			assert.Equalf(
				t,
				cell,
				DecodeCell(version, raw),
				"%s: %s did not survive a round trip (raw %#x)",
				version,
				cell,
				raw)
		}
	}
}

func TestEncodeCanonicalMarkers(t *testing.T) {
	canonical := map[FATVersion]struct{ eoc, bad uint32 }{
		FAT12: {0x0FFF, 0x0FF7},
		FAT16: {0xFFFF, 0xFFF7},
		FAT32: {0x0FFFFFFF, 0x0FFFFFF7},
	}

	for version, expected := range canonical {
		assert.Equalf(
			t,
			expected.eoc,
			EndOfChainCell().Encode(version),
			"%s terminator is not the canonical (highest) EOC value",
			version)
		assert.Equalf(
			t, expected.bad, BadCell().Encode(version),
			"%s bad marker is wrong", version)
		assert.Zerof(
			t, FreeCell().Encode(version),
			"%s free marker must encode to zero", version)
	}
}

func TestEncodeFAT32ZeroesReservedNibble(t *testing.T) {
	// Even a Data value smuggling bits into the top nibble comes out clean.
	cell := DataCell(0xF0000123)
	assert.EqualValues(t, 0x00000123, cell.Encode(FAT32))
}

func TestDecodeEOCRangeAccepted(t *testing.T) {
	for raw := uint32(0xFFF8); raw <= 0xFFFF; raw++ {
		assert.Equalf(
			t,
			EndOfChainCell(),
			DecodeCell(FAT16, raw),
			"FAT16 raw %#x should be in the EOC range",
			raw)
	}
}
