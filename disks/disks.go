// Package disks is a registry of predefined FAT media profiles: the classic
// floppy formats plus a few fixed-disk image presets. A profile carries enough
// BPB-level detail to derive a full [fat.Geometry], so tools can format an
// image by slug instead of hand-assembling a geometry.

package disks

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/dargueta/fatcore/fat"
)

// MediaProfile describes one well-known FAT volume layout.
type MediaProfile struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	BytesPerSector    uint   `csv:"bytes_per_sector"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	ReservedSectors   uint   `csv:"reserved_sectors"`
	FATCount          uint   `csv:"fat_count"`

	// RootEntries is the capacity of the fixed root directory. Zero on FAT32
	// profiles, whose root directory is an ordinary cluster chain.
	RootEntries uint `csv:"root_entries"`

	TotalSectors  uint `csv:"total_sectors"`
	SectorsPerFAT uint `csv:"sectors_per_fat"`

	// MediaDescriptor is the legacy media type byte stored both in the BPB and
	// in cell 0 of the FAT.
	MediaDescriptor uint8 `csv:"media_descriptor"`
}

// TotalSizeBytes gives the size of an image formatted with this profile.
func (profile *MediaProfile) TotalSizeBytes() int64 {
	return int64(profile.TotalSectors) * int64(profile.BytesPerSector)
}

// rootDirSectors gives the number of sectors the fixed root directory spans.
func (profile *MediaProfile) rootDirSectors() uint {
	entryBytes := profile.RootEntries * fat.DirentSize
	return (entryBytes + profile.BytesPerSector - 1) / profile.BytesPerSector
}

// Geometry derives the volume geometry for an unpartitioned image formatted
// with this profile.
func (profile *MediaProfile) Geometry() fat.Geometry {
	fatSectors := profile.FATCount * profile.SectorsPerFAT
	firstRootDirSector := profile.ReservedSectors + fatSectors
	firstDataSector := firstRootDirSector + profile.rootDirSectors()
	dataClusters := (profile.TotalSectors - firstDataSector) / profile.SectorsPerCluster

	bytesPerSector := int64(profile.BytesPerSector)
	geo := fat.Geometry{
		Version:          fat.DetermineFATVersion(uint32(dataClusters)),
		BytesPerBlock:    profile.BytesPerSector,
		BlocksPerFAT:     profile.SectorsPerFAT,
		NumFATs:          profile.FATCount,
		TotalClusters:    uint32(dataClusters) + uint32(fat.FirstDataCluster),
		FirstFATByte:     int64(profile.ReservedSectors) * bytesPerSector,
		FirstDataByte:    int64(firstDataSector) * bytesPerSector,
		BlocksPerCluster: profile.SectorsPerCluster,
	}
	if geo.Version == fat.FAT32 {
		geo.RootCluster = fat.FirstDataCluster
	} else {
		geo.FirstRootDirByte = int64(firstRootDirSector) * bytesPerSector
		geo.RootDirBlocks = profile.rootDirSectors()
	}
	return geo
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed media.csv
var mediaProfilesRawCSV string
var mediaProfiles = map[string]MediaProfile{}

// GetPredefinedMediaProfile looks up a profile by its slug.
func GetPredefinedMediaProfile(slug string) (MediaProfile, error) {
	profile, ok := mediaProfiles[slug]
	if ok {
		return profile, nil
	}

	err := fmt.Errorf("no predefined media profile exists with slug %q", slug)
	return MediaProfile{}, err
}

// AllSlugs returns the slug of every registered profile, in registration
// order.
func AllSlugs() []string {
	slugs := make([]string, 0, len(mediaProfiles))
	for _, row := range mediaProfileOrder {
		slugs = append(slugs, row)
	}
	return slugs
}

var mediaProfileOrder []string

func init() {
	reader := strings.NewReader(mediaProfilesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row MediaProfile) error {
			_, exists := mediaProfiles[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for media profile %q found on row %d",
					row.Slug,
					len(mediaProfiles)+1,
				)
			}
			mediaProfiles[row.Slug] = row
			mediaProfileOrder = append(mediaProfileOrder, row.Slug)
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
