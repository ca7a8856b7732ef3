package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatcore/blockdev"
	"github.com/dargueta/fatcore/disks"
	"github.com/dargueta/fatcore/fat"
)

func main() {
	cli := cli.App{
		Usage: "Inspect and manipulate the allocation tables of FAT disk images",
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show the geometry of an image",
				Action:    showInfo,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "free",
				Usage:     "Count the free clusters on an image",
				Action:    showFreeCount,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "chain",
				Usage:     "Print the cluster chain starting at a given cluster",
				Action:    showChain,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:     "start",
						Usage:    "seed cluster of the chain",
						Required: true,
					},
				},
			},
			{
				Name:      "wipe",
				Usage:     "Create or re-format an image with empty FATs",
				Action:    wipeImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "media",
						Usage: "media profile slug (" + strings.Join(disks.AllSlugs(), ", ") + ")",
						Value: "fd-1440",
					},
				},
			},
		},
	}

	err := cli.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openImage(context *cli.Context, writable bool) (*os.File, error) {
	if context.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one image file argument")
	}

	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR | os.O_CREATE
	}
	return os.OpenFile(context.Args().First(), flags, 0o644)
}

func openTable(context *cli.Context) (*fat.Table, error) {
	file, err := openImage(context, false)
	if err != nil {
		return nil, err
	}

	device := blockdev.New(file)
	geo, err := fat.ParseBootSector(device, 0)
	if err != nil {
		return nil, err
	}
	return fat.NewTable(geo, device)
}

func showInfo(context *cli.Context) error {
	table, err := openTable(context)
	if err != nil {
		return err
	}

	geo := table.Geometry()
	fmt.Printf("Version:            %s\n", geo.Version)
	fmt.Printf("Bytes per block:    %d\n", geo.BytesPerBlock)
	fmt.Printf("Blocks per cluster: %d\n", geo.BlocksPerCluster)
	fmt.Printf("Clusters:           %d\n", geo.TotalClusters)
	fmt.Printf("FAT replicas:       %d x %d blocks\n", geo.NumFATs, geo.BlocksPerFAT)
	if geo.Version == fat.FAT32 {
		fmt.Printf("Root dir cluster:   %d\n", geo.RootCluster)
	} else {
		fmt.Printf("Root dir blocks:    %d\n", geo.RootDirBlocks)
	}
	return nil
}

func showFreeCount(context *cli.Context) error {
	table, err := openTable(context)
	if err != nil {
		return err
	}

	count, err := table.FreeClusterCount()
	if err != nil {
		return err
	}

	geo := table.Geometry()
	fmt.Printf(
		"%d of %d data clusters free (%d bytes)\n",
		count,
		geo.TotalClusters-uint32(fat.FirstDataCluster),
		int64(count)*geo.BytesPerClusterTotal())
	return nil
}

func showChain(context *cli.Context) error {
	table, err := openTable(context)
	if err != nil {
		return err
	}

	start := fat.ClusterID(context.Uint("start"))
	geo := table.Geometry()
	if !geo.IsValidCluster(start) {
		return fmt.Errorf(
			"cluster %d not in range [%d, %d)",
			start,
			fat.FirstDataCluster,
			geo.TotalClusters)
	}

	// Bounding by the cluster count keeps a corrupted, looped chain from
	// printing forever.
	chain := table.Chain(start).Collect(geo.TotalClusters)
	for _, cluster := range chain {
		fmt.Println(cluster)
	}
	return nil
}

func wipeImage(context *cli.Context) error {
	profile, err := disks.GetPredefinedMediaProfile(context.String("media"))
	if err != nil {
		return err
	}

	file, err := openImage(context, true)
	if err != nil {
		return err
	}

	if err := file.Truncate(profile.TotalSizeBytes()); err != nil {
		return err
	}

	geo := profile.Geometry()
	device := blockdev.New(file)

	sector, err := fat.BuildBootSector(
		geo,
		profile.TotalSectors,
		uint16(profile.RootEntries),
		profile.MediaDescriptor,
		"NO NAME",
	)
	if err != nil {
		return err
	}
	if err := device.WriteAt(0, sector); err != nil {
		return err
	}

	table, err := fat.NewTable(geo, device)
	if err != nil {
		return err
	}
	if err := table.Initialize(); err != nil {
		return err
	}
	if err := writeReservedCells(device, geo, profile.MediaDescriptor); err != nil {
		return err
	}

	// A FAT32 root directory needs its chain terminated before it's usable.
	if geo.Version == fat.FAT32 {
		if err := table.Put(geo.RootCluster, fat.EndOfChainCell()); err != nil {
			return err
		}
	}

	log.Printf(
		"formatted %q as %s (%s)", context.Args().First(), geo.Version, profile.Name)
	return nil
}

// writeReservedCells patches FAT cells 0 and 1 with the media descriptor and
// the all-ones terminator, on every replica. The cells are reserved and never
// hold chain links, so they're written raw rather than through the cell codec.
func writeReservedCells(device blockdev.Device, geo fat.Geometry, media uint8) error {
	var cells []byte
	switch geo.Version {
	case fat.FAT12:
		cells = []byte{media, 0xFF, 0xFF}
	case fat.FAT16:
		cells = []byte{media, 0xFF, 0xFF, 0xFF}
	default:
		cells = make([]byte, 8)
		binary.LittleEndian.PutUint32(cells[0:4], 0x0FFFFF00|uint32(media))
		binary.LittleEndian.PutUint32(cells[4:8], 0x0FFFFFFF)
	}

	for replica := uint(0); replica < geo.NumFATs; replica++ {
		offset := geo.PartitionStart +
			geo.FirstFATByte +
			int64(replica)*geo.FATSizeBytes()
		if err := device.WriteAt(offset, cells); err != nil {
			return err
		}
	}
	return nil
}
