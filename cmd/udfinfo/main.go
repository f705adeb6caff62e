package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/progress"
	"github.com/bgrewell/udf-kit/pkg/udf"
	"github.com/bgrewell/usage"
)

func main() {

	u := usage.NewUsage(
		usage.WithApplicationName("udfinfo"),
		usage.WithApplicationDescription("Prints the volume layout of a UDF image"),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Print verbose output", "", nil)
	asJSON := u.AddBooleanOption("j", "json", false, "Print the volume information as JSON", "", nil)
	path := u.AddArgument(1, "image-path", "Path to the UDF image", "")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	if path == nil || *path == "" {
		u.PrintError(fmt.Errorf("location of the UDF image <image-path> must be provided"))
		os.Exit(1)
	}

	verbosity := logging.LEVEL_INFO
	if *verbose {
		verbosity = logging.LEVEL_DEBUG
	}
	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, verbosity, true))

	img, err := udfkit.Open(*path,
		option.WithLogger(logger),
		option.WithProgress(progress.NewConsole(os.Stderr)),
	)
	if err != nil {
		u.PrintError(err)
		os.Exit(1)
	}
	defer img.Close()

	info := img.VolumeInfo()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			u.PrintError(err)
			os.Exit(1)
		}
		return
	}
	printSummary(info)
}

func printSummary(info *udf.VolumeInfo) {
	var recognition []string
	for _, vsd := range info.Recognition {
		recognition = append(recognition, vsd.StandardIdentifier)
	}
	root := info.FileSet.RootDirectoryIcb.ExtentLocation

	fmt.Printf("Volume identifier:   %s\n", info.LogicalVolume.LogicalVolumeIdentifier)
	fmt.Printf("File set identifier: %s\n", info.FileSet.FileSetIdentifier)
	fmt.Printf("Recognition:         %s\n", strings.Join(recognition, " "))
	fmt.Printf("Sector size:         %d\n", info.SectorSize)
	fmt.Printf("Logical block size:  %d\n", info.LogicalVolume.LogicalBlockSize)
	fmt.Printf("Partition:           #%d, start %d, length %d\n",
		info.Partition.PartitionNumber, info.Partition.PartitionStartingLocation, info.Partition.PartitionLength)
	fmt.Printf("Root directory ICB:  block %d, partition %d\n", root.LogicalBlockNum, root.PartitionRefNum)
}
