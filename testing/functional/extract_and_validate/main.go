package main

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"github.com/bgrewell/udf-kit"
	itesting "github.com/bgrewell/udf-kit/internal/testing"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/usage"
)

func generateFileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	hashBytes := hash.Sum(nil)
	return fmt.Sprintf("%x", hashBytes), nil
}

func main() {

	u := usage.NewUsage(
		usage.WithApplicationName("extract_and_validate"),
		usage.WithApplicationDescription("extract_and_validate is a functional testing application that is part of udf-kit and is designed to verify that the volume resolution and extraction logic of udf-kit is working as expected."),
	)
	help := u.AddBooleanOption("h", "help", false, "Display this help message", "", nil)
	rm := u.AddBooleanOption("rm", "remove-test-output", true, "Remove the extracted files after running the tests", "", nil)
	input := u.AddArgument(1, "input", "The input UDF image to run the tests against", "")
	groundTruth := u.AddArgument(2, "ground-truth", "Optional JSON listing of the expected extracted tree", "")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	if input == nil || *input == "" {
		u.PrintError(fmt.Errorf("location of the input UDF image <input> must be provided"))
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_TRACE, true))
	i, err := udfkit.Open(*input,
		option.WithLogger(logger),
		option.WithStrict(true))
	if err != nil {
		fmt.Printf("Failed to open UDF image: %s\n", err)
		os.Exit(1)
	}
	defer i.Close()

	// Extract the image to a random temporary directory
	out, err := os.MkdirTemp("", "extract_and_validate_*")
	if err != nil {
		fmt.Printf("Failed to create temporary directory: %s\n", err)
		os.Exit(1)
	}

	if *rm {
		defer os.RemoveAll(out)
	} else {
		fmt.Printf("Temporary directory: %s\n", out)
	}

	result, err := i.Extract(out)
	if err != nil {
		fmt.Printf("Failed to extract UDF image: %s\n", err)
		os.Exit(1)
	}
	if err := result.Err(); err != nil {
		fmt.Printf("Some files could not be extracted: %s\n", err)
		os.Exit(1)
	}

	for _, f := range result.Files {
		sum, err := generateFileMD5(f)
		if err != nil {
			fmt.Printf("Failed to generate MD5 hash for %s: %s\n", f, err)
			os.Exit(1)
		}
		fmt.Printf("%s  %s\n", sum, f)
	}

	folders, files, err := itesting.GetFileAndFolderCounts(out)
	if err != nil {
		fmt.Printf("Failed to walk extracted tree: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Extracted %d files in %d folders from %s\n", files, folders, i.VolumeIdentifier())

	if groundTruth != nil && *groundTruth != "" {
		if err := itesting.Validate(out, *groundTruth); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Println("All entries match the ground truth!")
	}
}
