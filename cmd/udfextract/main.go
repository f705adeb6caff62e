package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bgrewell/udf-kit/internal/config"
	"github.com/bgrewell/udf-kit/pkg/extractor"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/progress"
)

var (
	version = "dev"
)

func printUsage() {
	fmt.Println("udfextract v" + version)
	fmt.Println("Usage: udfextract [options] file-list")
	fmt.Println("  -recursion=(max|<n>)  Extract the listed files and their contents to the given depth")
	fmt.Println("                          0: extract nothing")
	fmt.Println("                          1: extract the listed files but none of the extracted files")
	fmt.Println("                          max: extract nested archives to any depth (default)")
	fmt.Println("  -strict               Fail files whose extents do not cover their recorded length")
	fmt.Println("  -nospinner            Print announcements without a progress spinner")
	fmt.Println("  -v                    Enable verbose (debug) logging")
	fmt.Println("  -vv                   Enable trace logging")
	fmt.Println("Files are extracted in place, next to the file being extracted.")
	fmt.Println("Settings are also read from udfkit.yaml and UDFKIT_* environment variables.")
}

func main() {
	cfg, err := config.Load(os.Getenv("UDFKIT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	recursion := flag.String("recursion", cfg.Recursion, "Recursion limit: max or the number of recursive extractions")
	strict := flag.Bool("strict", cfg.Strict, "Fail files whose extents do not cover their recorded length")
	noSpinner := flag.Bool("nospinner", !cfg.Spinner, "Disable the progress spinner")
	debug := flag.Bool("v", false, "Enable verbose (debug) logging")
	trace := flag.Bool("vv", false, "Enable trace logging")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Required list of files to be extracted is missing.")
		printUsage()
		os.Exit(1)
	}

	cfg.Recursion = *recursion
	cfg.Strict = *strict
	opts, err := cfg.OpenOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		printUsage()
		os.Exit(1)
	}

	verbosity := logging.LEVEL_INFO
	if *debug {
		verbosity = logging.LEVEL_DEBUG
	}
	if *trace {
		verbosity = logging.LEVEL_TRACE
	}
	logger, err := cfg.Logger(verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	var sink progress.Annunciator = progress.NewConsole(os.Stdout)
	var spinner *progress.Spinner
	if !*noSpinner {
		spinner, err = progress.NewSpinner()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize spinner: %v\n", err)
			fmt.Fprintf(os.Stderr, "Progress updates will be disabled.\n")
		} else {
			sink = spinner
			opts = append(opts, option.WithExtractionProgress(spinner.FileProgress))
		}
	}
	opts = append(opts, option.WithLogger(logger), option.WithProgress(sink))

	dispatcher := extractor.NewDispatcher(opts...)

	failed := 0
	for _, path := range flag.Args() {
		if _, err := dispatcher.ExtractFile(path, dispatcher.RecursionDepth()); err != nil {
			failed++
			sink.Announce("Error encountered:  " + err.Error())
			logger.Error(err, "extraction failed", "path", path)
		}
	}

	if spinner != nil {
		if failed > 0 {
			spinner.Fail(fmt.Sprintf("%d of %d files could not be extracted", failed, flag.NArg()))
		} else {
			spinner.Succeed(fmt.Sprintf("Extracted %d files", flag.NArg()))
		}
	}
	_ = sink.Close()

	if failed > 0 {
		os.Exit(1)
	}
}
