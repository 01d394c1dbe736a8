// Command memsim boots the kernel memory subsystem against simulated
// physical memory and reports the resulting allocator state.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errMissingConfig = errors.New("missing -config argument")

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[memsim] error: %+v\n", err)
	os.Exit(1)
}

// runTool parses args, runs the simulation and writes the report to stdout.
// Usage text and log output go to stderr.
func runTool(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("memsim", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "the TOML file describing the simulated machine")
	pngPath := flags.String("png", "", "render the frame map to this PNG file")
	verbose := flags.Bool("v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprint(stderr, "memsim: boot the memory subsystem against simulated physical memory\n\n")
		fmt.Fprint(stderr, "Usage: memsim -config machine.toml [options]\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return errors.Wrap(err, "parsing arguments")
	}

	if *configPath == "" {
		flags.Usage()
		return errMissingConfig
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	s, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	sim, err := run(s, logger)
	if err != nil {
		return err
	}

	writeReport(stdout, sim)

	if *pngPath != "" {
		frames := sim.kernel.Memory.Frames()
		if err = renderFrameMap(*pngPath, frames.FrameCount(), frames.IsReserved); err != nil {
			return err
		}
		logger.WithField("path", *pngPath).Info("frame map rendered")
	}

	return nil
}

func main() {
	if err := runTool(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		exit(err)
	}
}
