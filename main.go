// main.go - CLI entry point. Parses flags, loads a song file, wires a
// Backend/Driver/Scheduler, and runs playback until the song ends, the
// process receives SIGINT/SIGTERM, or the user presses 'q'.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

func main() {
	var (
		title    = pflag.StringP("title", "t", "", "song title to show in the status display")
		clockOpt = pflag.String("clock", "standard", "PSG master clock: \"standard\" (2.000000MHz) or \"mash\" (1.996800MHz)")
		strict   = pflag.Bool("strict", false, "deactivate a channel on its first unrecognized opcode instead of skipping it")
		verbose  = pflag.BoolP("verbose", "v", false, "enable debug logging")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "psgplay - PC-6001 PSG music player for AY-3-8910/YM2149F over Raspberry Pi GPIO\n\n")
		fmt.Fprintf(os.Stderr, "Usage: psgplay [options] song.p6\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(*title, *clockOpt, *strict, logger); err != nil {
		logger.Error("playback failed", "err", err)
		os.Exit(1)
	}
}

func run(title, clockOpt string, strict bool, logger *log.Logger) error {
	if pflag.NArg() != 1 {
		pflag.Usage()
		return &ConfigError{Msg: "expected exactly one song file argument"}
	}

	clockHz, err := parseClockOpt(clockOpt)
	if err != nil {
		return err
	}

	song, err := LoadSongFile(pflag.Arg(0))
	if err != nil {
		return err
	}

	backend := NewGPIOBackend(clockHz)
	if err := backend.Init(); err != nil {
		return err
	}
	defer backend.Fini()

	if err := backend.Enable(); err != nil {
		return err
	}
	defer backend.Disable()

	sink := newConsoleSink(logger)
	driver := NewDriver(backend, sink, sink, logger)
	driver.SetStrict(strict)
	if err := driver.Init(); err != nil {
		return err
	}

	for i, data := range song.Channels {
		if err := driver.SetChannelData(i, data); err != nil {
			return err
		}
	}

	if title != "" {
		logger.Info("now playing", "title", title)
	}
	driver.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sched := NewScheduler(driver, logger)
	if err := sched.Run(ctx); err != nil {
		return err
	}
	return driver.Stop()
}

// parseClockOpt resolves -clock into the corresponding PSG master clock
// frequency (spec.md section 4.5).
func parseClockOpt(opt string) (uint32, error) {
	switch opt {
	case "standard", "":
		return ClockHzStandard, nil
	case "mash":
		return ClockHzMASH, nil
	default:
		return 0, &ConfigError{Msg: fmt.Sprintf("invalid --clock value %q: want \"standard\" or \"mash\"", opt)}
	}
}
