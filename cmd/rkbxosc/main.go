// Command rkbxosc attaches to a running Rekordbox process, reconstructs its
// playback state from memory, and republishes it as OSC/UDP messages for a
// downstream visualization or karaoke consumer.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"

	"github.com/rkbx-osc/bridge/internal/beatkeeper"
	"github.com/rkbx-osc/bridge/internal/catalogue"
	"github.com/rkbx-osc/bridge/internal/keyboard"
	"github.com/rkbx-osc/bridge/internal/oscout"
	"github.com/rkbx-osc/bridge/internal/procmem"
	"github.com/rkbx-osc/bridge/internal/rekordbox"
	"github.com/rkbx-osc/bridge/internal/tickloop"
	"github.com/rkbx-osc/bridge/internal/trackinfo"
)

// Exit codes, per the external-interfaces contract: 0 is normal, everything
// else names a specific terminal startup failure.
const (
	exitOK = iota
	exitProcessNotFound
	exitModuleBaseUnavailable
	exitUnsupportedVersion
	exitOSCBindFailure
	exitCatalogueFailure
)

const targetExeName = "rekordbox.exe"

func main() {
	var (
		refreshURL  = pflag.StringP("refresh", "u", "", "Download the offsets catalogue from a URL and exit.")
		version     = pflag.StringP("target-version", "v", "", "Target catalogue version (default: newest catalogue key).")
		rateHz      = pflag.IntP("poll-rate", "p", 60, "Tick loop poll rate, in Hz.")
		oscDest     = pflag.StringP("osc-dest", "o", "127.0.0.1:9000", "OSC destination, host:port.")
		oscSource   = pflag.StringP("osc-source", "s", "0.0.0.0:0", "OSC source bind address, host:port.")
		offsetsPath = pflag.String("offsets-file", "offsets.yaml", "Path to the offsets catalogue.")
		help        = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "rkbxosc - republishes Rekordbox playback state as OSC/UDP.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: rkbxosc [options]\n\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nInteractive keys while running: c quit, r resend current master-track metadata.\n")
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(exitOK)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, TimeFormat: time.Kitchen})

	if *refreshURL != "" {
		if err := downloadOffsets(*refreshURL, *offsetsPath); err != nil {
			logger.Error("refreshing offsets catalogue", "err", err)
			os.Exit(exitCatalogueFailure)
		}
		logger.Info("offsets catalogue refreshed", "path", *offsetsPath)
		os.Exit(exitOK)
	}

	versions, err := catalogue.FromFile(*offsetsPath)
	if err != nil {
		logger.Error("loading offsets catalogue", "err", err)
		os.Exit(exitCatalogueFailure)
	}

	targetVersion := *version
	if targetVersion == "" {
		targetVersion, err = catalogue.NewestVersion(versions)
		if err != nil {
			logger.Error("selecting default catalogue version", "err", err)
			os.Exit(exitCatalogueFailure)
		}
	}

	bundle, ok := versions[targetVersion]
	if !ok {
		logger.Error("unsupported target version", "version", targetVersion)
		os.Exit(exitUnsupportedVersion)
	}

	binding, err := procmem.Open(targetExeName)
	if err != nil {
		logger.Error("attaching to target process", "err", err)
		if errors.Is(err, procmem.ErrModuleBaseUnavailable) {
			os.Exit(exitModuleBaseUnavailable)
		}
		os.Exit(exitProcessNotFound)
	}
	defer binding.Close() //nolint:errcheck

	logger.Info("attached", "process", targetExeName, "version", targetVersion)

	snapshot := rekordbox.New(binding, binding.ModuleBase(), bundle)
	resolver := trackinfo.New("")
	keeper := beatkeeper.New(snapshot, resolver)

	emitter, err := oscout.New(*oscSource, *oscDest, logger)
	if err != nil {
		logger.Error("binding osc emitter", "err", err)
		os.Exit(exitOSCBindFailure)
	}
	defer emitter.Close() //nolint:errcheck

	keys := keyboard.Start()

	loop := tickloop.New(keeper, keeper, snapshot, keys,
		[]tickloop.Route{{Sink: emitter, Events: tickloop.AllEvents}},
		tickloop.Config{RateHz: *rateHz},
		logger,
	)

	statusTicker := newStatusLine(logger)
	statusTicker.announce(targetVersion, *oscDest)

	loop.Run(binding.Alive)

	logger.Info("tick loop stopped, exiting")
}

// downloadOffsets performs the one-shot -u catalogue refresh: a plain GET,
// body written verbatim to path.
func downloadOffsets(url, path string) error {
	resp, err := http.Get(url) //nolint:gosec
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// statusLine prints one strftime-stamped line per announcement; the tick
// loop itself stays silent beyond its own Info/Error/Debug logging.
type statusLine struct {
	log *log.Logger
}

func newStatusLine(logger *log.Logger) *statusLine {
	return &statusLine{log: logger}
}

func (s *statusLine) announce(version, dest string) {
	stamp, err := strftime.Format("%H:%M:%S", time.Now())
	if err != nil {
		stamp = time.Now().Format(time.Kitchen)
	}
	s.log.Info("bridge running", "at", stamp, "target-version", version, "osc-dest", dest)
}
