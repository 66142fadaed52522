package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/router-for-me/RepScan/internal/app"
	"github.com/router-for-me/RepScan/internal/config"
	"github.com/router-for-me/RepScan/internal/logging"
	"github.com/router-for-me/RepScan/internal/scan"
	"github.com/router-for-me/RepScan/internal/scanerr"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits with the code of the failure kind.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	errRun := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(errRun, flag.ErrHelp) {
		os.Exit(scanerr.ExitOK)
	}
	if errRun != nil {
		fmt.Fprintf(os.Stderr, "* [ERROR] %s *\n", scanerr.Describe(errRun))
	}
	os.Exit(scanerr.ExitCode(errRun))
}

// run parses the command line, configures logging and dispatches.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	command := "scan"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("repscan "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	scanDir := fs.String("scan-dir", "", "directory to scan (overrides config)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	var (
		cfg     config.AppConfig
		errLoad error
	)
	if path := strings.TrimSpace(*cfgPath); path != "" {
		cfg, errLoad = config.Load(config.ResolveConfigPath(path))
	} else {
		cfg, errLoad = config.LoadFromEnv()
	}
	if errLoad != nil {
		return errLoad
	}
	if dir := strings.TrimSpace(*scanDir); dir != "" {
		cfg.ScanDir = dir
	}

	closer, errLog := logging.Setup(cfg.Logging)
	if errLog != nil {
		return errLog
	}
	defer func() {
		_ = closer.Close()
	}()

	switch command {
	case "scan":
		return runScan(ctx, cfg, stdout)
	case "status":
		return runStatus(cfg, stdout)
	case "serve":
		return app.RunServe(ctx, cfg)
	default:
		return fmt.Errorf("unknown command %q (want scan, status or serve)", command)
	}
}

func runScan(ctx context.Context, cfg config.AppConfig, stdout io.Writer) error {
	outcome, errRun := app.RunScan(ctx, cfg, app.Options{
		Progress: func(ev scan.Event) { printEvent(stdout, ev) },
	})
	if errRun != nil {
		return errRun
	}
	switch outcome.State {
	case scan.StateCompleted:
		fmt.Fprintf(stdout, "Scan complete: %d file(s) reported, %d call(s) used this period.\n", outcome.Scanned, outcome.Count)
	case scan.StateExhausted:
		fmt.Fprintf(stdout, "Max API calls reached for this period. %d file(s) not scanned.\n", outcome.Remaining)
	case scan.StateInterrupted:
		fmt.Fprintf(stdout, "Scan interrupted: %d call(s) used this period were saved.\n", outcome.Count)
	}
	if outcome.Scanned > 0 {
		fmt.Fprintf(stdout, "Report: %s\n", outcome.Report)
	}
	return nil
}

func printEvent(w io.Writer, ev scan.Event) {
	switch ev.Kind {
	case scan.EventRollover:
		fmt.Fprintln(w, "New accounting period, counters reset.")
	case scan.EventScanned:
		fmt.Fprintf(w, "Scanned %s (%d/%d engines flagged) [%d]\n", ev.Name, ev.Summary.Positives, ev.Summary.Total, ev.Count)
	case scan.EventPause:
		fmt.Fprintf(w, "Per-minute limit reached, pausing %s...\n", ev.Pause.Round(time.Second))
	case scan.EventExhausted:
		fmt.Fprintf(w, "Period limit reached at %d calls.\n", ev.Count)
	case scan.EventInterrupted:
		fmt.Fprintf(w, "Stopping, %d file(s) left unscanned.\n", ev.Remaining)
	}
}

func runStatus(cfg config.AppConfig, stdout io.Writer) error {
	snap, errRead := app.ReadStatus(cfg, time.Now())
	if errRead != nil {
		return errRead
	}
	data, errMarshal := json.MarshalIndent(snap, "", "  ")
	if errMarshal != nil {
		return errMarshal
	}
	if _, errWrite := fmt.Fprintln(stdout, string(data)); errWrite != nil {
		log.WithError(errWrite).Warn("write status failed")
	}
	return nil
}
