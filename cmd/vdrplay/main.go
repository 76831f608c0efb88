// Command vdrplay replays a recorded VDR navigation log over TCP, UDP or a
// serial port, reproducing the original message timing.
//
//	vdrplay -transport tcp -protocol 0183 monitor.csv
//	vdrplay -transport udp -host 10.0.0.5 -port 10110 -speed 4 ais.csv
//	vdrplay -transport udp -protocol 0183 capture.pcap
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/vdrplay/internal/codec"
	"github.com/banshee-data/vdrplay/internal/monitoring"
	"github.com/banshee-data/vdrplay/internal/replay"
	"github.com/banshee-data/vdrplay/internal/report"
	"github.com/banshee-data/vdrplay/internal/runs"
	"github.com/banshee-data/vdrplay/internal/transport"
	"github.com/banshee-data/vdrplay/internal/vdrlog"
	"github.com/banshee-data/vdrplay/internal/version"
)

const defaultLogFile = "monitor.csv"

var (
	configFile    = flag.String("config", "", "Optional JSON settings file; flags override its values")
	transportName = flag.String("transport", "tcp", "Transport to replay over: tcp, udp or serial")
	protocolName  = flag.String("protocol", "0183", "Message protocol: 0183 or signalk")
	port          = flag.Int("port", replay.DefaultPort, "TCP listen port or UDP destination port")
	host          = flag.String("host", "localhost", "TCP bind interface or UDP destination host")
	serialDevice  = flag.String("serial", "", "Serial device path (serial transport)")
	baud          = flag.Int("baud", 4800, "Serial baud rate")
	speed         = flag.Float64("speed", 1.0, "Playback speed factor (>1 accelerates)")
	count         = flag.Int("count", 1, "Number of times to play the log")
	quiet         = flag.Bool("quiet", false, "Suppress progress output")
	abortOnDrop   = flag.Bool("abort-on-disconnect", false, "Fail the run when the TCP peer disconnects instead of waiting for a new one")
	pcapPort      = flag.Int("pcap-port", 0, "When replaying a pcap file, keep only UDP packets to this destination port (0 = any)")
	dbFile        = flag.String("db", "vdrplay_runs.db", "Path to the run history database")
	migrationsDir = flag.String("migrations", "migrations", "Path to the database migrations directory")
	historyCount  = flag.Int("history", 0, "Print the N most recent runs and exit")
	timingReport  = flag.String("timing-report", "", "Write an HTML timing-fidelity report to this path after the run")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *quiet {
		monitoring.SetLogger(nil)
	}

	if *historyCount > 0 {
		if err := printHistory(*dbFile, *migrationsDir, *historyCount); err != nil {
			log.Fatalf("failed to read run history: %v", err)
		}
		return
	}

	os.Exit(run())
}

func run() int {
	logPath := defaultLogFile
	if flag.NArg() > 0 {
		logPath = flag.Arg(0)
	}

	cfg, err := buildConfig()
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return 1
	}

	src, err := openSource(logPath, cfg.Protocol)
	if err != nil {
		log.Printf("failed to open %s: %v", logPath, err)
		return 1
	}
	defer src.Close()

	enc, err := codec.ForProtocol(cfg.Protocol)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	ctrl, err := replay.NewController(cfg, src, enc, tr, nil)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("replaying %s over %s", logPath, tr.Describe())
	status := ctrl.Run(ctx)
	stats := ctrl.Stats()

	summary := report.Summarize(stats.SchedErrors)
	monitoring.Logf("run %s: sent %d messages in %d pass(es), %d send failures",
		stats.RunID, stats.RecordsSent, stats.Passes, stats.SendFailures)
	monitoring.Logf("%s", summary)
	if status.Err != nil {
		log.Printf("replay %s: %v", status.Outcome, status.Err)
	}

	if *timingReport != "" {
		title := fmt.Sprintf("%s @ %gx", filepath.Base(logPath), cfg.SpeedFactor)
		if err := report.WriteHTML(*timingReport, title, stats.SchedErrors); err != nil {
			log.Printf("%v", err)
		}
	}

	recordRun(logPath, cfg, status, stats, src)

	return status.ExitCode()
}

func buildConfig() (replay.Config, error) {
	kind, ok := replay.ParseTransportKind(*transportName)
	if !ok {
		return replay.Config{}, fmt.Errorf("unknown transport %q (want tcp, udp or serial)", *transportName)
	}
	proto, ok := vdrlog.ParseProtocol(*protocolName)
	if !ok {
		return replay.Config{}, fmt.Errorf("unknown protocol %q (want 0183 or signalk)", *protocolName)
	}

	cfg := replay.Config{
		Transport:         kind,
		Protocol:          proto,
		Port:              *port,
		Host:              *host,
		SerialDevice:      *serialDevice,
		Baud:              *baud,
		SpeedFactor:       *speed,
		Passes:            *count,
		AbortOnDisconnect: *abortOnDrop,
	}

	if *configFile != "" {
		fc, err := replay.LoadFileConfig(*configFile)
		if err != nil {
			return replay.Config{}, err
		}
		maskSetFlags(fc)
		fc.Apply(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return replay.Config{}, err
	}
	return cfg, nil
}

// maskSetFlags drops file-config fields whose flag was given on the
// command line, so explicit flags always win over the settings file.
func maskSetFlags(fc *replay.FileConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			fc.Transport = nil
		case "protocol":
			fc.Protocol = nil
		case "port":
			fc.Port = nil
		case "host":
			fc.Host = nil
		case "serial":
			fc.SerialDevice = nil
		case "baud":
			fc.Baud = nil
		case "speed":
			fc.SpeedFactor = nil
		case "count":
			fc.Passes = nil
		case "abort-on-disconnect":
			fc.AbortOnDisconnect = nil
		}
	})
}

// openSource picks the reader by file extension: .pcap captures are decoded
// with the pcap source, anything else is read as a Data Monitor CSV log.
func openSource(path string, proto vdrlog.Protocol) (vdrlog.Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pcap") {
		return vdrlog.OpenPcap(path, *pcapPort, proto)
	}
	return vdrlog.Open(path, vdrlog.Options{Filter: proto})
}

func buildTransport(cfg replay.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case replay.TransportTCP:
		return transport.NewTCPServer(cfg.Addr()), nil
	case replay.TransportUDP:
		return transport.NewUDPEndpoint(cfg.Addr()), nil
	case replay.TransportSerial:
		return transport.NewSerialWriter(cfg.SerialDevice, cfg.Baud, transport.OpenRealSerial), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// recordRun appends the run to the history database. Best-effort: a
// history failure never changes the replay exit code.
func recordRun(logPath string, cfg replay.Config, status replay.Status, stats replay.Stats, src vdrlog.Source) {
	store, err := runs.Open(*dbFile)
	if err != nil {
		log.Printf("run history unavailable: %v", err)
		return
	}
	defer store.Close()

	if err := store.Migrate(*migrationsDir); err != nil {
		log.Printf("run history unavailable: %v", err)
		return
	}

	warnings := 0
	if w, ok := src.(interface{ WarningCount() int }); ok {
		warnings = w.WarningCount()
	}

	err = store.RecordRun(runs.Run{
		RunID:        stats.RunID,
		LogPath:      logPath,
		Transport:    string(cfg.Transport),
		Protocol:     string(cfg.Protocol),
		SpeedFactor:  cfg.SpeedFactor,
		RecordsSent:  stats.RecordsSent,
		SendFailures: stats.SendFailures,
		Warnings:     warnings,
		Status:       status.Outcome.String(),
		StartedAt:    stats.StartedAt,
		FinishedAt:   stats.FinishedAt,
	})
	if err != nil {
		log.Printf("failed to record run: %v", err)
	}
}

func printHistory(dbPath, migrations string, limit int) error {
	store, err := runs.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(migrations); err != nil {
		return err
	}

	history, err := store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	for _, r := range history {
		fmt.Printf("%s  %-9s  %s over %s @ %gx: %d sent, %d failed (%s)\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status, r.LogPath, r.Transport, r.SpeedFactor,
			r.RecordsSent, r.SendFailures, r.RunID)
	}
	return nil
}
