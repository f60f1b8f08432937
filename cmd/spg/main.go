// Command spg runs the speckle contrast loop: it reads frames from a source,
// filters the ROI contrast and streams time_s,K_filt records.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/speckle/internal/config"
	"github.com/banshee-data/speckle/internal/frame"
	"github.com/banshee-data/speckle/internal/monitoring"
	"github.com/banshee-data/speckle/internal/pipeline"
	"github.com/banshee-data/speckle/internal/sensor"
	"github.com/banshee-data/speckle/internal/serialmux"
	"github.com/banshee-data/speckle/internal/telemetry"
	"github.com/banshee-data/speckle/internal/timeutil"
	"github.com/banshee-data/speckle/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a tuning JSON file (defaults apply when empty)")
	source      = flag.String("source", "synthetic", "Frame source: synthetic or video")
	videoFile   = flag.String("video", "", "Recorded video to replay when -source=video")
	serialPort  = flag.String("serial", "", "Serial port to stream records to (stdout when empty)")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	framing     = flag.String("framing", "8N1", "Serial framing")
	natsURL     = flag.String("nats", "", "NATS server URL to also publish records to")
	natsSubject = flag.String("nats-subject", telemetry.DefaultSubject, "NATS subject for records")
	debug       = flag.Bool("debug", false, "Emit '#' diagnostic records and verbose logs")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("spg"))
		return
	}

	tuning, err := loadTuning(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := pipeline.ConfigFromTuning(tuning)
	if *debug {
		cfg = cfg.WithDebug(true, cfg.DebugEvery)
		monitoring.SetDebug(true)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid pipeline config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := frame.NewPool(tuning.GetFramePoolSize(), cfg.FrameWidth, cfg.FrameHeight)
	if err != nil {
		log.Fatalf("failed to allocate frames: %v", err)
	}
	src, err := openSource(ctx, *source, *videoFile, cfg, pool)
	if err != nil {
		log.Fatalf("failed to open %s source: %v", *source, err)
	}
	defer src.Close()

	if err := sensor.Apply(src, sensor.SettingsFromTuning(tuning)); err != nil {
		log.Fatalf("failed to configure sensor: %v", err)
	}

	out, closeOut, err := buildEmitter(*serialPort, *baud, *framing, *natsURL, *natsSubject)
	if err != nil {
		log.Fatalf("failed to open output: %v", err)
	}
	defer closeOut()

	runner, err := pipeline.NewRunner(cfg, src, out, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	log.Printf("%s: roi %d at %v, warm-up %d cycles, %g Hz",
		version.String("spg"), cfg.ROISize, runner.Window(), cfg.WarmupCycles(), cfg.CycleRateHz)

	if err := runner.Run(ctx); err != nil {
		log.Fatalf("pipeline stopped: %v", err)
	}
	c := runner.Counters()
	log.Printf("stopped: %d processed, %d emitted, %d skipped, %d dt clamps, %d ring resyncs", c.Processed, c.Emitted, c.Skipped, c.Clamped, c.Resynced)
}

// loadTuning reads path, or returns the built-in defaults when path is empty.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func openSource(ctx context.Context, kind, video string, cfg *pipeline.Config, pool *frame.Pool) (frame.Source, error) {
	switch kind {
	case "synthetic":
		return frame.NewSynthetic(pool, timeutil.RealClock{}, frame.DefaultTones().Modulation()), nil
	case "video":
		if video == "" {
			return nil, fmt.Errorf("-video is required with -source=video")
		}
		w, h, err := frame.ProbeGeometry(video)
		if err != nil {
			return nil, err
		}
		log.Printf("decoding %s (%dx%d) at %dx%d", video, w, h, cfg.FrameWidth, cfg.FrameHeight)
		return frame.OpenVideo(ctx, video, int(cfg.CycleRateHz), pool)
	default:
		return nil, fmt.Errorf("unknown source %q (want synthetic or video)", kind)
	}
}

// buildEmitter assembles the record sinks. The returned func closes anything
// that was opened.
func buildEmitter(port string, baud int, framing, natsURL, subject string) (telemetry.Emitter, func(), error) {
	var (
		sinks   telemetry.Multi
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("close output: %v", err)
			}
		}
	}

	if port == "" {
		sinks = append(sinks, telemetry.NewWriter(os.Stdout))
	} else {
		opts, err := serialmux.ParseFraming(baud, framing)
		if err != nil {
			return nil, nil, err
		}
		p, err := serialmux.OpenPort(port, opts)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, p)
		sinks = append(sinks, telemetry.NewWriter(p))
		log.Printf("streaming to %s at %s", port, opts)
	}

	if natsURL != "" {
		nc, err := telemetry.ConnectNATS(natsURL, "spg")
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, natsCloser{nc.Drain})
		sinks = append(sinks, telemetry.NewNATSPublisher(nc, subject))
		log.Printf("publishing to %s on %s", natsURL, subject)
	}

	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}

type natsCloser struct{ drain func() error }

func (c natsCloser) Close() error { return c.drain() }
