// Command spg-record captures the device's telemetry stream from a serial
// port into a session database and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/speckle/internal/api"
	"github.com/banshee-data/speckle/internal/db"
	"github.com/banshee-data/speckle/internal/fsutil"
	"github.com/banshee-data/speckle/internal/monitoring"
	"github.com/banshee-data/speckle/internal/recorder"
	"github.com/banshee-data/speckle/internal/serialmux"
	"github.com/banshee-data/speckle/internal/telemetry"
	"github.com/banshee-data/speckle/internal/timeutil"
	"github.com/banshee-data/speckle/internal/version"
)

var (
	port        = flag.String("port", "/dev/ttyACM0", "Serial port the device streams on")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	framing     = flag.String("framing", "8N1", "Serial framing")
	replay      = flag.String("replay", "", "Replay a captured log file instead of opening -port")
	dbFile      = flag.String("db", "speckle.db", "Session database path")
	listen      = flag.String("listen", ":8080", "HTTP listen address (empty disables the server)")
	csvFile     = flag.String("csv", "", "Also mirror records to this CSV file")
	note        = flag.String("note", "", "Free-text note stored on the session")
	debug       = flag.Bool("debug", false, "Log every raw line")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("spg-record"))
		return
	}
	monitoring.SetDebug(*debug)

	mux, sourceName, err := openMux(*port, *replay, *baud, *framing)
	if err != nil {
		log.Fatalf("failed to open device: %v", err)
	}
	if err := mux.Initialize(); err != nil {
		log.Fatalf("failed to initialize device: %v", err)
	}
	log.Printf("initialized device %s", sourceName)

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	var mirror telemetry.Emitter
	if *csvFile != "" {
		f, err := createMirror(fsutil.OSFileSystem{}, *csvFile)
		if err != nil {
			log.Fatalf("failed to create CSV mirror: %v", err)
		}
		defer f.Close()
		mirror = telemetry.NewWriter(f)
	}

	cfg := recorder.DefaultConfig(sourceName)
	cfg.Note = *note
	rec, err := recorder.New(cfg, mux, store, mirror, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to create recorder: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the recorder subscribes before the monitor starts reading, so no line
	// is fanned out to an empty subscriber list
	recDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		recDone <- rec.Run(ctx)
		stop()
	}()
	waitForSubscriber(ctx, mux)

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := mux.Monitor(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
		// closing the mux ends the subscription once the recorder has
		// drained it
		if err := mux.Close(); err != nil {
			log.Printf("close serial port: %v", err)
		}
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(ctx, *listen, mux, store, rec)
		}()
	}

	wg.Wait()
	if err := <-recDone; err != nil {
		log.Fatalf("recording failed: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// openMux opens the serial port, or a replay file when replay is set.
func openMux(port, replay string, baud int, framing string) (serialmux.SerialMuxInterface, string, error) {
	if replay != "" {
		f, err := os.Open(replay)
		if err != nil {
			return nil, "", err
		}
		return serialmux.NewSerialMux(serialmux.NewReplayPort(f)), replay, nil
	}
	opts, err := serialmux.ParseFraming(baud, framing)
	if err != nil {
		return nil, "", err
	}
	m, err := serialmux.NewRealSerialMux(port, opts)
	if err != nil {
		return nil, "", err
	}
	return m, port, nil
}

// createMirror opens path for the CSV mirror, creating its directory.
func createMirror(fs fsutil.FileSystem, path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return fs.Create(path)
}

func waitForSubscriber(ctx context.Context, m serialmux.SerialMuxInterface) {
	for m.Stats().Subscribers == 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func serve(ctx context.Context, addr string, m serialmux.SerialMuxInterface, store *db.DB, rec *recorder.Recorder) {
	mux := api.NewServer(m, store).ServeMux()
	m.AttachAdminRoutes(mux)
	store.AttachAdminRoutes(mux)
	rec.AttachAdminRoutes(mux)

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("serving on %s", addr)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
