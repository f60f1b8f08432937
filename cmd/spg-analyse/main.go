// Command spg-analyse summarises a recording's sampling behaviour and plots
// it. Input is a CSV capture or a session from the recording database.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/speckle/internal/analysis"
	"github.com/banshee-data/speckle/internal/db"
	"github.com/banshee-data/speckle/internal/fsutil"
	"github.com/banshee-data/speckle/internal/version"
)

var (
	csvFile     = flag.String("csv", "", "Recording CSV to analyse")
	dbFile      = flag.String("db", "", "Session database to analyse instead of -csv")
	sessionID   = flag.String("session", "", "Session ID (default: the most recent session)")
	warmup      = flag.Duration("warmup", analysis.DefaultWarmup, "Leading span to drop before measuring")
	outDir      = flag.String("out", "Images", "Directory for the PNG plots")
	noPlots     = flag.Bool("no-plots", false, "Print the summary only")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("spg-analyse"))
		return
	}

	series, label, err := load(fsutil.OSFileSystem{}, *csvFile, *dbFile, *sessionID)
	if err != nil {
		log.Fatalf("failed to load recording: %v", err)
	}
	if err := run(os.Stdout, fsutil.OSFileSystem{}, series, label, *warmup, *outDir, !*noPlots); err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
}

// load reads the series from a CSV file or a database session.
func load(fs fsutil.FileSystem, csvPath, dbPath, id string) (analysis.Series, string, error) {
	switch {
	case csvPath != "" && dbPath != "":
		return analysis.Series{}, "", errors.New("use either -csv or -db, not both")
	case csvPath != "":
		f, err := fs.Open(csvPath)
		if err != nil {
			return analysis.Series{}, "", err
		}
		defer f.Close()
		s, skipped, err := analysis.Load(f)
		if err != nil {
			return analysis.Series{}, "", err
		}
		log.Printf("loaded %d samples from %s (%d non-record lines)", s.Len(), csvPath, skipped)
		return s, csvPath, nil
	case dbPath != "":
		store, err := db.NewDB(dbPath)
		if err != nil {
			return analysis.Series{}, "", err
		}
		defer store.Close()
		return loadSession(store, id)
	default:
		return analysis.Series{}, "", errors.New("one of -csv or -db is required")
	}
}

func loadSession(store *db.DB, id string) (analysis.Series, string, error) {
	if id == "" {
		sessions, err := store.Sessions()
		if err != nil {
			return analysis.Series{}, "", err
		}
		if len(sessions) == 0 {
			return analysis.Series{}, "", fmt.Errorf("no sessions in %s: %w", store.Path(), db.ErrNotFound)
		}
		id = sessions[0].ID
	}
	if _, err := store.Session(id); err != nil {
		return analysis.Series{}, "", err
	}
	samples, err := store.Samples(id, 0)
	if err != nil {
		return analysis.Series{}, "", err
	}
	return analysis.FromRecords(db.Records(samples)), "session " + id, nil
}

// run prints the summary of s and writes the plots into dir.
func run(w io.Writer, fs fsutil.FileSystem, s analysis.Series, label string, warmup time.Duration, dir string, plots bool) error {
	sum, err := analysis.Summarise(s, warmup)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (warm-up %v dropped)\n", label, warmup)
	fmt.Fprint(w, sum)

	if !plots {
		return nil
	}
	written, err := analysis.NewPlotter(fs, dir).Plot(s.After(warmup.Seconds()))
	for _, name := range written {
		fmt.Fprintf(w, "wrote %s\n", name)
	}
	return err
}
