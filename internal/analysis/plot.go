package analysis

import (
	"fmt"
	"image/color"
	"path"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/speckle/internal/fsutil"
)

// Output file names written by Plotter.
const (
	TimeseriesFile = "spg_timeseries.png"
	DtSeriesFile   = "dt_timeseries.png"
	DtHistFile     = "dt_hist.png"
)

// HistBins is the number of bins in the dt histogram.
const HistBins = 30

// Plotter renders a series to PNG files under a directory.
type Plotter struct {
	fs  fsutil.FileSystem
	dir string
}

// NewPlotter returns a plotter writing into dir on fs.
func NewPlotter(fs fsutil.FileSystem, dir string) *Plotter {
	return &Plotter{fs: fs, dir: dir}
}

// Plot writes the K_filt time series, the dt series and the dt histogram,
// returning the paths written.
func (p *Plotter) Plot(s Series) ([]string, error) {
	if s.Len() < 2 {
		return nil, fmt.Errorf("plot %d samples: %w", s.Len(), ErrTooFewSamples)
	}
	if err := p.fs.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	steps := []struct {
		name string
		w, h vg.Length
		make func(Series) (*plot.Plot, error)
	}{
		{TimeseriesFile, 10 * vg.Inch, 4 * vg.Inch, timeseriesPlot},
		{DtSeriesFile, 10 * vg.Inch, 3.2 * vg.Inch, dtSeriesPlot},
		{DtHistFile, 6.8 * vg.Inch, 3.2 * vg.Inch, dtHistPlot},
	}
	for _, st := range steps {
		pl, err := st.make(s)
		if err != nil {
			return written, fmt.Errorf("%s: %w", st.name, err)
		}
		name := path.Join(p.dir, st.name)
		if err := p.save(pl, st.w, st.h, name); err != nil {
			return written, fmt.Errorf("save %s: %w", st.name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

func (p *Plotter) save(pl *plot.Plot, w, h vg.Length, name string) error {
	wt, err := pl.WriterTo(w, h, "png")
	if err != nil {
		return err
	}
	f, err := p.fs.Create(name)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func timeseriesPlot(s Series) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = "SPG Signal (Time Domain)"
	pl.X.Label.Text = "Time (s)"
	pl.Y.Label.Text = "SPG (filtered)"
	pl.Add(plotter.NewGrid())

	pts := make(plotter.XYs, s.Len())
	for i := range s.T {
		pts[i].X = s.T[i]
		pts[i].Y = s.KFilt[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	pl.Add(line)
	return pl, nil
}

func dtSeriesPlot(s Series) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = "Timestamp difference Δt (jitter / dropped-sample check)"
	pl.X.Label.Text = "Sample index"
	pl.Y.Label.Text = "Δt (s)"

	dt := s.Intervals()
	pts := make(plotter.XYs, len(dt))
	for i, d := range dt {
		pts[i].X = float64(i)
		pts[i].Y = d
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	pl.Add(line)
	return pl, nil
}

func dtHistPlot(s Series) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = "Histogram of Δt"
	pl.X.Label.Text = "Δt (s)"
	pl.Y.Label.Text = "Count"

	hist, err := plotter.NewHist(plotter.Values(s.Intervals()), HistBins)
	if err != nil {
		return nil, err
	}
	pl.Add(hist)
	return pl, nil
}
