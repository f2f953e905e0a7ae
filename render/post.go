package render

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	fractal "github.com/marben/fractile"
)

// OutputDir returns the directory the post actions write into for p.
func OutputDir(p fractal.Params) string {
	return filepath.Join(p.Storage.Directory, p.Name, fmt.Sprintf("%dx%d", p.Width, p.Height))
}

// PicturePath is where the finished canvas of p is saved.
func PicturePath(p fractal.Params) string {
	return filepath.Join(OutputDir(p), p.Name+".png")
}

// StatisticsPath is where the statistics of a pass over p are saved.
func StatisticsPath(p fractal.Params) string {
	return filepath.Join(OutputDir(p), p.Name+".statistics.json")
}

// ParamsPath is where p itself is saved next to its statistics.
func ParamsPath(p fractal.Params) string {
	return filepath.Join(OutputDir(p), p.Name+".params.json")
}

func savePicture(log *slog.Logger, p fractal.Params, img image.Image) {
	path := PicturePath(p)
	err := writeFile(path, func(f *os.File) error {
		return png.Encode(f, img)
	})
	if err != nil {
		log.Warn("cannot save picture", "path", path, "err", err)
		return
	}
	log.Info("picture saved", "path", path)
}

func saveStatistics(log *slog.Logger, p fractal.Params, s fractal.Statistics) {
	path := StatisticsPath(p)
	err := writeFile(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(newReport(p, s))
	})
	if err != nil {
		log.Warn("cannot save statistics", "path", path, "err", err)
		return
	}

	path = ParamsPath(p)
	err = writeFile(path, func(f *os.File) error {
		return fractal.WriteParams(f, p)
	})
	if err != nil {
		log.Warn("cannot save parameters", "path", path, "err", err)
		return
	}
	log.Info("statistics saved", "path", StatisticsPath(p))
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Report is the saved form of Statistics. Bounds that were never seen are null.
type Report struct {
	Name              string    `json:"name"`
	StartTime         time.Time `json:"start_time"`
	FinishTime        time.Time `json:"finish_time"`
	ElapsedSeconds    float64   `json:"elapsed_seconds"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	PercentComplete   float64   `json:"percent_complete"`

	TotalPoints       int64 `json:"total_points"`
	PointsFinished    int64 `json:"points_finished"`
	PointsInSet       int64 `json:"points_in_set"`
	PointsOutOfBounds int64 `json:"points_out_of_bounds"`
	PointsCached      int64 `json:"points_cached"`
	TotalIterations   int64 `json:"total_iterations"`

	MinDepth *int `json:"min_depth"`
	MaxDepth *int `json:"max_depth"`

	MinColorValue      *float64 `json:"min_color_value"`
	MaxColorValue      *float64 `json:"max_color_value"`
	MinBrightnessValue *float64 `json:"min_brightness_value"`
	MaxBrightnessValue *float64 `json:"max_brightness_value"`
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newReport(p fractal.Params, s fractal.Statistics) Report {
	r := Report{
		Name:               p.Name,
		StartTime:          s.StartTime,
		FinishTime:         s.FinishTime,
		ElapsedSeconds:     s.FinishTime.Sub(s.StartTime).Seconds(),
		ProcessingSeconds:  s.ProcessingTime.Seconds(),
		PercentComplete:    s.PercentComplete(p),
		TotalPoints:        fractal.TotalPoints(p),
		PointsFinished:     s.PointsFinished,
		PointsInSet:        s.PointsInSet,
		PointsOutOfBounds:  s.PointsOutOfBounds,
		PointsCached:       s.PointsCached,
		TotalIterations:    s.TotalIterations,
		MinColorValue:      optional(s.MinColorValue),
		MaxColorValue:      optional(s.MaxColorValue),
		MinBrightnessValue: optional(s.MinBrightnessValue),
		MaxBrightnessValue: optional(s.MaxBrightnessValue),
	}
	if s.DepthKnown {
		lo, hi := s.MinDepth, s.MaxDepth
		r.MinDepth, r.MaxDepth = &lo, &hi
	}
	return r
}
