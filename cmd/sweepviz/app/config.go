package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
)

const (
	defaultImageSize   = 800
	defaultMaxDistance = 6000.0 // mm, the A1 range
)

type Config struct {
	DBPath      string
	SessionID   int64
	SweepIndex  int // negative counts from the end, -1 is the last sweep
	OutputFile  string
	Bars        bool
	List        bool
	ImageSize   int
	MaxDistance float64

	Avoidance avoidance.Config
}

func NewConfig() *Config {
	return &Config{
		SweepIndex:  -1,
		ImageSize:   defaultImageSize,
		MaxDistance: defaultMaxDistance,
		Avoidance:   avoidance.DefaultConfig(),
	}
}

func NewConfigFromCLI() (*Config, error) {
	return NewConfigFromArgs(os.Args[0], os.Args[1:])
}

func NewConfigFromArgs(name string, args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.IntVar(&c.SweepIndex, "n", c.SweepIndex, "Sweep index within the session, negative counts from the end")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output PNG file")
	fs.BoolVar(&c.Bars, "bars", false, "Print a bar of dots per batch, one dot per 25 mm")
	fs.BoolVar(&c.List, "list", false, "List recorded sessions and exit")
	fs.IntVar(&c.ImageSize, "size", c.ImageSize, "Image width and height in pixels")
	fs.Float64Var(&c.MaxDistance, "max-distance", c.MaxDistance, "Distance at the edge of the image (mm)")
	fs.IntVar(&c.Avoidance.BatchSize, "batch-size", c.Avoidance.BatchSize, "Samples averaged per batch")
	fs.Float64Var(&c.Avoidance.QualityThreshold, "quality", c.Avoidance.QualityThreshold, "Samples must have a higher quality to count")
	fs.Float64Var(&c.Avoidance.BlockingDistance, "blocking", c.Avoidance.BlockingDistance, "Blocking distance (mm)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.List:
	case c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "" && !c.Bars:
		err = errors.New("output file or -bars is required")
	case c.ImageSize < 100:
		err = fmt.Errorf("image size must be at least 100 pixels: %d given", c.ImageSize)
	case c.MaxDistance <= 0:
		err = fmt.Errorf("max distance must be positive: %.1f given", c.MaxDistance)
	default:
		err = c.Avoidance.Validate()
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
