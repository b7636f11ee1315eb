// Package config holds the road network settings of a deployment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration that reads and writes as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Widths              []int `json:"widths"`
	MaxHeightDifference int   `json:"maxHeightDifference"`
	MaxTerrainStability int   `json:"maxTerrainStability"`
	AveragingRadius     int   `json:"averagingRadius"`
	AllowArtificial     bool  `json:"allowArtificial"`
	AllowNatural        bool  `json:"allowNatural"`

	MaxConcurrentRoadGeneration int `json:"maxConcurrentRoadGeneration"`
	InitialLocatingCount        int `json:"initialLocatingCount"`
	MaxLocatingCount            int `json:"maxLocatingCount"`
	StructureSearchRadius       int `json:"structureSearchRadius"` // chunks

	StepBudget       int      `json:"stepBudget"`
	Workers          int      `json:"workers"`
	HeightCacheLimit int      `json:"heightCacheLimit"`
	ChunksPerLocate  int      `json:"chunksPerLocate"`
	LocateInterval   Duration `json:"locateInterval"`
	VillageClearance int      `json:"villageClearance"` // segments kept free at each road end

	ArtificialPalettes [][]string `json:"artificialPalettes"`
	NaturalPalettes    [][]string `json:"naturalPalettes"`
}

// Default returns the stock settings.
func Default() Config {
	return Config{
		Widths:                      []int{3, 5, 7},
		MaxHeightDifference:         5,
		MaxTerrainStability:         4,
		AveragingRadius:             1,
		AllowArtificial:             true,
		AllowNatural:                true,
		MaxConcurrentRoadGeneration: 3,
		InitialLocatingCount:        7,
		MaxLocatingCount:            15,
		StructureSearchRadius:       100,
		StepBudget:                  5000,
		Workers:                     7,
		HeightCacheLimit:            100_000,
		ChunksPerLocate:             300,
		LocateInterval:              Duration(10 * time.Second),
		VillageClearance:            60,
		ArtificialPalettes: [][]string{
			{"mud_bricks", "packed_mud"},
			{"polished_andesite", "stone_bricks", "cracked_stone_bricks"},
			{"stone_bricks", "mossy_stone_bricks", "cracked_stone_bricks"},
		},
		NaturalPalettes: [][]string{
			{"coarse_dirt", "rooted_dirt", "packed_mud"},
			{"cobblestone", "mossy_cobblestone", "gravel"},
			{"dirt_path", "coarse_dirt", "gravel"},
		},
	}
}

// Load reads a JSON file over the defaults. A missing file yields the
// defaults; fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.fillZero()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillZero replaces explicit zero values of sizing fields with defaults.
func (c *Config) fillZero() {
	d := Default()
	if c.StepBudget == 0 {
		c.StepBudget = d.StepBudget
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.HeightCacheLimit == 0 {
		c.HeightCacheLimit = d.HeightCacheLimit
	}
	if c.ChunksPerLocate == 0 {
		c.ChunksPerLocate = d.ChunksPerLocate
	}
	if len(c.Widths) == 0 {
		c.Widths = d.Widths
	}
	if len(c.ArtificialPalettes) == 0 {
		c.ArtificialPalettes = d.ArtificialPalettes
	}
	if len(c.NaturalPalettes) == 0 {
		c.NaturalPalettes = d.NaturalPalettes
	}
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	for _, w := range c.Widths {
		if w < 1 {
			return fmt.Errorf("%w: road width %d is below 1", ErrInvalid, w)
		}
	}
	switch {
	case len(c.Widths) == 0:
		return fmt.Errorf("%w: no road widths", ErrInvalid)
	case c.MaxHeightDifference < 0:
		return fmt.Errorf("%w: maxHeightDifference is negative", ErrInvalid)
	case c.MaxTerrainStability < 0:
		return fmt.Errorf("%w: maxTerrainStability is negative", ErrInvalid)
	case c.AveragingRadius < 0:
		return fmt.Errorf("%w: averagingRadius is negative", ErrInvalid)
	case c.MaxConcurrentRoadGeneration < 1:
		return fmt.Errorf("%w: maxConcurrentRoadGeneration must be at least 1", ErrInvalid)
	case c.InitialLocatingCount < 0:
		return fmt.Errorf("%w: initialLocatingCount is negative", ErrInvalid)
	case c.MaxLocatingCount < c.InitialLocatingCount:
		return fmt.Errorf("%w: maxLocatingCount %d is below initialLocatingCount %d",
			ErrInvalid, c.MaxLocatingCount, c.InitialLocatingCount)
	case c.StructureSearchRadius < 1:
		return fmt.Errorf("%w: structureSearchRadius must be at least 1", ErrInvalid)
	case c.StepBudget < 1:
		return fmt.Errorf("%w: stepBudget must be at least 1", ErrInvalid)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalid)
	case c.HeightCacheLimit < 1:
		return fmt.Errorf("%w: heightCacheLimit must be at least 1", ErrInvalid)
	case c.ChunksPerLocate < 1:
		return fmt.Errorf("%w: chunksPerLocate must be at least 1", ErrInvalid)
	case c.LocateInterval < 0:
		return fmt.Errorf("%w: locateInterval is negative", ErrInvalid)
	case c.VillageClearance < 0:
		return fmt.Errorf("%w: villageClearance is negative", ErrInvalid)
	}
	for _, p := range append(append([][]string{}, c.ArtificialPalettes...), c.NaturalPalettes...) {
		if len(p) == 0 {
			return fmt.Errorf("%w: empty palette", ErrInvalid)
		}
	}
	return nil
}
