package lib

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	VariantCamera           = "camera"
	VariantLidarCompensated = "lidar_compensated"
	VariantLidar            = "lidar"
)

var Variants = []string{VariantCamera, VariantLidarCompensated, VariantLidar}

var DatasetVersions = []string{"mini", "full"}

type Config struct {
	DataBase struct {
		DataRoot string `yaml:"dataroot"`
		Version  string `yaml:"version"`
	} `yaml:"database"`
	OutputBase struct {
		OutputRoot string `yaml:"outputroot"`
		Ledger     string `yaml:"ledger"`
		PlotPath   string `yaml:"plotpath"`
	} `yaml:"outputbase"`
	RenderBase struct {
		Variant          string              `yaml:"variant"`
		Anonymization    string              `yaml:"anonymization"`
		ProgressEvery    int                 `yaml:"progressevery"`
		ShowProgress     bool                `yaml:"showprogress"`
		BoxLineThickness int                 `yaml:"boxlinethickness"`
		MaskAlpha        float64             `yaml:"maskalpha"`
		LaneColor        [3]uint8            `yaml:"lanecolor"`
		EgoRoadColor     [3]uint8            `yaml:"egoroadcolor"`
		EgoMotionColor   [3]uint8            `yaml:"egomotioncolor"`
		EgoMotionRadius  int                 `yaml:"egomotionradius"`
		CategoryColors   map[string][3]uint8 `yaml:"categorycolors"`
		DefaultColor     [3]uint8            `yaml:"defaultcolor"`
	} `yaml:"renderbase"`
	LidarBase struct {
		NumBefore   int     `yaml:"numbefore"`
		NumAfter    int     `yaml:"numafter"`
		PointRadius int     `yaml:"pointradius"`
		MaxDepth    float64 `yaml:"maxdepth"`
	} `yaml:"lidarbase"`
	ResizeBase struct {
		Width   int    `yaml:"width"`
		Quality int    `yaml:"quality"`
		Source  string `yaml:"source"`
		Target  string `yaml:"target"`
	} `yaml:"resizebase"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.DataBase.DataRoot = "../data_zod"
	cfg.DataBase.Version = "mini"
	cfg.OutputBase.OutputRoot = "output"
	cfg.RenderBase.Variant = VariantCamera
	cfg.RenderBase.Anonymization = string(AnonymizationDNAT)
	cfg.RenderBase.ProgressEvery = 10
	cfg.RenderBase.ShowProgress = true
	cfg.RenderBase.BoxLineThickness = 5
	cfg.RenderBase.MaskAlpha = 0.5
	cfg.RenderBase.LaneColor = [3]uint8{100, 100, 0}
	cfg.RenderBase.EgoRoadColor = [3]uint8{100, 0, 100}
	cfg.RenderBase.EgoMotionColor = [3]uint8{255, 0, 0}
	cfg.RenderBase.EgoMotionRadius = 5
	cfg.RenderBase.CategoryColors = DefaultCategoryColors()
	cfg.RenderBase.DefaultColor = [3]uint8{0, 0, 0}
	cfg.LidarBase.NumBefore = 1
	cfg.LidarBase.NumAfter = 1
	cfg.LidarBase.PointRadius = 2
	cfg.LidarBase.MaxDepth = 100
	cfg.ResizeBase.Width = 1024
	cfg.ResizeBase.Quality = 100
	cfg.ResizeBase.Source = "output"
	cfg.ResizeBase.Target = "examples"
	return cfg
}

// GetConfig reads a yaml file over the defaults, so a file only needs the
// keys it changes.
func GetConfig(configRoot string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configRoot)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", configRoot, err)
	}
	return config, config.Validate()
}

func (cfg Config) Validate() error {
	if cfg.DataBase.DataRoot == "" {
		return fmt.Errorf("config: database.dataroot is empty")
	}
	if !IsContain(DatasetVersions, cfg.DataBase.Version) {
		return fmt.Errorf("config: database.version %q not in %v", cfg.DataBase.Version, DatasetVersions)
	}
	if !IsContain(Variants, cfg.RenderBase.Variant) {
		return fmt.Errorf("config: renderbase.variant %q not in %v", cfg.RenderBase.Variant, Variants)
	}
	if _, err := ParseAnonymization(cfg.RenderBase.Anonymization); err != nil {
		return fmt.Errorf("config: renderbase.anonymization: %w", err)
	}
	if cfg.RenderBase.ProgressEvery < 1 {
		return fmt.Errorf("config: renderbase.progressevery must be positive")
	}
	if cfg.RenderBase.MaskAlpha < 0 || cfg.RenderBase.MaskAlpha > 1 {
		return fmt.Errorf("config: renderbase.maskalpha %v not in [0, 1]", cfg.RenderBase.MaskAlpha)
	}
	if cfg.LidarBase.NumBefore < 0 || cfg.LidarBase.NumAfter < 0 {
		return fmt.Errorf("config: lidarbase sweep counts must not be negative")
	}
	if cfg.LidarBase.MaxDepth <= 0 {
		return fmt.Errorf("config: lidarbase.maxdepth must be positive")
	}
	return cfg.ValidateResize()
}

// ValidateResize checks only the resize block.
func (cfg Config) ValidateResize() error {
	if cfg.ResizeBase.Width < 1 {
		return fmt.Errorf("config: resizebase.width must be positive")
	}
	if cfg.ResizeBase.Quality < 1 || cfg.ResizeBase.Quality > 100 {
		return fmt.Errorf("config: resizebase.quality %d not in [1, 100]", cfg.ResizeBase.Quality)
	}
	return nil
}

// OutputDir is where a variant's frames are written.
func (cfg Config) OutputDir(variant string) string {
	return filepath.Join(cfg.OutputBase.OutputRoot, variant)
}
