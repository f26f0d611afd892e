package lib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

func IsContain(items []string, item string) bool {
	for _, eachItem := range items {
		if eachItem == item {
			return true
		}
	}
	return false
}

func MaxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func MinInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// ParseFrameID converts a frame identifier to the integer used in output
// filenames.
func ParseFrameID(frameID string) (int, error) {
	x, err := strconv.Atoi(strings.TrimSpace(frameID))
	if err != nil {
		return 0, fmt.Errorf("frame id %q: %w", frameID, err)
	}
	if x < 0 {
		return 0, fmt.Errorf("frame id %q: negative", frameID)
	}
	return x, nil
}

// FrameFilename is "{prefix}_{id:06d}.png".
func FrameFilename(prefix string, frameID string) (string, error) {
	x, err := ParseFrameID(frameID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%06d.png", prefix, x), nil
}

func ReadJsonFile(fname string, x interface{}) error {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes, x); err != nil {
		return fmt.Errorf("parse %s: %w", fname, err)
	}
	return nil
}

func SaveJsonFile(pathName string, x interface{}) error {
	jsondata, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pathName), 0755); err != nil {
		return err
	}
	return os.WriteFile(pathName, jsondata, 0644)
}

func SaveYaml(config Config, save_path string) error {
	yamlData, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(save_path, yamlData, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// hasImageExt matches .png, .jpg and .jpeg in any case.
func hasImageExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
