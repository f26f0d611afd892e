package lib

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
)

// TargetSize caps width at maxWidth and keeps the aspect ratio.
func TargetSize(width, height, maxWidth int) (int, int) {
	if width <= maxWidth {
		return width, height
	}
	h := int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
	return maxWidth, MaxInt(h, 1)
}

// ResizeImage returns img scaled down with Lanczos if it is wider than
// maxWidth, otherwise img itself. The bool reports whether it was scaled.
func ResizeImage(img image.Image, maxWidth int) (image.Image, bool) {
	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), maxWidth)
	if w == b.Dx() && h == b.Dy() {
		return img, false
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), true
}

type ResizeSummary struct {
	Resized   int
	Optimized int
	Failed    int
}

type Resizer struct {
	Source   string
	Target   string
	MaxWidth int
	Quality  int
}

func NewResizer(cfg Config) *Resizer {
	return &Resizer{
		Source:   cfg.ResizeBase.Source,
		Target:   cfg.ResizeBase.Target,
		MaxWidth: cfg.ResizeBase.Width,
		Quality:  cfg.ResizeBase.Quality,
	}
}

// Run mirrors every immediate subfolder of Source into Target with width
// capped images. Files directly under Source and deeper folders are ignored.
func (r *Resizer) Run() (ResizeSummary, error) {
	var summary ResizeSummary
	info, err := os.Stat(r.Source)
	if err != nil {
		return summary, fmt.Errorf("source %s: %w", r.Source, err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("source %s is not a directory", r.Source)
	}
	if err := os.MkdirAll(r.Target, 0755); err != nil {
		return summary, fmt.Errorf("create target: %w", err)
	}

	entries, err := os.ReadDir(r.Source)
	if err != nil {
		return summary, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := r.resizeFolder(entry.Name(), &summary); err != nil {
			return summary, err
		}
	}
	log.Printf("[Resize] %d resized, %d optimized, %d failed", summary.Resized, summary.Optimized, summary.Failed)
	return summary, nil
}

func (r *Resizer) resizeFolder(name string, summary *ResizeSummary) error {
	srcDir := filepath.Join(r.Source, name)
	dstDir := filepath.Join(r.Target, name)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dstDir, err)
	}
	files, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", srcDir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	for _, f := range files {
		if f.IsDir() || !hasImageExt(f.Name()) {
			continue
		}
		src := filepath.Join(srcDir, f.Name())
		dst := filepath.Join(dstDir, f.Name())
		resized, err := r.resizeFile(src, dst)
		if err != nil {
			log.Printf("[Resize] Error processing %s: %v", src, err)
			summary.Failed++
			continue
		}
		if resized {
			log.Printf("[Resize] Resized: %s", dst)
			summary.Resized++
		} else {
			log.Printf("[Resize] Optimized: %s", dst)
			summary.Optimized++
		}
	}
	return nil
}

func (r *Resizer) resizeFile(src, dst string) (bool, error) {
	img, err := imaging.Open(src)
	if err != nil {
		return false, err
	}
	out, resized := ResizeImage(img, r.MaxWidth)
	err = imaging.Save(out, dst,
		imaging.JPEGQuality(r.Quality),
		imaging.PNGCompressionLevel(png.BestCompression),
	)
	if err != nil {
		return false, err
	}
	return resized, nil
}
