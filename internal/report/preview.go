package report

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/SakshiRa/neurotk/internal/dataset"
	"github.com/SakshiRa/neurotk/internal/validate"
	"github.com/SakshiRa/neurotk/internal/volume"
	"golang.org/x/image/draw"
)

// RenderPreview extracts the middle axial slice of a readable volume,
// normalizes it to 8-bit grayscale and scales the longer edge down to
// maxSize pixels with bilinear interpolation.
func RenderPreview(h *volume.Handle, maxSize int) (image.Image, error) {
	if !h.Readable || len(h.Shape) < 3 {
		return nil, fmt.Errorf("volume %s has no renderable slice", h.Path)
	}
	data, err := h.Data()
	if err != nil {
		return nil, err
	}
	sh := h.SpatialShape()
	nx, ny, nz := sh[0], sh[1], sh[2]
	z := nz / 2

	// Window the slice to its finite min/max.
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := data[x+nx*(y+ny*z)]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	img := image.NewGray(image.Rect(0, 0, nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := data[x+nx*(y+ny*z)]
			g := 0.0
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				g = (v - lo) * scale
			}
			// Flip vertically so anterior renders up for RAS volumes.
			img.SetGray(x, ny-1-y, color.Gray{Y: uint8(g)})
		}
	}

	longest := nx
	if ny > longest {
		longest = ny
	}
	if maxSize <= 0 || longest <= maxSize {
		return img, nil
	}
	f := float64(maxSize) / float64(longest)
	dst := image.NewGray(image.Rect(0, 0, int(float64(nx)*f), int(float64(ny)*f)))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst, nil
}

// WritePreviews renders one preview PNG per readable image record
// into dir and returns the relative paths keyed by record name.
// Render failures are skipped: previews are best effort.
func WritePreviews(records []*validate.FileRecord, dir string, maxSize int) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create preview directory: %w", err)
	}
	out := make(map[string]string)
	for _, rec := range records {
		if rec.Image == nil || !rec.Image.Readable {
			continue
		}
		img, err := RenderPreview(rec.Image, maxSize)
		if err != nil {
			continue
		}
		name := dataset.Stem(rec.Name) + ".png"
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create preview %s: %w", path, err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return nil, fmt.Errorf("encode preview %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		out[rec.Name] = filepath.Join(filepath.Base(dir), name)
	}
	return out, nil
}
