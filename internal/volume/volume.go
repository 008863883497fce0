// Package volume reads 3D medical volumes and exposes their header
// geometry (shape, spacing, affine, anatomical orientation) without
// forcing a full voxel decode. Concrete decoders exist per on-disk
// format and are selected by filename extension and magic bytes.
package volume

import (
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Handle is an immutable descriptor of one opened volume. Geometry
// fields are only meaningful when Readable is true. Voxel data is
// loaded lazily through Data and can be released with DropData to
// bound memory while scanning large datasets.
type Handle struct {
	Path        string
	Format      string     // "nifti" or "dicom"
	Shape       []int      // full on-disk shape, >= 3 dims
	Spacing     [3]float64 // mm between voxel centers, spatial axes
	Affine      *mat.Dense // 4x4 voxel-to-world (RAS) matrix
	Orientation string     // axis codes, e.g. "RAS"; "" when underivable
	Dtype       string
	Descrip     string // free-text header description, NIfTI only
	Readable    bool
	Err         string // decode failure reason when !Readable

	data   []float64
	loader func() ([]float64, error)
}

// SpatialShape returns the first three dimensions.
func (h *Handle) SpatialShape() [3]int {
	var s [3]int
	for i := 0; i < 3 && i < len(h.Shape); i++ {
		s[i] = h.Shape[i]
	}
	return s
}

// Channels returns the product of all dimensions beyond the third,
// or 1 for a plain 3D volume.
func (h *Handle) Channels() int {
	if len(h.Shape) <= 3 {
		return 1
	}
	n := 1
	for _, d := range h.Shape[3:] {
		n *= d
	}
	return n
}

// NumVoxels returns the total element count across all dimensions.
func (h *Handle) NumVoxels() int {
	if len(h.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range h.Shape {
		n *= d
	}
	return n
}

// Data returns the voxel values as float64 in x-fastest order,
// decoding them on first use. The decoded slice is cached until
// DropData is called.
func (h *Handle) Data() ([]float64, error) {
	if h.data != nil {
		return h.data, nil
	}
	if h.loader == nil {
		return nil, fmt.Errorf("volume %s: no voxel data available", h.Path)
	}
	data, err := h.loader()
	if err != nil {
		return nil, fmt.Errorf("load voxel data for %s: %w", h.Path, err)
	}
	h.data = data
	return h.data, nil
}

// DropData releases the cached voxel buffer. Subsequent Data calls
// re-decode from disk.
func (h *Handle) DropData() {
	h.data = nil
}

// Decoder opens one on-disk volume format.
type Decoder interface {
	// CanDecode reports whether the file looks like this decoder's
	// format, judged by name and magic bytes only.
	CanDecode(path string) bool
	// Open parses the file header and returns a readable Handle.
	Open(path string) (*Handle, error)
}

var decoders = []Decoder{
	&NIfTIDecoder{},
	&DICOMDecoder{},
}

// IsVolumeFile reports whether the filename matches a supported
// volume format.
func IsVolumeFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".nii") ||
		strings.HasSuffix(lower, ".nii.gz") ||
		strings.HasSuffix(lower, ".dcm")
}

// Open attempts each registered decoder in turn. It never fails:
// a file no decoder accepts, or that fails to parse, comes back as a
// Handle with Readable=false and the failure reason in Err. The
// source file is never written to.
func Open(path string) *Handle {
	if _, err := os.Stat(path); err != nil {
		return unreadable(path, err)
	}
	for _, d := range decoders {
		if !d.CanDecode(path) {
			continue
		}
		h, err := d.Open(path)
		if err != nil {
			return unreadable(path, err)
		}
		return h
	}
	return unreadable(path, fmt.Errorf("unsupported volume format"))
}

func unreadable(path string, err error) *Handle {
	return &Handle{Path: path, Readable: false, Err: err.Error()}
}
