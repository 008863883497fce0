package volume

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/mat"
)

// DICOMDecoder opens single-file DICOM volumes (one or more frames in
// one file). Geometry comes from the standard patient-space tags and
// is converted from DICOM LPS to RAS world coordinates so that
// orientation codes and affines compare directly with NIfTI inputs.
type DICOMDecoder struct{}

// CanDecode matches by .dcm extension or the DICM magic at offset 128.
func (d *DICOMDecoder) CanDecode(path string) bool {
	if strings.HasSuffix(strings.ToLower(path), ".dcm") {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var preamble [132]byte
	if _, err := f.ReadAt(preamble[:], 0); err != nil {
		return false
	}
	return string(preamble[128:132]) == "DICM"
}

// Open parses the dataset with pixel data skipped; voxels decode
// lazily through a second, full parse.
func (d *DICOMDecoder) Open(path string) (*Handle, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parse DICOM: %w", err)
	}

	rows, err := dicomInt(&ds, tag.Rows)
	if err != nil {
		return nil, err
	}
	cols, err := dicomInt(&ds, tag.Columns)
	if err != nil {
		return nil, err
	}
	frames := 1
	if n, err := dicomInt(&ds, tag.NumberOfFrames); err == nil && n > 0 {
		frames = n
	}

	pixelSpacing, err := dicomFloats(&ds, tag.PixelSpacing, 2)
	if err != nil {
		return nil, err
	}
	sliceStep := 1.0
	if v, err := dicomFloats(&ds, tag.SpacingBetweenSlices, 1); err == nil {
		sliceStep = v[0]
	} else if v, err := dicomFloats(&ds, tag.SliceThickness, 1); err == nil {
		sliceStep = v[0]
	}

	orient, err := dicomFloats(&ds, tag.ImageOrientationPatient, 6)
	if err != nil {
		return nil, err
	}
	position := []float64{0, 0, 0}
	if v, err := dicomFloats(&ds, tag.ImagePositionPatient, 3); err == nil {
		position = v
	}

	// PixelSpacing is (row spacing, column spacing): the first IOP
	// triplet is the row direction, walked as the column index grows.
	rowDir := orient[:3]
	colDir := orient[3:]
	sliceDir := cross3(rowDir, colDir)

	affine := mat.NewDense(4, 4, nil)
	affine.Set(3, 3, 1)
	for i := 0; i < 3; i++ {
		// LPS -> RAS: negate x and y.
		sign := 1.0
		if i < 2 {
			sign = -1.0
		}
		affine.Set(i, 0, sign*rowDir[i]*pixelSpacing[1])
		affine.Set(i, 1, sign*colDir[i]*pixelSpacing[0])
		affine.Set(i, 2, sign*sliceDir[i]*sliceStep)
		affine.Set(i, 3, sign*position[i])
	}

	spacing := [3]float64{pixelSpacing[1], pixelSpacing[0], sliceStep}
	orientation, _ := OrientationFromAffine(affine)

	h := &Handle{
		Path:        path,
		Format:      "dicom",
		Shape:       []int{cols, rows, frames},
		Spacing:     spacing,
		Affine:      affine,
		Orientation: orientation,
		Dtype:       "uint16",
		Readable:    true,
	}
	h.loader = func() ([]float64, error) {
		return readDICOMData(path, cols, rows, frames)
	}
	return h, nil
}

// readDICOMData decodes all frames to float64 in x-fastest order,
// x being the column index.
func readDICOMData(path string, cols, rows, frames int) ([]float64, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse DICOM pixel data: %w", err)
	}
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no PixelData element: %w", err)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected PixelData value type")
	}
	if len(info.Frames) < frames {
		frames = len(info.Frames)
	}

	out := make([]float64, cols*rows*frames)
	for k := 0; k < frames; k++ {
		img, err := info.Frames[k].GetImage()
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", k, err)
		}
		for j := 0; j < rows; j++ {
			for i := 0; i < cols; i++ {
				g := color.Gray16Model.Convert(img.At(i, j)).(color.Gray16)
				out[i+cols*(j+rows*k)] = float64(g.Y)
			}
		}
	}
	return out, nil
}

func dicomInt(ds *dicom.Dataset, t tag.Tag) (int, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("missing tag %v: %w", t, err)
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], nil
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(v[0]))
			if err == nil {
				return n, nil
			}
		}
	}
	return 0, fmt.Errorf("tag %v has no integer value", t)
}

func dicomFloats(ds *dicom.Dataset, t tag.Tag, want int) ([]float64, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("missing tag %v: %w", t, err)
	}
	var out []float64
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		out = v
	case []string:
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("tag %v: parse %q: %w", t, s, err)
			}
			out = append(out, f)
		}
	default:
		return nil, fmt.Errorf("tag %v has unexpected value type", t)
	}
	if len(out) < want {
		return nil, fmt.Errorf("tag %v has %d values, want %d", t, len(out), want)
	}
	return out[:want], nil
}

func cross3(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
