package volume

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Image is an in-memory volume ready to be written as NIfTI-1.
// Data is x-fastest and must contain exactly the product of Shape
// elements.
type Image struct {
	Shape   [3]int
	Affine  *mat.Dense // 4x4 voxel-to-world
	Data    []float64
	Dtype   string // uint8, int8, int16, uint16, int32, float32, float64
	Descrip string
}

// WriteNIfTI writes img to path as a single-file NIfTI-1 volume,
// gzip-compressed when the path ends in .gz. The sform carries the
// affine; the spacing fields are filled from the affine column norms.
// Output is little-endian and fully determined by the input image.
func WriteNIfTI(path string, img *Image) error {
	for _, d := range img.Shape {
		// Dim fields are int16 on disk.
		if d < 1 || d > math.MaxInt16 {
			return fmt.Errorf("shape %v not representable in a NIfTI-1 header", img.Shape)
		}
	}
	n := img.Shape[0] * img.Shape[1] * img.Shape[2]
	if len(img.Data) != n {
		return fmt.Errorf("data length %d does not match shape %v", len(img.Data), img.Shape)
	}
	code, bitpix, err := niftiDtypeCode(img.Dtype)
	if err != nil {
		return err
	}
	if img.Affine == nil {
		return fmt.Errorf("nil affine")
	}
	if r, c := img.Affine.Dims(); r != 4 || c != 4 {
		return fmt.Errorf("affine is %dx%d, need 4x4", r, c)
	}

	hdr := niftiHeader{
		SizeofHdr: niftiHeaderSize,
		Regular:   'r',
		Datatype:  code,
		Bitpix:    bitpix,
		VoxOffset: niftiVoxOffset,
		SclSlope:  1,
		SformCode: 1,
		XyztUnits: 2, // millimeters
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	hdr.Dim[0] = 3
	for i := 0; i < 3; i++ {
		hdr.Dim[i+1] = int16(img.Shape[i])
	}
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}
	spacing := SpacingFromAffine(img.Affine)
	hdr.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		hdr.Pixdim[i+1] = float32(spacing[i])
	}
	copy(hdr.Descrip[:], img.Descrip)
	for j := 0; j < 4; j++ {
		hdr.SrowX[j] = float32(img.Affine.At(0, j))
		hdr.SrowY[j] = float32(img.Affine.At(1, j))
		hdr.SrowZ[j] = float32(img.Affine.At(2, j))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	var w io.Writer
	var gz *gzip.Writer
	buf := bufio.NewWriter(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(buf)
		w = gz
	} else {
		w = buf
	}

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	// Extension flag: no extensions present.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("write extension flag: %w", err)
	}
	if err := writeVoxels(w, img.Data, code); err != nil {
		return fmt.Errorf("write voxel data: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("finish gzip stream: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	ok = true
	return f.Close()
}

func writeVoxels(w io.Writer, data []float64, code int16) error {
	var scratch [8]byte
	for _, v := range data {
		var b []byte
		switch code {
		case niftiTypeUint8:
			scratch[0] = uint8(clampRound(v, 0, math.MaxUint8))
			b = scratch[:1]
		case niftiTypeInt8:
			scratch[0] = byte(int8(clampRound(v, math.MinInt8, math.MaxInt8)))
			b = scratch[:1]
		case niftiTypeInt16:
			binary.LittleEndian.PutUint16(scratch[:], uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
			b = scratch[:2]
		case niftiTypeUint16:
			binary.LittleEndian.PutUint16(scratch[:], uint16(clampRound(v, 0, math.MaxUint16)))
			b = scratch[:2]
		case niftiTypeInt32:
			binary.LittleEndian.PutUint32(scratch[:], uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
			b = scratch[:4]
		case niftiTypeFloat32:
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(float32(v)))
			b = scratch[:4]
		case niftiTypeFloat64:
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			b = scratch[:8]
		default:
			return fmt.Errorf("unsupported datatype code %d", code)
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func clampRound(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	return math.Max(lo, math.Min(hi, v))
}
