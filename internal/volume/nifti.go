package volume

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// NIfTI-1 datatype codes.
const (
	niftiTypeUint8   = 2
	niftiTypeInt16   = 4
	niftiTypeInt32   = 8
	niftiTypeFloat32 = 16
	niftiTypeFloat64 = 64
	niftiTypeInt8    = 256
	niftiTypeUint16  = 512
)

const (
	niftiHeaderSize = 348
	niftiVoxOffset  = 352 // header + 4-byte extension flag

	// maxNIfTIVoxels bounds the declared element count so a hostile
	// header cannot drive the voxel loader into a huge allocation.
	maxNIfTIVoxels = 1 << 31
)

// niftiHeader mirrors the fixed 348-byte NIfTI-1 header layout.
// Field sizes match the on-disk encoding exactly so binary.Read and
// binary.Write map it without padding.
type niftiHeader struct {
	SizeofHdr      int32
	DataTypeUnused [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte
	Dim            [8]int16
	IntentP1       float32
	IntentP2       float32
	IntentP3       float32
	IntentCode     int16
	Datatype       int16
	Bitpix         int16
	SliceStart     int16
	Pixdim         [8]float32
	VoxOffset      float32
	SclSlope       float32
	SclInter       float32
	SliceEnd       int16
	SliceCode      byte
	XyztUnits      byte
	CalMax         float32
	CalMin         float32
	SliceDuration  float32
	Toffset        float32
	Glmax          int32
	Glmin          int32
	Descrip        [80]byte
	AuxFile        [24]byte
	QformCode      int16
	SformCode      int16
	QuaternB       float32
	QuaternC       float32
	QuaternD       float32
	QoffsetX       float32
	QoffsetY       float32
	QoffsetZ       float32
	SrowX          [4]float32
	SrowY          [4]float32
	SrowZ          [4]float32
	IntentName     [16]byte
	Magic          [4]byte
}

// NIfTIDecoder opens .nii and .nii.gz files.
type NIfTIDecoder struct{}

// CanDecode matches NIfTI files by extension.
func (d *NIfTIDecoder) CanDecode(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz")
}

// Open parses the header and returns a Handle with a lazy voxel
// loader. Only the 348-byte header is decoded here.
func (d *NIfTIDecoder) Open(path string) (*Handle, error) {
	hdr, order, err := readNIfTIHeader(path)
	if err != nil {
		return nil, err
	}

	ndim := int(hdr.Dim[0])
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("unsupported dimensionality %d", ndim)
	}
	shape := make([]int, ndim)
	total := int64(1)
	for i := 0; i < ndim; i++ {
		d := int(hdr.Dim[i+1])
		if d < 1 {
			return nil, fmt.Errorf("invalid dimension %d on axis %d", d, i)
		}
		total *= int64(d)
		if total > maxNIfTIVoxels {
			return nil, fmt.Errorf("declared shape %v exceeds %d voxels", hdr.Dim[1:ndim+1], int64(maxNIfTIVoxels))
		}
		shape[i] = d
	}

	dtype, err := niftiDtypeName(hdr.Datatype)
	if err != nil {
		return nil, err
	}

	affine := niftiAffine(hdr)
	spacing := [3]float64{
		float64(hdr.Pixdim[1]),
		float64(hdr.Pixdim[2]),
		float64(hdr.Pixdim[3]),
	}
	orientation, _ := OrientationFromAffine(affine) // left empty when underivable

	h := &Handle{
		Path:        path,
		Format:      "nifti",
		Shape:       shape,
		Spacing:     spacing,
		Affine:      affine,
		Orientation: orientation,
		Dtype:       dtype,
		Descrip:     cString(hdr.Descrip[:]),
		Readable:    true,
	}
	h.loader = func() ([]float64, error) {
		return readNIfTIData(path, hdr, order, h.NumVoxels())
	}
	return h, nil
}

// openNIfTIStream wraps the file in a gzip reader when the stream
// starts with the gzip magic, regardless of extension.
func openNIfTIStream(path string) (io.ReadCloser, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read magic: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, err
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gz, f, nil
	}
	return io.NopCloser(f), f, nil
}

func readNIfTIHeader(path string) (*niftiHeader, binary.ByteOrder, error) {
	r, f, err := openNIfTIStream(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	defer r.Close()

	raw := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	// sizeof_hdr doubles as the endianness probe.
	var hdr niftiHeader
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(raw[:4]) != niftiHeaderSize {
		if binary.BigEndian.Uint32(raw[:4]) != niftiHeaderSize {
			return nil, nil, fmt.Errorf("not a NIfTI-1 file: bad sizeof_hdr")
		}
		order = binary.BigEndian
	}
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, nil, fmt.Errorf("decode header: %w", err)
	}
	if m := hdr.Magic; !(m[0] == 'n' && (m[1] == '+' || m[1] == 'i') && m[2] == '1' && m[3] == 0) {
		return nil, nil, fmt.Errorf("not a NIfTI-1 file: bad magic %q", m[:])
	}
	if hdr.Magic[1] == 'i' {
		return nil, nil, fmt.Errorf("detached .hdr/.img pairs are not supported")
	}
	return &hdr, order, nil
}

func readNIfTIData(path string, hdr *niftiHeader, order binary.ByteOrder, n int) ([]float64, error) {
	r, f, err := openNIfTIStream(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer r.Close()

	offset := int64(hdr.VoxOffset)
	if offset < niftiHeaderSize {
		offset = niftiVoxOffset
	}
	if _, err := io.CopyN(io.Discard, r, offset); err != nil {
		return nil, fmt.Errorf("seek to voxel data: %w", err)
	}

	bytesPer := int(hdr.Bitpix) / 8
	if n <= 0 || bytesPer <= 0 {
		return nil, fmt.Errorf("invalid voxel count %d (bitpix %d)", n, hdr.Bitpix)
	}
	raw := make([]byte, n*bytesPer)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read %d voxels: %w", n, err)
	}

	out := make([]float64, n)
	switch hdr.Datatype {
	case niftiTypeUint8:
		for i := range out {
			out[i] = float64(raw[i])
		}
	case niftiTypeInt8:
		for i := range out {
			out[i] = float64(int8(raw[i]))
		}
	case niftiTypeInt16:
		for i := range out {
			out[i] = float64(int16(order.Uint16(raw[i*2:])))
		}
	case niftiTypeUint16:
		for i := range out {
			out[i] = float64(order.Uint16(raw[i*2:]))
		}
	case niftiTypeInt32:
		for i := range out {
			out[i] = float64(int32(order.Uint32(raw[i*4:])))
		}
	case niftiTypeFloat32:
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case niftiTypeFloat64:
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported datatype %d", hdr.Datatype)
	}

	// Header scaling applies to every stored value.
	slope := float64(hdr.SclSlope)
	inter := float64(hdr.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range out {
			out[i] = out[i]*slope + inter
		}
	}
	return out, nil
}

// niftiAffine builds the 4x4 voxel-to-world matrix, preferring the
// sform, falling back to the qform quaternion, then to a spacing
// diagonal as nibabel does.
func niftiAffine(hdr *niftiHeader) *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	a.Set(3, 3, 1)
	switch {
	case hdr.SformCode > 0:
		for j := 0; j < 4; j++ {
			a.Set(0, j, float64(hdr.SrowX[j]))
			a.Set(1, j, float64(hdr.SrowY[j]))
			a.Set(2, j, float64(hdr.SrowZ[j]))
		}
	case hdr.QformCode > 0:
		setQformAffine(a, hdr)
	default:
		a.Set(0, 0, float64(hdr.Pixdim[1]))
		a.Set(1, 1, float64(hdr.Pixdim[2]))
		a.Set(2, 2, float64(hdr.Pixdim[3]))
	}
	return a
}

// setQformAffine reconstructs the rotation from the stored unit
// quaternion (b,c,d with a derived from the unit constraint), scales
// by pixdim and applies the qfac sign on the third axis.
func setQformAffine(a *mat.Dense, hdr *niftiHeader) {
	b := float64(hdr.QuaternB)
	c := float64(hdr.QuaternC)
	d := float64(hdr.QuaternD)
	aa := 1 - b*b - c*c - d*d
	if aa < 0 {
		aa = 0
	}
	qa := math.Sqrt(aa)

	r := [3][3]float64{
		{qa*qa + b*b - c*c - d*d, 2 * (b*c - qa*d), 2 * (b*d + qa*c)},
		{2 * (b*c + qa*d), qa*qa + c*c - b*b - d*d, 2 * (c*d - qa*b)},
		{2 * (b*d - qa*c), 2 * (c*d + qa*b), qa*qa + d*d - b*b - c*c},
	}

	qfac := 1.0
	if hdr.Pixdim[0] < 0 {
		qfac = -1.0
	}
	spacing := [3]float64{
		float64(hdr.Pixdim[1]),
		float64(hdr.Pixdim[2]),
		qfac * float64(hdr.Pixdim[3]),
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, r[i][j]*spacing[j])
		}
	}
	a.Set(0, 3, float64(hdr.QoffsetX))
	a.Set(1, 3, float64(hdr.QoffsetY))
	a.Set(2, 3, float64(hdr.QoffsetZ))
}

func niftiDtypeName(code int16) (string, error) {
	switch code {
	case niftiTypeUint8:
		return "uint8", nil
	case niftiTypeInt8:
		return "int8", nil
	case niftiTypeInt16:
		return "int16", nil
	case niftiTypeUint16:
		return "uint16", nil
	case niftiTypeInt32:
		return "int32", nil
	case niftiTypeFloat32:
		return "float32", nil
	case niftiTypeFloat64:
		return "float64", nil
	}
	return "", fmt.Errorf("unsupported datatype code %d", code)
}

func niftiDtypeCode(name string) (code int16, bitpix int16, err error) {
	switch name {
	case "uint8":
		return niftiTypeUint8, 8, nil
	case "int8":
		return niftiTypeInt8, 8, nil
	case "int16":
		return niftiTypeInt16, 16, nil
	case "uint16":
		return niftiTypeUint16, 16, nil
	case "int32":
		return niftiTypeInt32, 32, nil
	case "float32":
		return niftiTypeFloat32, 32, nil
	case "float64":
		return niftiTypeFloat64, 64, nil
	}
	return 0, 0, fmt.Errorf("unsupported dtype %q", name)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
