package preprocess

import (
	"math"
	"testing"

	"github.com/SakshiRa/neurotk/internal/config"
	"github.com/SakshiRa/neurotk/internal/volume"
	"gonum.org/v1/gonum/mat"
)

func diagAffine(spacing [3]float64) *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, i, spacing[i])
	}
	a.Set(3, 3, 1)
	return a
}

func sequentialData(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return data
}

func TestReorientIdentity(t *testing.T) {
	shape := [3]int{2, 3, 4}
	data := sequentialData(24)
	affine := diagAffine([3]float64{1, 1, 1})

	newShape, newData, newAffine, err := Reorient(shape, data, affine, "RAS", "RAS")
	if err != nil {
		t.Fatalf("Reorient failed: %v", err)
	}
	if newShape != shape {
		t.Errorf("shape changed: %v", newShape)
	}
	for i := range data {
		if newData[i] != data[i] {
			t.Fatalf("voxel %d changed", i)
		}
	}
	if code, _ := volume.OrientationFromAffine(newAffine); code != "RAS" {
		t.Errorf("orientation = %q", code)
	}
}

func TestReorientLPSToRAS(t *testing.T) {
	shape := [3]int{2, 2, 2}
	data := sequentialData(8)
	// LPS: x and y columns negated.
	affine := diagAffine([3]float64{1, 1, 1})
	affine.Set(0, 0, -1)
	affine.Set(1, 1, -1)

	newShape, newData, newAffine, err := Reorient(shape, data, affine, "LPS", "RAS")
	if err != nil {
		t.Fatalf("Reorient failed: %v", err)
	}
	if newShape != shape {
		t.Errorf("flips must not change the shape, got %v", newShape)
	}
	if code, err := volume.OrientationFromAffine(newAffine); err != nil || code != "RAS" {
		t.Errorf("orientation = %q (%v), want RAS", code, err)
	}
	// Voxel (0,0,0) in the new grid is (1,1,0) in the old one.
	if newData[0] != data[1+2*1] {
		t.Errorf("flip mapping wrong: got %g", newData[0])
	}
	// Every value survives exactly once.
	seen := map[float64]int{}
	for _, v := range newData {
		seen[v]++
	}
	for _, v := range data {
		if seen[v] != 1 {
			t.Fatalf("value %g appears %d times", v, seen[v])
		}
	}
}

func TestReorientPermutation(t *testing.T) {
	shape := [3]int{2, 3, 4}
	data := sequentialData(24)
	// Axes are (A,S,R): world x lives on voxel axis 2.
	affine := mat.NewDense(4, 4, []float64{
		0, 0, 1, 0,
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	})

	newShape, _, newAffine, err := Reorient(shape, data, affine, "ASR", "RAS")
	if err != nil {
		t.Fatalf("Reorient failed: %v", err)
	}
	if newShape != [3]int{4, 2, 3} {
		t.Errorf("shape = %v, want [4 2 3]", newShape)
	}
	if code, _ := volume.OrientationFromAffine(newAffine); code != "RAS" {
		t.Errorf("orientation = %q, want RAS", code)
	}
}

func TestResampleSpacing(t *testing.T) {
	shape := [3]int{8, 8, 4}
	data := sequentialData(8 * 8 * 4)
	affine := diagAffine([3]float64{0.5, 0.5, 2.0})

	newShape, newData, newAffine, err := Resample(shape, data, affine, [3]float64{1, 1, 1}, config.InterpLinear)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if newShape != [3]int{4, 4, 8} {
		t.Errorf("shape = %v, want [4 4 8]", newShape)
	}
	if len(newData) != 4*4*8 {
		t.Errorf("data length = %d", len(newData))
	}
	spacing := volume.SpacingFromAffine(newAffine)
	for i := 0; i < 3; i++ {
		if math.Abs(spacing[i]-1) > 1e-3 {
			t.Errorf("spacing[%d] = %g, want 1", i, spacing[i])
		}
	}
}

func TestResampleIdentityIsExact(t *testing.T) {
	shape := [3]int{4, 4, 4}
	data := sequentialData(64)
	affine := diagAffine([3]float64{1, 1, 1})

	_, newData, _, err := Resample(shape, data, affine, [3]float64{1, 1, 1}, config.InterpLinear)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	for i := range data {
		if newData[i] != data[i] {
			t.Fatalf("identity resample changed voxel %d: %g vs %g", i, newData[i], data[i])
		}
	}
}

func TestResampleDeterministic(t *testing.T) {
	shape := [3]int{5, 5, 5}
	data := sequentialData(125)
	affine := diagAffine([3]float64{0.7, 0.7, 1.3})

	_, first, _, err := Resample(shape, data, affine, [3]float64{1, 1, 1}, config.InterpLinear)
	if err != nil {
		t.Fatal(err)
	}
	_, second, _, err := Resample(shape, data, affine, [3]float64{1, 1, 1}, config.InterpLinear)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("resample is not deterministic at voxel %d", i)
		}
	}
}

func TestResampleNearestPreservesLabels(t *testing.T) {
	shape := [3]int{6, 6, 6}
	data := make([]float64, 216)
	for i := range data {
		data[i] = float64(i % 4) // labels 0..3
	}
	affine := diagAffine([3]float64{0.5, 0.5, 0.5})

	_, newData, _, err := Resample(shape, data, affine, [3]float64{1, 1, 1}, config.InterpNearest)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	for i, v := range newData {
		if v != math.Trunc(v) || v < 0 || v > 3 {
			t.Fatalf("voxel %d = %g is not an input label value", i, v)
		}
	}
}

func TestResampleRejectsBadInput(t *testing.T) {
	shape := [3]int{2, 2, 2}
	data := sequentialData(8)
	affine := diagAffine([3]float64{1, 1, 1})

	if _, _, _, err := Resample(shape, data, affine, [3]float64{1, 0, 1}, config.InterpLinear); err == nil {
		t.Error("zero target spacing should fail")
	}
	if _, _, _, err := Resample(shape, data, affine, [3]float64{1, 1, 1}, "cubic"); err == nil {
		t.Error("unknown kernel should fail")
	}
}
