// Package preprocess applies deterministic spatial transforms to
// volumes: anatomical reorientation (a pure permutation/flip of the
// voxel grid) followed by resampling to a target spacing. Outputs are
// written as new NIfTI files; source files are never touched.
package preprocess

import (
	"fmt"

	"github.com/SakshiRa/neurotk/internal/volume"
	"gonum.org/v1/gonum/mat"
)

// Reorient permutes and flips the voxel grid so the volume's axis
// codes become `to`. No interpolation happens; every voxel value is
// preserved. The returned affine maps the new grid to the same world
// coordinates as before.
func Reorient(shape [3]int, data []float64, affine *mat.Dense, from, to string) ([3]int, []float64, *mat.Dense, error) {
	perm, flip, err := volume.AxisMapping(from, to)
	if err != nil {
		return shape, nil, nil, err
	}

	var newShape [3]int
	for k := 0; k < 3; k++ {
		newShape[k] = shape[perm[k]]
	}

	newData := make([]float64, len(data))
	var old [3]int
	for n2 := 0; n2 < newShape[2]; n2++ {
		for n1 := 0; n1 < newShape[1]; n1++ {
			for n0 := 0; n0 < newShape[0]; n0++ {
				n := [3]int{n0, n1, n2}
				for k := 0; k < 3; k++ {
					idx := n[k]
					if flip[k] {
						idx = newShape[k] - 1 - idx
					}
					old[perm[k]] = idx
				}
				newData[n0+newShape[0]*(n1+newShape[1]*n2)] =
					data[old[0]+shape[0]*(old[1]+shape[1]*old[2])]
			}
		}
	}

	// T maps new voxel indices back to old ones; composing keeps the
	// world position of every voxel unchanged.
	t := mat.NewDense(4, 4, nil)
	t.Set(3, 3, 1)
	for k := 0; k < 3; k++ {
		if flip[k] {
			t.Set(perm[k], k, -1)
			t.Set(perm[k], 3, float64(shape[perm[k]]-1))
		} else {
			t.Set(perm[k], k, 1)
		}
	}
	newAffine := mat.NewDense(4, 4, nil)
	newAffine.Mul(affine, t)

	return newShape, newData, newAffine, nil
}

// checkSpatial rejects volumes preprocessing cannot handle.
func checkSpatial(h *volume.Handle) error {
	if len(h.Shape) != 3 {
		return fmt.Errorf("expected a 3D volume, got %d dimensions", len(h.Shape))
	}
	if h.Orientation == "" {
		return fmt.Errorf("orientation not derivable from affine")
	}
	return nil
}
