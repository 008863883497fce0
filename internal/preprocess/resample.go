package preprocess

import (
	"fmt"
	"math"

	"github.com/SakshiRa/neurotk/internal/config"
	"github.com/SakshiRa/neurotk/internal/volume"
	"gonum.org/v1/gonum/mat"
)

// Resample interpolates the volume onto a grid with the target
// spacing. The affine's direction cosines are kept; only the column
// scales change, so the output encodes the target spacing exactly.
// kernel is config.InterpLinear (trilinear) or config.InterpNearest.
// The result is a pure function of the inputs.
func Resample(shape [3]int, data []float64, affine *mat.Dense, target [3]float64, kernel string) ([3]int, []float64, *mat.Dense, error) {
	if kernel != config.InterpLinear && kernel != config.InterpNearest {
		return shape, nil, nil, fmt.Errorf("unknown interpolation kernel %q", kernel)
	}
	current := volume.SpacingFromAffine(affine)
	for i := 0; i < 3; i++ {
		if current[i] <= 0 || target[i] <= 0 {
			return shape, nil, nil, fmt.Errorf("non-positive spacing (current %v, target %v)", current, target)
		}
	}

	var newShape [3]int
	var step [3]float64 // source voxels advanced per output voxel
	for i := 0; i < 3; i++ {
		newShape[i] = int(math.Round(float64(shape[i]) * current[i] / target[i]))
		if newShape[i] < 1 {
			newShape[i] = 1
		}
		step[i] = target[i] / current[i]
	}

	newData := make([]float64, newShape[0]*newShape[1]*newShape[2])
	at := func(x, y, z int) float64 {
		return data[x+shape[0]*(y+shape[1]*z)]
	}

	idx := 0
	for z := 0; z < newShape[2]; z++ {
		sz := float64(z) * step[2]
		for y := 0; y < newShape[1]; y++ {
			sy := float64(y) * step[1]
			for x := 0; x < newShape[0]; x++ {
				sx := float64(x) * step[0]
				if kernel == config.InterpNearest {
					newData[idx] = at(
						clampIndex(int(math.Round(sx)), shape[0]),
						clampIndex(int(math.Round(sy)), shape[1]),
						clampIndex(int(math.Round(sz)), shape[2]),
					)
				} else {
					newData[idx] = trilinear(at, shape, sx, sy, sz)
				}
				idx++
			}
		}
	}

	// Rescale affine columns to the target spacing; the origin stays.
	newAffine := mat.NewDense(4, 4, nil)
	newAffine.CloneFrom(affine)
	for j := 0; j < 3; j++ {
		scale := target[j] / current[j]
		for i := 0; i < 3; i++ {
			newAffine.Set(i, j, affine.At(i, j)*scale)
		}
	}

	return newShape, newData, newAffine, nil
}

func trilinear(at func(x, y, z int) float64, shape [3]int, sx, sy, sz float64) float64 {
	x0 := clampIndex(int(math.Floor(sx)), shape[0])
	y0 := clampIndex(int(math.Floor(sy)), shape[1])
	z0 := clampIndex(int(math.Floor(sz)), shape[2])
	x1 := clampIndex(x0+1, shape[0])
	y1 := clampIndex(y0+1, shape[1])
	z1 := clampIndex(z0+1, shape[2])

	fx := clampFrac(sx - float64(x0))
	fy := clampFrac(sy - float64(y0))
	fz := clampFrac(sz - float64(z0))

	c000 := at(x0, y0, z0)
	c100 := at(x1, y0, z0)
	c010 := at(x0, y1, z0)
	c110 := at(x1, y1, z0)
	c001 := at(x0, y0, z1)
	c101 := at(x1, y0, z1)
	c011 := at(x0, y1, z1)
	c111 := at(x1, y1, z1)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy

	return c0*(1-fz) + c1*fz
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clampFrac(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
