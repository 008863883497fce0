package volume

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Anatomical letter pairs per world axis, negative then positive
// direction: x grows toward the patient's Right, y toward Anterior,
// z toward Superior (RAS convention).
var axisLetters = [3][2]byte{
	{'L', 'R'},
	{'P', 'A'},
	{'I', 'S'},
}

// OrientationFromAffine derives the three-letter axis code from the
// rotation part of a 4x4 voxel-to-world affine. Each voxel axis maps
// to the world axis with the largest absolute direction cosine; two
// voxel axes claiming the same world axis means the orientation is
// not derivable.
func OrientationFromAffine(a *mat.Dense) (string, error) {
	if a == nil {
		return "", fmt.Errorf("nil affine")
	}
	r, c := a.Dims()
	if r < 3 || c < 3 {
		return "", fmt.Errorf("affine is %dx%d, need at least 3x3", r, c)
	}

	var code [3]byte
	claimed := [3]bool{}
	for j := 0; j < 3; j++ {
		best := -1
		bestAbs := 0.0
		for i := 0; i < 3; i++ {
			v := a.At(i, j)
			if !isFinite(v) {
				return "", fmt.Errorf("affine contains non-finite values")
			}
			if math.Abs(v) > bestAbs {
				bestAbs = math.Abs(v)
				best = i
			}
		}
		if best < 0 || bestAbs == 0 {
			return "", fmt.Errorf("affine column %d is zero", j)
		}
		if claimed[best] {
			return "", fmt.Errorf("affine maps two voxel axes to world axis %d", best)
		}
		claimed[best] = true
		if a.At(best, j) >= 0 {
			code[j] = axisLetters[best][1]
		} else {
			code[j] = axisLetters[best][0]
		}
	}
	return string(code[:]), nil
}

// ValidOrientationCode reports whether s names each anatomical axis
// exactly once (e.g. "RAS", "LPS", "PIR").
func ValidOrientationCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	s = strings.ToUpper(s)
	seen := [3]bool{}
	for i := 0; i < 3; i++ {
		axis, _, ok := letterAxis(s[i])
		if !ok || seen[axis] {
			return false
		}
		seen[axis] = true
	}
	return true
}

// letterAxis maps an orientation letter to its world axis index and
// sign (+1 for the positive direction letter).
func letterAxis(b byte) (axis, sign int, ok bool) {
	for i := 0; i < 3; i++ {
		if axisLetters[i][0] == b {
			return i, -1, true
		}
		if axisLetters[i][1] == b {
			return i, +1, true
		}
	}
	return 0, 0, false
}

// AxisMapping computes how to reindex voxel axes to turn a volume in
// orientation `from` into orientation `to`. perm[k] is the source
// axis feeding target axis k; flip[k] reverses that axis.
func AxisMapping(from, to string) (perm [3]int, flip [3]bool, err error) {
	if !ValidOrientationCode(from) {
		return perm, flip, fmt.Errorf("invalid orientation code %q", from)
	}
	if !ValidOrientationCode(to) {
		return perm, flip, fmt.Errorf("invalid orientation code %q", to)
	}
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	for k := 0; k < 3; k++ {
		tAxis, tSign, _ := letterAxis(to[k])
		found := false
		for j := 0; j < 3; j++ {
			sAxis, sSign, _ := letterAxis(from[j])
			if sAxis == tAxis {
				perm[k] = j
				flip[k] = sSign != tSign
				found = true
				break
			}
		}
		if !found {
			return perm, flip, fmt.Errorf("orientation %q has no axis for %c", from, to[k])
		}
	}
	return perm, flip, nil
}

// SpacingFromAffine returns the column norms of the rotation part,
// the physical step per voxel along each axis.
func SpacingFromAffine(a *mat.Dense) [3]float64 {
	var s [3]float64
	for j := 0; j < 3; j++ {
		s[j] = math.Hypot(math.Hypot(a.At(0, j), a.At(1, j)), a.At(2, j))
	}
	return s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
