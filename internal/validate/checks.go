package validate

import (
	"math"

	"github.com/SakshiRa/neurotk/internal/config"
	"github.com/SakshiRa/neurotk/internal/dataset"
	"github.com/SakshiRa/neurotk/internal/volume"
	"gonum.org/v1/gonum/mat"
)

// FileRecord is the immutable result of checking one dataset entry.
// Image and Label stay attached so downstream consumers (stats,
// previews, preprocessing) can reuse the opened handles; call
// ReleaseData once the record has been folded into a report.
type FileRecord struct {
	Name    string
	Image   *volume.Handle
	Label   *volume.Handle
	Issues  []IssueCode
	Pairing dataset.PairingStatus
}

// HasIssue reports whether the record carries the given code.
func (r *FileRecord) HasIssue(code IssueCode) bool {
	for _, c := range r.Issues {
		if c == code {
			return true
		}
	}
	return false
}

// ReleaseData drops cached voxel buffers on both handles.
func (r *FileRecord) ReleaseData() {
	if r.Image != nil {
		r.Image.DropData()
	}
	if r.Label != nil {
		r.Label.DropData()
	}
}

func (r *FileRecord) addIssue(code IssueCode) {
	if !r.HasIssue(code) {
		r.Issues = append(r.Issues, code)
	}
}

// Checker runs the ordered per-file check sequence. WithVoxelChecks
// enables checks that need the voxel data (NaN scan, empty-label
// detection); header-only runs skip them. LabelsSupplied records
// whether the run had a label directory at all: without one,
// pairing issues are suppressed dataset-wide rather than reported
// per file.
type Checker struct {
	Cfg             *config.Config
	WithVoxelChecks bool
	LabelsSupplied  bool
}

// NewChecker returns a Checker with voxel-level checks enabled.
func NewChecker(cfg *config.Config, labelsSupplied bool) *Checker {
	return &Checker{Cfg: cfg, WithVoxelChecks: true, LabelsSupplied: labelsSupplied}
}

// Check opens the entry's files and runs the check chain:
// readability, shape, spacing, affine, orientation, then label
// agreement and label foreground when a label exists. Each failed
// check appends exactly one IssueCode; an unreadable image
// short-circuits everything downstream. Reads only, no writes.
func (c *Checker) Check(e dataset.Entry) *FileRecord {
	rec := &FileRecord{Name: e.Name, Pairing: e.Status}
	rec.Issues = []IssueCode{}

	if e.Status == dataset.LabelOnly {
		rec.Label = volume.Open(e.LabelPath)
		rec.addIssue(IssueImageMissing)
		return rec
	}

	rec.Image = volume.Open(e.ImagePath)
	if !rec.Image.Readable {
		rec.addIssue(IssueUnreadable)
		// Geometry checks are unknowable; pairing is still a fact.
		if c.LabelsSupplied && e.LabelPath == "" {
			rec.addIssue(IssueLabelMissing)
		}
		return rec
	}

	c.checkGeometry(rec)

	if c.LabelsSupplied {
		if e.LabelPath == "" {
			rec.addIssue(IssueLabelMissing)
		} else {
			rec.Label = volume.Open(e.LabelPath)
			c.checkLabel(rec)
		}
	}

	if c.WithVoxelChecks {
		c.checkVoxels(rec)
	}
	return rec
}

func (c *Checker) checkGeometry(rec *FileRecord) {
	img := rec.Image

	shapeOK := len(img.Shape) >= 3
	for _, d := range img.SpatialShape() {
		if d <= 0 {
			shapeOK = false
		}
	}
	if !shapeOK {
		rec.addIssue(IssueShapeInvalid)
	}

	spacingOK := true
	for _, s := range img.Spacing {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			spacingOK = false
		}
	}
	if !spacingOK {
		rec.addIssue(IssueSpacingInvalid)
	}

	if !c.affineValid(img, spacingOK) {
		rec.addIssue(IssueAffineMalformed)
	}

	if img.Orientation == "" {
		rec.addIssue(IssueOrientationUnknown)
	}
}

// affineValid requires a finite, non-singular 4x4 matrix whose
// column norms agree with the declared spacing within tolerance.
func (c *Checker) affineValid(img *volume.Handle, spacingOK bool) bool {
	a := img.Affine
	if a == nil {
		return false
	}
	r, cols := a.Dims()
	if r != 4 || cols != 4 {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	if det := mat.Det(a); det == 0 || math.IsNaN(det) {
		return false
	}
	if spacingOK {
		norms := volume.SpacingFromAffine(a)
		for i := 0; i < 3; i++ {
			if math.Abs(norms[i]-img.Spacing[i]) > c.Cfg.Tolerance.Spacing {
				return false
			}
		}
	}
	return true
}

func (c *Checker) checkLabel(rec *FileRecord) {
	lbl := rec.Label
	if !lbl.Readable {
		rec.addIssue(IssueLabelUnreadable)
		return
	}
	img := rec.Image
	if lbl.SpatialShape() != img.SpatialShape() {
		rec.addIssue(IssueShapeMismatch)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(lbl.Spacing[i]-img.Spacing[i]) > c.Cfg.Tolerance.Spacing {
			rec.addIssue(IssueSpacingMismatch)
			break
		}
	}
	if lbl.Orientation != "" && img.Orientation != "" && lbl.Orientation != img.Orientation {
		rec.addIssue(IssueOrientationMismatch)
	}
}

func (c *Checker) checkVoxels(rec *FileRecord) {
	// A record with an invalid declared shape has no trustworthy
	// voxel layout to scan.
	if rec.HasIssue(IssueShapeInvalid) {
		return
	}
	if data, err := rec.Image.Data(); err == nil {
		for _, v := range data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				rec.addIssue(IssueNaNOrInf)
				break
			}
		}
	}

	if rec.Label != nil && rec.Label.Readable && !rec.HasIssue(IssueLabelUnreadable) {
		if data, err := rec.Label.Data(); err == nil {
			foreground := false
			for _, v := range data {
				if v != 0 {
					foreground = true
					break
				}
			}
			if !foreground {
				rec.addIssue(IssueEmptyLabel)
			}
		}
	}
}
