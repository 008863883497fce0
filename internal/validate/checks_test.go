package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SakshiRa/neurotk/internal/config"
	"github.com/SakshiRa/neurotk/internal/dataset"
	"github.com/SakshiRa/neurotk/internal/volume"
	"gonum.org/v1/gonum/mat"
)

func rasAffine(spacing [3]float64) *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, i, spacing[i])
	}
	a.Set(3, 3, 1)
	return a
}

// writeVolume writes a small RAS volume with the given constant
// foreground value (0 = empty).
func writeVolume(t *testing.T, path string, shape [3]int, spacing [3]float64, fill float64) {
	t.Helper()
	n := shape[0] * shape[1] * shape[2]
	data := make([]float64, n)
	for i := range data {
		data[i] = fill
	}
	img := &volume.Image{Shape: shape, Affine: rasAffine(spacing), Data: data, Dtype: "float32"}
	if err := volume.WriteNIfTI(path, img); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}

func TestCheckCleanPair(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.nii.gz")
	lbl := filepath.Join(dir, "a_lbl.nii.gz")
	writeVolume(t, img, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 7)
	writeVolume(t, lbl, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 1)

	c := NewChecker(config.Default(), true)
	rec := c.Check(dataset.Entry{Name: "a.nii.gz", ImagePath: img, LabelPath: lbl, Status: dataset.Paired})

	if len(rec.Issues) != 0 {
		t.Errorf("clean pair should have no issues, got %v", rec.Issues)
	}
	if rec.Pairing != dataset.Paired {
		t.Errorf("pairing = %q, want paired", rec.Pairing)
	}
	if rec.Image == nil || !rec.Image.Readable {
		t.Error("image handle should be readable")
	}
	if rec.Label == nil || !rec.Label.Readable {
		t.Error("label handle should be readable")
	}
}

func TestCheckUnreadableShortCircuits(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "c.nii.gz")
	if err := os.WriteFile(img, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(config.Default(), false)
	rec := c.Check(dataset.Entry{Name: "c.nii.gz", ImagePath: img, Status: dataset.ImageOnly})

	if len(rec.Issues) != 1 || rec.Issues[0] != IssueUnreadable {
		t.Errorf("unreadable file should carry exactly [unreadable], got %v", rec.Issues)
	}
}

func TestCheckLabelMissing(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "b.nii.gz")
	writeVolume(t, img, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 5)

	// With a label directory in the run, a missing label is an issue.
	c := NewChecker(config.Default(), true)
	rec := c.Check(dataset.Entry{Name: "b.nii.gz", ImagePath: img, Status: dataset.ImageOnly})
	if !rec.HasIssue(IssueLabelMissing) {
		t.Errorf("expected label_missing, got %v", rec.Issues)
	}

	// Without a label directory, the same entry is clean.
	c = NewChecker(config.Default(), false)
	rec = c.Check(dataset.Entry{Name: "b.nii.gz", ImagePath: img, Status: dataset.ImageOnly})
	if rec.HasIssue(IssueLabelMissing) {
		t.Error("label_missing must be suppressed when no label directory was supplied")
	}
}

func TestCheckLabelDisagreements(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.nii.gz")
	writeVolume(t, img, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 3)

	t.Run("shape mismatch", func(t *testing.T) {
		lbl := filepath.Join(dir, "lbl_shape.nii.gz")
		writeVolume(t, lbl, [3]int{4, 4, 5}, [3]float64{1, 1, 1}, 1)
		rec := NewChecker(config.Default(), true).Check(dataset.Entry{
			Name: "a.nii.gz", ImagePath: img, LabelPath: lbl, Status: dataset.Paired,
		})
		if !rec.HasIssue(IssueShapeMismatch) {
			t.Errorf("expected shape_mismatch, got %v", rec.Issues)
		}
	})

	t.Run("spacing mismatch", func(t *testing.T) {
		lbl := filepath.Join(dir, "lbl_spacing.nii.gz")
		writeVolume(t, lbl, [3]int{4, 4, 4}, [3]float64{1, 1, 2}, 1)
		rec := NewChecker(config.Default(), true).Check(dataset.Entry{
			Name: "a.nii.gz", ImagePath: img, LabelPath: lbl, Status: dataset.Paired,
		})
		if !rec.HasIssue(IssueSpacingMismatch) {
			t.Errorf("expected spacing_mismatch, got %v", rec.Issues)
		}
	})

	t.Run("empty label", func(t *testing.T) {
		lbl := filepath.Join(dir, "lbl_empty.nii.gz")
		writeVolume(t, lbl, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 0)
		rec := NewChecker(config.Default(), true).Check(dataset.Entry{
			Name: "a.nii.gz", ImagePath: img, LabelPath: lbl, Status: dataset.Paired,
		})
		if !rec.HasIssue(IssueEmptyLabel) {
			t.Errorf("expected empty_label, got %v", rec.Issues)
		}
	})

	t.Run("unreadable label", func(t *testing.T) {
		lbl := filepath.Join(dir, "lbl_broken.nii.gz")
		if err := os.WriteFile(lbl, []byte("junk"), 0644); err != nil {
			t.Fatal(err)
		}
		rec := NewChecker(config.Default(), true).Check(dataset.Entry{
			Name: "a.nii.gz", ImagePath: img, LabelPath: lbl, Status: dataset.Paired,
		})
		if !rec.HasIssue(IssueLabelUnreadable) {
			t.Errorf("expected label_unreadable, got %v", rec.Issues)
		}
		// Geometry agreement checks are skipped for a broken label.
		if rec.HasIssue(IssueShapeMismatch) || rec.HasIssue(IssueSpacingMismatch) {
			t.Errorf("mismatch checks should be skipped, got %v", rec.Issues)
		}
	})
}

// writeBadDimVolume writes an otherwise-valid uncompressed .nii whose
// header declares a negative first dimension (dim array starts at
// byte 40).
func writeBadDimVolume(t *testing.T, path string) {
	t.Helper()
	writeVolume(t, path, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 1)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	v := int16(-4)
	raw[42] = byte(v)
	raw[43] = byte(v >> 8)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckNegativeDeclaredDim(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.nii")
	writeBadDimVolume(t, img)

	c := NewChecker(config.Default(), false)
	rec := c.Check(dataset.Entry{Name: "a.nii", ImagePath: img, Status: dataset.ImageOnly})

	if rec.Image.Readable {
		t.Fatalf("negative declared dim should not be readable, shape %v", rec.Image.Shape)
	}
	if len(rec.Issues) != 1 || rec.Issues[0] != IssueUnreadable {
		t.Errorf("expected exactly [unreadable], got %v", rec.Issues)
	}

	// The whole pipeline survives the file: runner and stats included.
	r := &Runner{Checker: c, Workers: 2, Quiet: true}
	records := r.Run([]dataset.Entry{
		{Name: "a.nii", ImagePath: img, Status: dataset.ImageOnly},
	})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if s := BuildStatsSummary(records); s.NCases != 1 {
		t.Errorf("stats n_cases = %d, want 1", s.NCases)
	}
}

func TestCheckLabelOnly(t *testing.T) {
	dir := t.TempDir()
	lbl := filepath.Join(dir, "orphan.nii.gz")
	writeVolume(t, lbl, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 1)

	rec := NewChecker(config.Default(), true).Check(dataset.Entry{
		Name: "orphan.nii.gz", LabelPath: lbl, Status: dataset.LabelOnly,
	})
	if !rec.HasIssue(IssueImageMissing) {
		t.Errorf("expected image_missing, got %v", rec.Issues)
	}
	if rec.Image != nil {
		t.Error("label-only record should have no image handle")
	}
}

func TestRunnerCompleteness(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	if err := os.MkdirAll(images, 0755); err != nil {
		t.Fatal(err)
	}
	writeVolume(t, filepath.Join(images, "a.nii.gz"), [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 1)
	writeVolume(t, filepath.Join(images, "b.nii.gz"), [3]int{4, 4, 4}, [3]float64{1, 1, 1}, 2)
	if err := os.WriteFile(filepath.Join(images, "c.nii.gz"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := dataset.Resolve(images, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	r := &Runner{Checker: NewChecker(config.Default(), false), Workers: 2, Quiet: true}
	records := r.Run(entries)

	// Every discovered file appears, even the unreadable one.
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, want := range []string{"a.nii.gz", "b.nii.gz", "c.nii.gz"} {
		if records[i].Name != want {
			t.Errorf("records[%d] = %q, want %q", i, records[i].Name, want)
		}
	}
}
