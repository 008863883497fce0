package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SakshiRa/neurotk/internal/dataset"
	"github.com/SakshiRa/neurotk/internal/preprocess"
	"github.com/SakshiRa/neurotk/internal/validate"
	"github.com/SakshiRa/neurotk/internal/volume"
)

func sampleRecords() []*validate.FileRecord {
	clean := &validate.FileRecord{
		Name:    "case_a.nii.gz",
		Pairing: dataset.Paired,
		Image: &volume.Handle{
			Readable:    true,
			Shape:       []int{64, 64, 32},
			Spacing:     [3]float64{1, 1, 2},
			Orientation: "RAS",
			Dtype:       "int16",
		},
	}
	broken := &validate.FileRecord{
		Name:    "case_b.nii.gz",
		Pairing: dataset.ImageOnly,
		Issues:  []validate.IssueCode{validate.IssueUnreadable},
		Image:   &volume.Handle{Readable: false},
	}
	return []*validate.FileRecord{clean, broken}
}

func TestBuildValidateOnly(t *testing.T) {
	r := Build(Params{
		ImagesDir: "/data/images",
		Records:   sampleRecords(),
		Now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	if r.RunMode != RunModeValidate {
		t.Errorf("run_mode = %q", r.RunMode)
	}
	if r.SummaryProcessed != nil || r.Preprocess != nil {
		t.Error("validate-only report must not carry processed sections")
	}
	if r.Summary.Scope != validate.ScopeOriginal {
		t.Errorf("summary scope = %q", r.Summary.Scope)
	}
	if r.Meta.SchemaVersion != SchemaVersion || r.Meta.Version != Version {
		t.Errorf("meta versions = %q / %q", r.Meta.SchemaVersion, r.Meta.Version)
	}
	if r.Meta.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp = %q", r.Meta.Timestamp)
	}

	view := r.Files["case_a.nii.gz"]
	if view == nil || view.Image == nil {
		t.Fatal("readable image should expose geometry")
	}
	if view.Image.Orientation != "RAS" || view.Image.Dtype != "int16" {
		t.Errorf("geometry = %+v", view.Image)
	}
	if len(view.Issues) != 0 {
		t.Errorf("clean file has issues: %v", view.Issues)
	}

	if v := r.Files["case_b.nii.gz"]; v == nil || v.Image != nil {
		t.Error("unreadable image must omit geometry")
	}
}

func TestBuildPreprocessSections(t *testing.T) {
	pre := &preprocess.Result{
		Transforms: map[string]*preprocess.TransformRecord{
			"case_a.nii.gz": {
				Requested:  preprocess.Requested{TargetSpacing: [3]float64{1, 1, 1}, TargetOrientation: "RAS"},
				Applied:    &preprocess.Applied{ActualSpacing: [3]float64{1, 1, 1}, ActualOrientation: "RAS"},
				VerifiedBy: preprocess.VerifyMethod,
				OutputPath: "out/images/case_a.nii.gz",
			},
		},
		Processed: []*validate.FileRecord{{
			Name:    "case_a.nii.gz",
			Pairing: dataset.ImageOnly,
			Image: &volume.Handle{
				Readable:    true,
				Shape:       []int{64, 64, 64},
				Spacing:     [3]float64{1, 1, 1},
				Orientation: "RAS",
				Dtype:       "float32",
			},
		}},
	}

	r := Build(Params{
		ImagesDir:  "/data/images",
		LabelsDir:  "/data/labels",
		Records:    sampleRecords(),
		Preprocess: pre,
	})

	if r.RunMode != RunModePreprocess {
		t.Errorf("run_mode = %q", r.RunMode)
	}
	if r.SummaryProcessed == nil || r.SummaryProcessed.Scope != validate.ScopeProcessed {
		t.Fatal("processed summary missing or wrong scope")
	}
	// Original summary is untouched by the processed results.
	if r.Summary.Scope != validate.ScopeOriginal || r.Summary.NumImages != 2 {
		t.Errorf("original summary changed: %+v", r.Summary)
	}
	if r.Preprocess["case_a.nii.gz"].VerifiedBy != preprocess.VerifyMethod {
		t.Error("transform record lost in assembly")
	}
}

func TestJSONLabelsDirOmitted(t *testing.T) {
	r := Build(Params{ImagesDir: "/data/images", Records: nil})
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("labels_dir")) {
		t.Error("labels_dir must be omitted, not null, when no label directory was supplied")
	}

	r = Build(Params{ImagesDir: "/data/images", LabelsDir: "/data/labels", Records: nil})
	data, err = json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"labels_dir": "/data/labels"`)) && !bytes.Contains(data, []byte(`"labels_dir":"/data/labels"`)) {
		t.Error("labels_dir missing from report meta")
	}
}

func TestJSONEmptyCollectionsNotNull(t *testing.T) {
	r := Build(Params{ImagesDir: "/data", Records: sampleRecords()[:1]})
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte(`"issues":null`)) || bytes.Contains(data, []byte(`"warnings":null`)) {
		t.Errorf("empty collections serialized as null: %s", data)
	}
}

func TestWriteJSONStable(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	build := func() *Report {
		return Build(Params{ImagesDir: "/data/images", Records: sampleRecords(), Now: now})
	}

	p1 := filepath.Join(dir, "one.json")
	p2 := filepath.Join(dir, "two.json")
	if err := build().WriteJSON(p1); err != nil {
		t.Fatal(err)
	}
	if err := build().WriteJSON(p2); err != nil {
		t.Fatal(err)
	}

	b1, _ := os.ReadFile(p1)
	b2, _ := os.ReadFile(p2)
	if !bytes.Equal(b1, b2) {
		t.Error("identical inputs produced different report bytes")
	}
	if len(b1) == 0 || b1[len(b1)-1] != '\n' {
		t.Error("report should end with a newline")
	}

	// Round-trips as valid JSON.
	var parsed map[string]any
	if err := json.Unmarshal(b1, &parsed); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	for _, key := range []string{"run_mode", "summary", "files", "warnings", "meta"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("top-level key %q missing", key)
		}
	}
}

// Fields defined by the first schema revision must still be present so
// old consumers keep working.
func TestSchemaBackwardCompatible(t *testing.T) {
	r := Build(Params{ImagesDir: "/data/images", Records: sampleRecords()})
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var v10 struct {
		Summary *struct {
			NumImages       int            `json:"num_images"`
			FilesWithIssues int            `json:"files_with_issues"`
			IssueHistogram  map[string]int `json:"issue_histogram"`
		} `json:"summary"`
		Files map[string]struct {
			Issues        []string `json:"issues"`
			PairingStatus string   `json:"pairing_status"`
		} `json:"files"`
		Meta struct {
			Timestamp string `json:"timestamp"`
			Version   string `json:"version"`
			ImagesDir string `json:"images_dir"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &v10); err != nil {
		t.Fatal(err)
	}
	if v10.Summary == nil || v10.Summary.NumImages != 2 {
		t.Errorf("summary.num_images = %+v", v10.Summary)
	}
	if v10.Files["case_b.nii.gz"].Issues[0] != "unreadable" {
		t.Error("issue codes changed meaning")
	}
	if v10.Meta.ImagesDir != "/data/images" {
		t.Errorf("meta.images_dir = %q", v10.Meta.ImagesDir)
	}
}
