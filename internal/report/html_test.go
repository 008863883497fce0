package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SakshiRa/neurotk/internal/preprocess"
	"github.com/SakshiRa/neurotk/internal/validate"
)

func TestWriteHTML(t *testing.T) {
	pre := &preprocess.Result{
		Transforms: map[string]*preprocess.TransformRecord{
			"case_a.nii.gz": {
				Requested:  preprocess.Requested{TargetSpacing: [3]float64{1, 1, 1}, TargetOrientation: "RAS"},
				Applied:    &preprocess.Applied{ActualSpacing: [3]float64{1, 1, 1}, ActualOrientation: "RAS"},
				VerifiedBy: preprocess.VerifyMethod,
			},
		},
		Processed: []*validate.FileRecord{},
	}
	r := Build(Params{
		ImagesDir:  "/data/images",
		Records:    sampleRecords(),
		Preprocess: pre,
		Now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTML(r, path); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)

	for _, want := range []string{
		"case_a.nii.gz",
		"case_b.nii.gz",
		"unreadable",
		"validate_and_preprocess",
		"original_inputs",
		"processed_outputs",
		"output_reread",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
	if strings.Contains(html, "img class=\"preview\"") {
		t.Error("preview column rendered without any previews")
	}
}

func TestWriteHTMLStable(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := Build(Params{ImagesDir: "/data", Records: sampleRecords(), Now: now})

	p1 := filepath.Join(dir, "one.html")
	p2 := filepath.Join(dir, "two.html")
	if err := WriteHTML(r, p1); err != nil {
		t.Fatal(err)
	}
	if err := WriteHTML(r, p2); err != nil {
		t.Fatal(err)
	}
	b1, _ := os.ReadFile(p1)
	b2, _ := os.ReadFile(p2)
	if string(b1) != string(b2) {
		t.Error("re-rendering the same report produced different bytes")
	}
}

func TestWriteHTMLPreviewColumn(t *testing.T) {
	r := Build(Params{
		ImagesDir: "/data",
		Records:   sampleRecords(),
		Previews:  map[string]string{"case_a.nii.gz": "previews/case_a.png"},
	})
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTML(r, path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `src="previews/case_a.png"`) {
		t.Error("preview image not referenced in HTML")
	}
}

func TestRenderSummaryText(t *testing.T) {
	r := Build(Params{
		ImagesDir: "/data/images",
		LabelsDir: "/data/labels",
		Records:   sampleRecords(),
		Warnings:  []string{"2 files skipped by --max-samples"},
	})
	out := RenderSummaryText(r)

	for _, want := range []string{
		"run mode: validate_only",
		"labels dir: /data/labels",
		"images: 2, labels: 0",
		"files with issues: 1",
		"unreadable",
		"Warnings (1):",
		"2 files skipped by --max-samples",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary text missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderSummaryTextOmitsLabelsDir(t *testing.T) {
	r := Build(Params{ImagesDir: "/data/images", Records: nil})
	if strings.Contains(RenderSummaryText(r), "labels dir") {
		t.Error("labels dir line printed without a labels directory")
	}
}
