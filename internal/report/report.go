// Package report assembles validation and preprocessing results into
// the versioned report artifact and renders it as JSON, HTML and
// plain text. The JSON field set only ever grows across versions;
// consumers must ignore unknown fields and can rely on known fields
// never disappearing.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SakshiRa/neurotk/internal/preprocess"
	"github.com/SakshiRa/neurotk/internal/validate"
)

// Tool and schema versions. SchemaVersion 1.0 covered the
// validate-only report; 1.1 added run_mode, summary_processed and
// preprocess, all additive.
const (
	Version       = "0.4.0"
	SchemaVersion = "1.1"
)

// Run modes.
const (
	RunModeValidate   = "validate_only"
	RunModePreprocess = "validate_and_preprocess"
)

// Geometry is the serialized header view of one readable volume.
type Geometry struct {
	Shape       []int     `json:"shape"`
	Spacing     []float64 `json:"spacing"`
	Orientation string    `json:"orientation,omitempty"`
	Dtype       string    `json:"dtype"`
}

// FileView is the per-file entry of the report's files mapping.
type FileView struct {
	Issues        []validate.IssueCode `json:"issues"`
	PairingStatus string               `json:"pairing_status"`
	Image         *Geometry            `json:"image,omitempty"`
	Label         *Geometry            `json:"label,omitempty"`
	Preview       string               `json:"preview,omitempty"` // relative path to a rendered mid-slice PNG
}

// Meta identifies the run that produced the report. LabelsDir is
// omitted entirely when no label directory was supplied.
type Meta struct {
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
	SchemaVersion string `json:"schema_version"`
	ImagesDir     string `json:"images_dir"`
	LabelsDir     string `json:"labels_dir,omitempty"`
}

// Report is the top-level artifact. Summary always reflects the
// untouched inputs; SummaryProcessed exists iff preprocessing ran.
type Report struct {
	RunMode          string                                 `json:"run_mode"`
	Summary          *validate.DatasetSummary               `json:"summary"`
	SummaryProcessed *validate.DatasetSummary               `json:"summary_processed,omitempty"`
	StatsSummary     *validate.StatsSummary                 `json:"stats_summary,omitempty"`
	Files            map[string]*FileView                   `json:"files"`
	Preprocess       map[string]*preprocess.TransformRecord `json:"preprocess,omitempty"`
	Warnings         []string                               `json:"warnings"`
	Meta             Meta                                   `json:"meta"`
}

// Params carries everything the builder needs for one report.
type Params struct {
	ImagesDir  string
	LabelsDir  string // empty when no label directory was supplied
	Records    []*validate.FileRecord
	SpacingTol float64
	Stats      *validate.StatsSummary
	Preprocess *preprocess.Result // nil in validate-only runs
	Warnings   []string
	Previews   map[string]string // filename -> relative preview path
	Now        time.Time         // zero value = time.Now
}

// Build assembles the report. The original-scope summary is computed
// purely from the records of the untransformed inputs, regardless of
// whether preprocessing ran in the same invocation.
func Build(p Params) *Report {
	r := &Report{
		RunMode:      RunModeValidate,
		Summary:      validate.Aggregate(p.Records, validate.ScopeOriginal, p.SpacingTol),
		StatsSummary: p.Stats,
		Files:        make(map[string]*FileView, len(p.Records)),
		Warnings:     p.Warnings,
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}

	for _, rec := range p.Records {
		view := &FileView{
			Issues:        rec.Issues,
			PairingStatus: string(rec.Pairing),
		}
		if view.Issues == nil {
			view.Issues = []validate.IssueCode{}
		}
		if rec.Image != nil && rec.Image.Readable {
			view.Image = geometryOf(rec)
		}
		if rec.Label != nil && rec.Label.Readable {
			view.Label = &Geometry{
				Shape:       rec.Label.Shape,
				Spacing:     rec.Label.Spacing[:],
				Orientation: rec.Label.Orientation,
				Dtype:       rec.Label.Dtype,
			}
		}
		if p.Previews != nil {
			view.Preview = p.Previews[rec.Name]
		}
		r.Files[rec.Name] = view
	}

	if p.Preprocess != nil {
		r.RunMode = RunModePreprocess
		r.SummaryProcessed = validate.Aggregate(p.Preprocess.Processed, validate.ScopeProcessed, p.SpacingTol)
		r.Preprocess = p.Preprocess.Transforms
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	r.Meta = Meta{
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       Version,
		SchemaVersion: SchemaVersion,
		ImagesDir:     p.ImagesDir,
		LabelsDir:     p.LabelsDir,
	}
	return r
}

func geometryOf(rec *validate.FileRecord) *Geometry {
	return &Geometry{
		Shape:       rec.Image.Shape,
		Spacing:     rec.Image.Spacing[:],
		Orientation: rec.Image.Orientation,
		Dtype:       rec.Image.Dtype,
	}
}

// WriteJSON writes the report with stable formatting: two-space
// indentation and lexicographically ordered map keys, so identical
// runs produce byte-identical files.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
