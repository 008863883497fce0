package preprocess

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/SakshiRa/neurotk/internal/config"
	"github.com/SakshiRa/neurotk/internal/dataset"
	"github.com/SakshiRa/neurotk/internal/validate"
	"github.com/SakshiRa/neurotk/internal/volume"
)

// VerifyMethod is the tag recorded when an output file has been
// re-opened and its geometry compared against the request.
const VerifyMethod = "output_reread"

// Requested captures the transform parameters asked for.
type Requested struct {
	TargetSpacing     [3]float64 `json:"target_spacing"`
	TargetOrientation string     `json:"target_orientation"`
}

// Applied captures the geometry actually found when re-reading the
// written output. It is absent when the transform failed.
type Applied struct {
	ActualSpacing     [3]float64 `json:"actual_spacing"`
	ActualOrientation string     `json:"actual_orientation"`
}

// TransformRecord traces one file through preprocessing: what was
// requested, what the written output actually carries, and how that
// was established.
type TransformRecord struct {
	Requested  Requested `json:"requested"`
	Applied    *Applied  `json:"applied,omitempty"`
	VerifiedBy string    `json:"verified_by,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Options configures a preprocessing run.
type Options struct {
	OutDir            string
	TargetSpacing     [3]float64
	TargetOrientation string
	CopyMetadata      bool // carry the NIfTI descrip field to outputs
	DryRun            bool // plan without writing
	Workers           int
	Quiet             bool
}

// Result is the outcome of a preprocessing run: per-file transform
// traces plus the diagnostics of the written outputs, ready to be
// aggregated into the processed-scope summary.
type Result struct {
	Transforms map[string]*TransformRecord
	Processed  []*validate.FileRecord
}

// Runner executes the per-file transforms with a bounded worker pool.
type Runner struct {
	Cfg  *config.Config
	Opts Options
}

// Validate checks the run-level preconditions. These abort the whole
// run before any file is touched.
func (r *Runner) Validate() error {
	for _, s := range r.Opts.TargetSpacing {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("target spacing must be positive and finite, got %v", r.Opts.TargetSpacing)
		}
	}
	if !volume.ValidOrientationCode(r.Opts.TargetOrientation) {
		return fmt.Errorf("invalid target orientation %q", r.Opts.TargetOrientation)
	}
	if r.Opts.OutDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if !r.Opts.DryRun {
		for _, sub := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(r.Opts.OutDir, sub), 0755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
	}
	return nil
}

type fileResult struct {
	name      string
	transform *TransformRecord
	processed *validate.FileRecord
}

// Run transforms every image-bearing entry. Per-file failures are
// recorded in that file's TransformRecord and do not stop other
// files. Label-only entries are skipped: there is nothing to align
// them to.
func (r *Runner) Run(entries []dataset.Entry) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var work []dataset.Entry
	labelsSupplied := false
	for _, e := range entries {
		if e.Status != dataset.LabelOnly {
			work = append(work, e)
		}
		if e.LabelPath != "" || e.Status == dataset.LabelOnly {
			labelsSupplied = true
		}
	}

	result := &Result{
		Transforms: make(map[string]*TransformRecord, len(work)),
		Processed:  []*validate.FileRecord{},
	}
	if len(work) == 0 {
		return result, nil
	}

	numWorkers := r.Opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(work) {
		numWorkers = len(work)
	}
	if !r.Opts.Quiet {
		fmt.Printf("Preprocessing %d files with %d parallel workers...\n", len(work), numWorkers)
	}

	checker := validate.NewChecker(r.Cfg, labelsSupplied)

	taskChan := make(chan dataset.Entry, len(work))
	resultChan := make(chan fileResult, len(work))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range taskChan {
				resultChan <- r.processEntry(e, checker)
			}
		}()
	}
	for _, e := range work {
		taskChan <- e
	}
	close(taskChan)
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for fr := range resultChan {
		result.Transforms[fr.name] = fr.transform
		if fr.processed != nil {
			result.Processed = append(result.Processed, fr.processed)
		}
		completed++
		if !r.Opts.Quiet && (completed%10 == 0 || completed == len(work)) {
			fmt.Printf("  Progress: %d/%d\n", completed, len(work))
		}
	}

	sort.Slice(result.Processed, func(i, j int) bool {
		return result.Processed[i].Name < result.Processed[j].Name
	})
	return result, nil
}

// processEntry runs the full transform pipeline for one entry:
// image (and paired label), write, re-read, verify.
func (r *Runner) processEntry(e dataset.Entry, checker *validate.Checker) fileResult {
	rec := &TransformRecord{
		Requested: Requested{
			TargetSpacing:     r.Opts.TargetSpacing,
			TargetOrientation: r.Opts.TargetOrientation,
		},
	}
	fr := fileResult{name: e.Name, transform: rec}

	outName := niftiOutputName(e.Name)
	imageOut := filepath.Join(r.Opts.OutDir, "images", outName)
	labelOut := filepath.Join(r.Opts.OutDir, "labels", outName)

	if r.Opts.DryRun {
		return fr
	}

	img := volume.Open(e.ImagePath)
	if !img.Readable {
		rec.Error = fmt.Sprintf("source unreadable: %s", img.Err)
		fr.processed = failedRecord(outName, validate.IssueUnreadable)
		return fr
	}
	if err := r.transformOne(img, imageOut, r.Cfg.Preprocess.ImageInterpolation, "float32"); err != nil {
		rec.Error = err.Error()
		fr.processed = failedRecord(outName, validate.IssueWriteFailed)
		return fr
	}
	rec.OutputPath = imageOut

	labelWritten := false
	if e.LabelPath != "" {
		lbl := volume.Open(e.LabelPath)
		if !lbl.Readable {
			rec.Error = fmt.Sprintf("label unreadable: %s", lbl.Err)
		} else if err := r.transformOne(lbl, labelOut, r.Cfg.Preprocess.LabelInterpolation, labelDtype(lbl)); err != nil {
			rec.Error = fmt.Sprintf("label: %s", err.Error())
		} else {
			labelWritten = true
		}
	}

	// Verification: the written image is re-opened through the normal
	// reader and its geometry compared against the request.
	outEntry := dataset.Entry{Name: outName, ImagePath: imageOut, Status: dataset.ImageOnly}
	if labelWritten {
		outEntry.LabelPath = labelOut
		outEntry.Status = dataset.Paired
	}
	processed := checker.Check(outEntry)

	reread := processed.Image
	if reread == nil || !reread.Readable {
		rec.Error = "verification re-read failed"
		processed.ReleaseData()
		fr.processed = processed
		return fr
	}

	rec.Applied = &Applied{
		ActualSpacing:     reread.Spacing,
		ActualOrientation: reread.Orientation,
	}
	rec.VerifiedBy = VerifyMethod

	if !r.targetsMet(reread) {
		processedAdd(processed, validate.IssueVerifyFailed)
	}
	processed.ReleaseData()
	fr.processed = processed
	return fr
}

// transformOne reorients, resamples and writes a single volume.
func (r *Runner) transformOne(h *volume.Handle, outPath, kernel, dtype string) error {
	if err := checkSpatial(h); err != nil {
		return err
	}
	data, err := h.Data()
	if err != nil {
		return err
	}
	defer h.DropData()

	shape := h.SpatialShape()
	shape2, data2, affine2, err := Reorient(shape, data, h.Affine, h.Orientation, r.Opts.TargetOrientation)
	if err != nil {
		return fmt.Errorf("reorient: %w", err)
	}
	shape3, data3, affine3, err := Resample(shape2, data2, affine2, r.Opts.TargetSpacing, kernel)
	if err != nil {
		return fmt.Errorf("resample: %w", err)
	}

	img := &volume.Image{
		Shape:  shape3,
		Affine: affine3,
		Data:   data3,
		Dtype:  dtype,
	}
	if r.Opts.CopyMetadata {
		img.Descrip = h.Descrip
	}
	if err := volume.WriteNIfTI(outPath, img); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (r *Runner) targetsMet(h *volume.Handle) bool {
	if h.Orientation != r.Opts.TargetOrientation {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(h.Spacing[i]-r.Opts.TargetSpacing[i]) > r.Cfg.Tolerance.Spacing {
			return false
		}
	}
	return true
}

// labelDtype keeps integral label dtypes, defaulting to int16 for
// anything floating point so written labels stay discrete.
func labelDtype(h *volume.Handle) string {
	switch h.Dtype {
	case "uint8", "int8", "int16", "uint16", "int32":
		return h.Dtype
	}
	return "int16"
}

// niftiOutputName maps any supported input filename to its NIfTI
// output name. NIfTI names pass through; DICOM sources gain .nii.gz.
func niftiOutputName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz") {
		return name
	}
	return dataset.Stem(name) + ".nii.gz"
}

// failedRecord stands in for an output that was never written, so
// the processed-scope summary still accounts for the file.
func failedRecord(name string, code validate.IssueCode) *validate.FileRecord {
	return &validate.FileRecord{
		Name:    name,
		Issues:  []validate.IssueCode{code},
		Pairing: dataset.ImageOnly,
	}
}

func processedAdd(rec *validate.FileRecord, code validate.IssueCode) {
	for _, c := range rec.Issues {
		if c == code {
			return
		}
	}
	rec.Issues = append(rec.Issues, code)
}
