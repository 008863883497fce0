package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/SakshiRa/neurotk/internal/config"
	"github.com/SakshiRa/neurotk/internal/dataset"
	"github.com/SakshiRa/neurotk/internal/preprocess"
	"github.com/SakshiRa/neurotk/internal/report"
	"github.com/SakshiRa/neurotk/internal/validate"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "preprocess":
		os.Exit(runPreprocess(os.Args[2:]))
	case "version", "--version":
		fmt.Printf("neurotk %s (report schema %s)\n", version, report.SchemaVersion)
		os.Exit(0)
	case "help", "--help", "-h":
		printHelp()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	imagesDir := fs.String("images", "", "Image directory (required)")
	labelsDir := fs.String("labels", "", "Label directory (optional)")
	out := fs.String("out", "", "Report JSON output path (required)")
	htmlOut := fs.String("html", "", "Also write an HTML report to this path")
	previews := fs.Bool("previews", false, "Render mid-slice preview images next to the HTML report")
	maxSamples := fs.Int("max-samples", 0, "Only validate the first N image files (0 = all)")
	summaryOnly := fs.Bool("summary-only", false, "Print a text summary to stdout")
	configPath := fs.String("config", "", "Load tolerances and defaults from a YAML file")
	workers := fs.Int("workers", 0, fmt.Sprintf("Number of parallel workers (default: %d = CPU cores)", runtime.NumCPU()))
	quiet := fs.Bool("quiet", false, "Suppress progress output")
	_ = fs.Parse(args)

	if *imagesDir == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --images and --out are required")
		fs.PrintDefaults()
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	entries, err := dataset.Resolve(*imagesDir, *labelsDir, *maxSamples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	runner := &validate.Runner{
		Checker: validate.NewChecker(cfg, *labelsDir != ""),
		Workers: cfg.Workers,
		Quiet:   *quiet,
	}
	records := runner.Run(entries)
	stats := validate.BuildStatsSummary(records)

	var previewPaths map[string]string
	var warnings []string
	if *previews {
		// Previews sit next to the HTML report when one is written,
		// otherwise next to the JSON report.
		base := *htmlOut
		if base == "" {
			base = *out
		}
		dir := filepath.Join(filepath.Dir(base), "previews")
		previewPaths, err = report.WritePreviews(records, dir, cfg.Report.PreviewSize)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("preview rendering failed: %v", err))
		}
	}

	rep := report.Build(report.Params{
		ImagesDir:  *imagesDir,
		LabelsDir:  *labelsDir,
		Records:    records,
		SpacingTol: cfg.Tolerance.Spacing,
		Stats:      stats,
		Warnings:   warnings,
		Previews:   previewPaths,
	})
	releaseRecords(records)

	if err := rep.WriteJSON(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *htmlOut != "" {
		if err := report.WriteHTML(rep, *htmlOut); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: HTML report generation failed: %v\n", err)
		}
	}
	if *summaryOnly {
		fmt.Print(report.RenderSummaryText(rep))
	}

	if !*quiet {
		fmt.Println("Validation complete")
	}
	return 0
}

func runPreprocess(args []string) int {
	fs := flag.NewFlagSet("preprocess", flag.ExitOnError)
	imagesDir := fs.String("images", "", "Image directory (required)")
	labelsDir := fs.String("labels", "", "Label directory (optional)")
	out := fs.String("out", "", "Output directory for processed volumes (required)")
	spacing := fs.String("spacing", "", "Target spacing as X,Y,Z in mm (required)")
	orientation := fs.String("orientation", "", "Target orientation code (default from config, RAS)")
	reportPath := fs.String("report", "", "Report JSON output path (default: <out>/report.json)")
	htmlOut := fs.String("html", "", "Also write an HTML report to this path")
	dryRun := fs.Bool("dry-run", false, "Plan transforms without writing outputs")
	copyMetadata := fs.Bool("copy-metadata", false, "Copy non-spatial header metadata to outputs")
	maxSamples := fs.Int("max-samples", 0, "Only process the first N image files (0 = all)")
	configPath := fs.String("config", "", "Load tolerances and defaults from a YAML file")
	workers := fs.Int("workers", 0, fmt.Sprintf("Number of parallel workers (default: %d = CPU cores)", runtime.NumCPU()))
	quiet := fs.Bool("quiet", false, "Suppress progress output")
	_ = fs.Parse(args)

	if *imagesDir == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --images and --out are required")
		fs.PrintDefaults()
		return 1
	}
	if *spacing == "" {
		fmt.Fprintln(os.Stderr, "Error: --spacing is required for preprocessing")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	targetSpacing, err := parseSpacing(*spacing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	targetOrientation := cfg.Preprocess.Orientation
	if *orientation != "" {
		targetOrientation = strings.ToUpper(*orientation)
	}

	entries, err := dataset.Resolve(*imagesDir, *labelsDir, *maxSamples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// The original-inputs summary is computed from untouched source
	// reads before any output is written.
	vRunner := &validate.Runner{
		Checker: validate.NewChecker(cfg, *labelsDir != ""),
		Workers: cfg.Workers,
		Quiet:   *quiet,
	}
	records := vRunner.Run(entries)
	stats := validate.BuildStatsSummary(records)
	releaseRecords(records)

	pRunner := &preprocess.Runner{
		Cfg: cfg,
		Opts: preprocess.Options{
			OutDir:            *out,
			TargetSpacing:     targetSpacing,
			TargetOrientation: targetOrientation,
			CopyMetadata:      *copyMetadata,
			DryRun:            *dryRun,
			Workers:           cfg.Workers,
			Quiet:             *quiet,
		},
	}
	result, err := pRunner.Run(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	rep := report.Build(report.Params{
		ImagesDir:  *imagesDir,
		LabelsDir:  *labelsDir,
		Records:    records,
		SpacingTol: cfg.Tolerance.Spacing,
		Stats:      stats,
		Preprocess: result,
	})

	rp := *reportPath
	if rp == "" {
		rp = filepath.Join(*out, "report.json")
	}
	if !*dryRun || *reportPath != "" {
		if err := rep.WriteJSON(rp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if *htmlOut != "" {
		if err := report.WriteHTML(rep, *htmlOut); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: HTML report generation failed: %v\n", err)
		}
	}

	if !*quiet {
		fmt.Println("Preprocess complete")
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// parseSpacing parses "X,Y,Z" into a positive spacing triple.
func parseSpacing(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("spacing must be three comma-separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("invalid spacing component %q", p)
		}
		if v <= 0 {
			return out, fmt.Errorf("spacing components must be > 0, got %g", v)
		}
		out[i] = v
	}
	return out, nil
}

func releaseRecords(records []*validate.FileRecord) {
	for _, rec := range records {
		rec.ReleaseData()
	}
}

func printHelp() {
	fmt.Println("neurotk")
	fmt.Println("=======")
	fmt.Println()
	fmt.Println("Validate and preprocess datasets of 3D medical volumes.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  neurotk validate --images <DIR> --out <FILE> [options]")
	fmt.Println("  neurotk preprocess --images <DIR> --out <DIR> --spacing <X,Y,Z> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate     Scan a dataset and write a QA report (JSON, optionally HTML)")
	fmt.Println("  preprocess   Reorient and resample a dataset, then verify and report")
	fmt.Println("  version      Print the tool and report schema versions")
	fmt.Println()
	fmt.Println("Common options:")
	fmt.Println("  --labels <DIR>        Label directory; paired to images by exact filename")
	fmt.Println("  --config <FILE>       YAML config with tolerances and defaults")
	fmt.Printf("  --workers <N>         Parallel workers (default: %d = CPU cores)\n", runtime.NumCPU())
	fmt.Println("  --max-samples <N>     Only consider the first N image files")
	fmt.Println("  --quiet               Suppress progress output")
	fmt.Println()
	fmt.Println("Validate options:")
	fmt.Println("  --out <FILE>          Report JSON path (required)")
	fmt.Println("  --html <FILE>         Also write an HTML rendering")
	fmt.Println("  --previews            Render mid-slice PNGs next to the HTML report")
	fmt.Println("  --summary-only        Print a text summary to stdout")
	fmt.Println()
	fmt.Println("Preprocess options:")
	fmt.Println("  --out <DIR>           Output directory (images/ and labels/ inside)")
	fmt.Println("  --spacing <X,Y,Z>     Target voxel spacing in mm (required)")
	fmt.Println("  --orientation <CODE>  Target orientation (default: RAS)")
	fmt.Println("  --report <FILE>       Report JSON path (default: <out>/report.json)")
	fmt.Println("  --dry-run             Plan without writing outputs")
	fmt.Println("  --copy-metadata       Carry non-spatial header fields to outputs")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Validate an images/labels dataset and write JSON + HTML reports")
	fmt.Println("  neurotk validate --images data/imagesTr --labels data/labelsTr \\")
	fmt.Println("      --out qa/report.json --html qa/report.html --previews")
	fmt.Println()
	fmt.Println("  # Resample everything to 1mm isotropic RAS")
	fmt.Println("  neurotk preprocess --images data/imagesTr --labels data/labelsTr \\")
	fmt.Println("      --out data/preprocessed --spacing 1,1,1 --orientation RAS")
}
