package validate

import (
	"math"

	"github.com/SakshiRa/neurotk/internal/dataset"
)

// Scope tags which generation of files a summary describes.
type Scope string

const (
	ScopeOriginal  Scope = "original_inputs"
	ScopeProcessed Scope = "processed_outputs"
)

// DatasetSummary aggregates one scope's FileRecords. It is computed
// in full from the record set and never mutated incrementally, so the
// result is independent of file processing order.
type DatasetSummary struct {
	Scope                  Scope             `json:"scope"`
	NumImages              int               `json:"num_images"`
	NumLabels              int               `json:"num_labels"`
	FilesWithIssues        int               `json:"files_with_issues"`
	IssueHistogram         map[IssueCode]int `json:"issue_histogram"`
	SpacingConsistency     bool              `json:"spacing_consistency"`
	OrientationConsistency bool              `json:"orientation_consistency"`
}

// Aggregate folds records into a DatasetSummary. A file carrying N
// distinct issues contributes to N histogram buckets and once to
// FilesWithIssues. Spacing consistency holds iff every readable
// image's spacing matches component-wise within spacingTol;
// orientation consistency compares codes exactly.
func Aggregate(records []*FileRecord, scope Scope, spacingTol float64) *DatasetSummary {
	s := &DatasetSummary{
		Scope:                  scope,
		IssueHistogram:         map[IssueCode]int{},
		SpacingConsistency:     true,
		OrientationConsistency: true,
	}

	var refSpacing *[3]float64
	refOrientation := ""
	haveOrientation := false

	for _, rec := range records {
		if rec.Pairing != dataset.LabelOnly {
			s.NumImages++
		}
		if rec.Label != nil {
			s.NumLabels++
		}
		if len(rec.Issues) > 0 {
			s.FilesWithIssues++
		}
		for _, code := range rec.Issues {
			s.IssueHistogram[code]++
		}

		img := rec.Image
		if img == nil || !img.Readable {
			continue
		}
		if refSpacing == nil {
			sp := img.Spacing
			refSpacing = &sp
		} else {
			for i := 0; i < 3; i++ {
				if math.Abs(img.Spacing[i]-refSpacing[i]) > spacingTol {
					s.SpacingConsistency = false
					break
				}
			}
		}
		if img.Orientation != "" {
			if !haveOrientation {
				refOrientation = img.Orientation
				haveOrientation = true
			} else if img.Orientation != refOrientation {
				s.OrientationConsistency = false
			}
		}
	}
	return s
}
