// Package validate runs the per-file quality checks and folds the
// results into dataset-level summaries.
package validate

// IssueCode tags one failed check on one file. Codes are stable wire
// values: existing codes are never renamed or removed, only added.
type IssueCode string

const (
	// IssueUnreadable: the image failed to decode; geometry checks
	// are skipped for this file.
	IssueUnreadable IssueCode = "unreadable"

	// IssueShapeInvalid: a spatial dimension is zero or negative.
	IssueShapeInvalid IssueCode = "shape_invalid"

	// IssueSpacingInvalid: a spacing component is non-positive or
	// non-finite.
	IssueSpacingInvalid IssueCode = "spacing_invalid"

	// IssueAffineMalformed: the affine is missing, non-finite,
	// singular, or disagrees with the declared spacing.
	IssueAffineMalformed IssueCode = "affine_malformed"

	// IssueOrientationUnknown: no anatomical axis code could be
	// derived from the affine.
	IssueOrientationUnknown IssueCode = "orientation_unknown"

	// IssueNaNOrInf: the voxel data contains NaN or infinite values.
	IssueNaNOrInf IssueCode = "nan_or_inf_values"

	// IssueLabelMissing: the image has no label with the same
	// filename. Suppressed dataset-wide when no label directory was
	// supplied.
	IssueLabelMissing IssueCode = "label_missing"

	// IssueImageMissing: a label file has no matching image.
	IssueImageMissing IssueCode = "image_missing"

	// IssueLabelUnreadable: the paired label failed to decode.
	IssueLabelUnreadable IssueCode = "label_unreadable"

	// IssueShapeMismatch: label spatial shape differs from the image.
	IssueShapeMismatch IssueCode = "shape_mismatch"

	// IssueSpacingMismatch: label spacing differs from the image
	// beyond tolerance.
	IssueSpacingMismatch IssueCode = "spacing_mismatch"

	// IssueOrientationMismatch: label orientation code differs from
	// the image.
	IssueOrientationMismatch IssueCode = "orientation_mismatch"

	// IssueEmptyLabel: the label volume has no foreground voxel.
	IssueEmptyLabel IssueCode = "empty_label"

	// IssueWriteFailed: preprocessing could not write the output
	// volume (processed scope only).
	IssueWriteFailed IssueCode = "write_failed"

	// IssueVerifyFailed: the re-read output geometry misses the
	// requested target beyond tolerance (processed scope only).
	IssueVerifyFailed IssueCode = "verify_failed"
)
