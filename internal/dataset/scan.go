// Package dataset discovers volume files on disk and pairs images to
// labels by exact filename.
package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/SakshiRa/neurotk/internal/volume"
)

// PairingStatus classifies one filename across the image and label
// directories.
type PairingStatus string

const (
	Paired    PairingStatus = "paired"
	ImageOnly PairingStatus = "image_only"
	LabelOnly PairingStatus = "label_only"
)

// Entry is one dataset member. Name is the bare filename used as the
// pairing key; ImagePath or LabelPath is empty when that side is
// absent.
type Entry struct {
	Name      string
	ImagePath string
	LabelPath string
	Status    PairingStatus
}

// ListVolumeFiles recursively collects supported volume files under
// dir, sorted by filename. A missing or unreadable directory is a
// run-level fatal error.
func ListVolumeFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && volume.IsVolumeFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

// Resolve scans the image directory and, when labelsDir is non-empty,
// the label directory, and pairs entries by exact filename equality.
// Every filename seen in either directory yields exactly one Entry.
// With labelsDir omitted no entry is ever LabelOnly. maxSamples > 0
// caps the number of image files considered, before pairing.
func Resolve(imagesDir, labelsDir string, maxSamples int) ([]Entry, error) {
	imageFiles, err := ListVolumeFiles(imagesDir)
	if err != nil {
		return nil, err
	}
	if maxSamples > 0 && len(imageFiles) > maxSamples {
		imageFiles = imageFiles[:maxSamples]
	}

	var labelFiles []string
	if labelsDir != "" {
		labelFiles, err = ListVolumeFiles(labelsDir)
		if err != nil {
			return nil, err
		}
	}

	labelIndex := make(map[string]string, len(labelFiles))
	for _, p := range labelFiles {
		labelIndex[filepath.Base(p)] = p
	}

	entries := make([]Entry, 0, len(imageFiles)+len(labelFiles))
	seen := make(map[string]bool, len(imageFiles))
	for _, p := range imageFiles {
		name := filepath.Base(p)
		seen[name] = true
		e := Entry{Name: name, ImagePath: p, Status: ImageOnly}
		if lp, ok := labelIndex[name]; ok {
			e.LabelPath = lp
			e.Status = Paired
		}
		entries = append(entries, e)
	}
	for _, p := range labelFiles {
		name := filepath.Base(p)
		if seen[name] {
			continue
		}
		entries = append(entries, Entry{Name: name, LabelPath: p, Status: LabelOnly})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stem strips the NIfTI suffixes from a filename, leaving the case
// identifier.
func Stem(name string) string {
	for _, suffix := range []string{".nii.gz", ".nii", ".dcm"} {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}
