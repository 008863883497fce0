package report

import (
	"fmt"
	"html/template"
	"os"
	"sort"
	"strings"

	"github.com/SakshiRa/neurotk/internal/validate"
)

// htmlTemplate renders the report for humans. It is a pure view of
// the report structure: every number shown also exists in the JSON.
var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"joinIssues": joinIssues,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>neurotk report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; } h2 { font-size: 1.1em; margin-top: 1.5em; }
table { border-collapse: collapse; margin-top: 0.5em; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.7em; text-align: left; font-size: 0.9em; }
th { background: #f0f0f0; }
.ok { color: #2a7d2a; } .bad { color: #b03030; }
img.preview { max-height: 120px; }
.meta { color: #666; font-size: 0.85em; }
</style>
</head>
<body>
<h1>neurotk report</h1>
<p class="meta">run mode: {{.RunMode}} &middot; generated {{.Meta.Timestamp}} &middot; schema {{.Meta.SchemaVersion}} &middot; tool {{.Meta.Version}}</p>
<p class="meta">images: {{.Meta.ImagesDir}}{{if .Meta.LabelsDir}} &middot; labels: {{.Meta.LabelsDir}}{{end}}</p>

{{template "summary" .Summary}}
{{if .SummaryProcessed}}{{template "summary" .SummaryProcessed}}{{end}}

<h2>Files</h2>
<table>
<tr><th>file</th><th>pairing</th><th>shape</th><th>spacing</th><th>orientation</th><th>issues</th>{{if .HasPreviews}}<th>preview</th>{{end}}</tr>
{{range .FileRows}}
<tr>
<td>{{.Name}}</td>
<td>{{.Pairing}}</td>
<td>{{.Shape}}</td>
<td>{{.Spacing}}</td>
<td>{{.Orientation}}</td>
<td>{{if .Issues}}<span class="bad">{{.Issues}}</span>{{else}}<span class="ok">none</span>{{end}}</td>
{{if $.HasPreviews}}<td>{{if .Preview}}<img class="preview" src="{{.Preview}}" alt="{{.Name}}">{{end}}</td>{{end}}
</tr>
{{end}}
</table>

{{if .PreprocessRows}}
<h2>Preprocessing</h2>
<table>
<tr><th>file</th><th>requested spacing</th><th>requested orientation</th><th>applied spacing</th><th>applied orientation</th><th>verified by</th><th>error</th></tr>
{{range .PreprocessRows}}
<tr>
<td>{{.Name}}</td>
<td>{{.RequestedSpacing}}</td>
<td>{{.RequestedOrientation}}</td>
<td>{{.AppliedSpacing}}</td>
<td>{{.AppliedOrientation}}</td>
<td>{{.VerifiedBy}}</td>
<td>{{if .Error}}<span class="bad">{{.Error}}</span>{{end}}</td>
</tr>
{{end}}
</table>
{{end}}

</body>
</html>

{{define "summary"}}
<h2>Summary ({{.Scope}})</h2>
<table>
<tr><th>images</th><th>labels</th><th>files with issues</th><th>spacing consistent</th><th>orientation consistent</th></tr>
<tr>
<td>{{.NumImages}}</td>
<td>{{.NumLabels}}</td>
<td>{{.FilesWithIssues}}</td>
<td>{{if .SpacingConsistency}}<span class="ok">yes</span>{{else}}<span class="bad">no</span>{{end}}</td>
<td>{{if .OrientationConsistency}}<span class="ok">yes</span>{{else}}<span class="bad">no</span>{{end}}</td>
</tr>
</table>
{{end}}
`))

type fileRow struct {
	Name        string
	Pairing     string
	Shape       string
	Spacing     string
	Orientation string
	Issues      string
	Preview     string
}

type preprocessRow struct {
	Name                 string
	RequestedSpacing     string
	RequestedOrientation string
	AppliedSpacing       string
	AppliedOrientation   string
	VerifiedBy           string
	Error                string
}

type htmlView struct {
	*Report
	FileRows       []fileRow
	PreprocessRows []preprocessRow
	HasPreviews    bool
}

// WriteHTML renders the report to path. Rows are emitted in filename
// order so re-rendering the same report is byte-stable.
func WriteHTML(r *Report, path string) error {
	view := htmlView{Report: r}

	names := make([]string, 0, len(r.Files))
	for name := range r.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := r.Files[name]
		row := fileRow{
			Name:    name,
			Pairing: f.PairingStatus,
			Issues:  joinIssues(f.Issues),
			Preview: f.Preview,
		}
		if f.Image != nil {
			row.Shape = fmt.Sprint(f.Image.Shape)
			row.Spacing = fmt.Sprintf("%.4g %.4g %.4g", f.Image.Spacing[0], f.Image.Spacing[1], f.Image.Spacing[2])
			row.Orientation = f.Image.Orientation
		}
		if f.Preview != "" {
			view.HasPreviews = true
		}
		view.FileRows = append(view.FileRows, row)
	}

	if len(r.Preprocess) > 0 {
		names = names[:0]
		for name := range r.Preprocess {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t := r.Preprocess[name]
			row := preprocessRow{
				Name:                 name,
				RequestedSpacing:     fmt.Sprintf("%.4g %.4g %.4g", t.Requested.TargetSpacing[0], t.Requested.TargetSpacing[1], t.Requested.TargetSpacing[2]),
				RequestedOrientation: t.Requested.TargetOrientation,
				VerifiedBy:           t.VerifiedBy,
				Error:                t.Error,
			}
			if t.Applied != nil {
				row.AppliedSpacing = fmt.Sprintf("%.4g %.4g %.4g", t.Applied.ActualSpacing[0], t.Applied.ActualSpacing[1], t.Applied.ActualSpacing[2])
				row.AppliedOrientation = t.Applied.ActualOrientation
			}
			view.PreprocessRows = append(view.PreprocessRows, row)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := htmlTemplate.Execute(f, view); err != nil {
		_ = f.Close()
		return fmt.Errorf("render HTML report: %w", err)
	}
	return f.Close()
}

func joinIssues(issues []validate.IssueCode) string {
	if len(issues) == 0 {
		return ""
	}
	parts := make([]string, len(issues))
	for i, c := range issues {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
