package form

import (
	"html/template"
	"io"
)

// Title is the page heading
const Title = "Cat vs. Dog Classifier"

const pageHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<div>
<h1>{{.Title}}</h1>
<form method="post" action="{{.Action}}" enctype="multipart/form-data">
<input type="file" name="file">
<button type="submit">Predict</button>
</form>
{{- if .Validation}}
<p class="validation">{{.Validation}}</p>
{{- end}}
{{- if .Label}}
<p>Prediction: {{.Label}}</p>
{{- end}}
</div>
</body>
</html>
`

// Page is the template
var Page = template.Must(template.New("page").Parse(pageHTML))

// View is the data the page template renders
type View struct {
	Title      string
	Action     string
	Label      string
	Validation string
}

// View snapshots the form state for rendering
func (f *Form) View(action string) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return View{
		Title:      Title,
		Action:     action,
		Label:      f.label,
		Validation: f.validation,
	}
}

// Render writes the page for the current state
func (f *Form) Render(w io.Writer) error {
	return Page.Execute(w, f.View("/"))
}

// PredictionText is the text of the prediction paragraph, or "" when the
// paragraph is not shown.
func PredictionText(label string) string {
	if label == "" {
		return ""
	}
	return "Prediction: " + label
}
