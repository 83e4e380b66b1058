// Package rendering produces the human-readable documents of a checkpoint.
package rendering

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/spigell/hh-checkpoint/internal/ai"
	"github.com/spigell/hh-checkpoint/internal/checkpoint"
	"github.com/spigell/hh-checkpoint/internal/dedup"
)

const FileLetterMarkdown = "letter.md"

//go:embed templates/*.tmpl
var templatesFS embed.FS

var funcs = map[string]any{
	"paragraphs": paragraphs,
}

var (
	markdownTmpl = texttemplate.Must(texttemplate.New("letter.md.tmpl").Funcs(funcs).ParseFS(templatesFS, "templates/letter.md.tmpl"))
	emailTmpl    = texttemplate.Must(texttemplate.New("email.txt.tmpl").Funcs(funcs).ParseFS(templatesFS, "templates/email.txt.tmpl"))
	htmlTmpl     = htmltemplate.Must(htmltemplate.New("letter.html.tmpl").Funcs(funcs).ParseFS(templatesFS, "templates/letter.html.tmpl"))
)

// Data is everything the templates can reference.
type Data struct {
	Subject   string
	Body      string
	Candidate string
	Posting   dedup.PostingSnapshot
}

// TemplateError wraps a failed template execution.
type TemplateError struct {
	File  string
	Cause error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("render %s: %v", e.File, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Render turns a generated letter into the checkpoint documents keyed by file name.
func Render(letter *ai.Letter, rec dedup.Record, candidate string) (map[string][]byte, error) {
	if letter == nil || strings.TrimSpace(letter.Body) == "" {
		return nil, errors.New("letter body is empty")
	}

	data := Data{
		Subject:   strings.TrimSpace(letter.Subject),
		Body:      strings.TrimSpace(letter.Body),
		Candidate: strings.TrimSpace(candidate),
		Posting:   rec.Posting,
	}
	if data.Subject == "" {
		data.Subject = defaultSubject(rec.Posting)
	}

	out := make(map[string][]byte, 3)
	var buf bytes.Buffer
	if err := markdownTmpl.Execute(&buf, data); err != nil {
		return nil, &TemplateError{File: FileLetterMarkdown, Cause: err}
	}
	out[FileLetterMarkdown] = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return nil, &TemplateError{File: checkpoint.FileLetterHTML, Cause: err}
	}
	out[checkpoint.FileLetterHTML] = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return nil, &TemplateError{File: checkpoint.FileEmailText, Cause: err}
	}
	out[checkpoint.FileEmailText] = bytes.Clone(buf.Bytes())

	return out, nil
}

func defaultSubject(p dedup.PostingSnapshot) string {
	if p.Company == "" {
		return "Application: " + p.Title
	}
	return fmt.Sprintf("Application: %s at %s", p.Title, p.Company)
}

// paragraphs splits text on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}
