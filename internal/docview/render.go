// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docview

import (
	"bytes"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type page struct {
	Doc    *Document
	Fields []pageField
	Print  bool
}

type pageField struct {
	Label string
	Value string
	Long  bool
}

var labelCaser = cases.Title(language.English)

// fieldLabel turns part_number into "Part Number".
func fieldLabel(name string) string {
	return labelCaser.String(strings.ReplaceAll(name, "_", " "))
}

// renderDocument renders doc as a standalone HTML page. html/template
// escapes every field value.
func renderDocument(doc *Document, printable bool) ([]byte, error) {
	p := page{Doc: doc, Print: printable}
	for _, f := range doc.Fields {
		if f.Name == "title" {
			continue
		}
		p.Fields = append(p.Fields, pageField{
			Label: fieldLabel(f.Name),
			Value: f.Value,
			Long:  strings.Contains(f.Value, "\n") || len(f.Value) > 80,
		})
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Doc.Title}}</title>
    <style>
        body { margin: 0; background: #f4f7fa; color: #1c2833; font: 15px/1.6 -apple-system, "Segoe UI", Roboto, sans-serif; }
        .sheet { max-width: 820px; margin: 32px auto; background: #fff; border: 1px solid #c9d6e1; border-radius: 6px; padding: 28px 32px; }
        .kind { text-transform: uppercase; letter-spacing: .08em; color: #5f7485; font-size: .8em; }
        h1 { margin: 4px 0 20px; font-size: 1.6em; }
        dl { display: grid; grid-template-columns: 180px 1fr; gap: 8px 16px; margin: 0; }
        dt { font-weight: 600; color: #1b6f99; }
        dd { margin: 0; }
        dd.long { white-space: pre-wrap; }
    </style>
    {{- if .Print}}
    <style media="print">
        @page { size: A4; margin: 18mm; }
        body { background: #fff; }
        .sheet { border: none; margin: 0; padding: 0; max-width: none; }
        dl { break-inside: auto; }
        dt, dd { break-inside: avoid; }
    </style>
    {{- end}}
</head>
<body>
    <article class="sheet">
        <div class="kind">{{.Doc.Table}} &middot; {{.Doc.ID}}</div>
        <h1>{{.Doc.Title}}</h1>
        <dl>
            {{- range .Fields}}
            <dt>{{.Label}}</dt>
            <dd{{if .Long}} class="long"{{end}}>{{.Value}}</dd>
            {{- end}}
        </dl>
    </article>
</body>
</html>
`))
