package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"github.com/samarkanov/airflow-smolagents/internal/model"
)

const documentTimeFormat = "2006-01-02 15:04:05"

var documentTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format(documentTimeFormat) },
	"join":  func(s []string) string { return strings.Join(s, ", ") },
	"price": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
	"ma": func(v null.Float) string {
		if !v.Valid {
			return ""
		}
		return strconv.FormatFloat(v.Float64, 'f', 2, 64)
	},
	"src": func(c model.Chart) template.URL { return template.URL(c.DataURI()) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Report.Title}} - {{stamp .Report.GeneratedAt}}</title>
<style>
body { background-color: #121212; color: #e0e0e0; font-family: Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; margin: 0; }
.container { max-width: 1200px; margin: 20px auto; padding: 20px; background-color: #1e1e1e; border-radius: 8px; }
h1, h2 { color: #ffffff; border-bottom: 2px solid #03dac6; padding-bottom: 10px; }
h1 { font-size: 2.2em; text-align: center; }
.generated { text-align: center; color: #bbb; }
.summary, .data-section { background-color: #2c2c2c; padding: 20px; border-radius: 8px; margin-top: 20px; }
.plot-container { text-align: center; margin-top: 30px; }
.plot-container img { max-width: 100%; height: auto; border-radius: 8px; margin-top: 15px; }
.styled-table { width: 100%; border-collapse: collapse; margin-top: 20px; font-size: 0.9em; }
.styled-table thead tr { background-color: #03dac6; color: #121212; text-align: left; }
.styled-table th, .styled-table td { padding: 8px 12px; }
.styled-table tbody tr { border-bottom: 1px solid #333; }
.styled-table tbody tr:nth-of-type(even) { background-color: #2a2a2a; }
footer { text-align: center; margin-top: 30px; font-size: 0.8em; color: #777; }
</style>
</head>
<body>
<div class="container">
<header>
<h1>{{.Report.Title}}</h1>
<p class="generated">Generated on: {{stamp .Report.GeneratedAt}}</p>
</header>
<section class="summary" id="summary">
<h2>Executive Summary</h2>
<p>Closing prices compared with the <strong>{{.Report.Window}}-tick moving average</strong> for: <strong>{{join .Report.Tickers}}</strong>.</p>
<table class="styled-table">
<thead><tr><th>Ticker</th><th>Rows</th><th>From</th><th>To</th><th>Last close</th><th>High close</th><th>Low close</th><th>Latest MA_{{.Report.Window}}</th></tr></thead>
<tbody>
{{- range .Report.Summaries}}
<tr><td>{{.Ticker}}</td><td>{{.Rows}}</td><td>{{stamp .First}}</td><td>{{stamp .Last}}</td><td>{{price .LastClose}}</td><td>{{price .HighClose}}</td><td>{{price .LowClose}}</td><td>{{ma .LatestMA}}</td></tr>
{{- end}}
</tbody>
</table>
</section>
<section class="plots">
{{- range .Charts}}
<div class="plot-container" id="plot-{{.Ticker}}">
<h2>Analysis for {{.Ticker}}</h2>
<img src="{{src .}}" alt="Plot for {{.Ticker}}">
</div>
{{- end}}
</section>
<section class="data-section" id="data">
<h2>Complete Data with Moving Average</h2>
<table class="styled-table">
<thead><tr>{{range .Report.Combined.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Report.Combined.Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</section>
<footer><p>Generated by the moving average report pipeline.</p></footer>
</div>
</body>
</html>
`))

type documentData struct {
	Report *model.Report
	Charts []model.Chart
}

// RenderHTML renders the complete document into memory.
func RenderHTML(rep *model.Report) ([]byte, error) {
	data := documentData{Report: rep}
	for _, t := range rep.Tickers {
		c, ok := rep.Sections[t]
		if !ok {
			return nil, fmt.Errorf("no chart for ticker %s", t)
		}
		data.Charts = append(data.Charts, c)
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}
