package report

import (
	"html/template"
	"io"

	"github.com/nik1740/netspeed/pkg/measure"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"mbps": func(bytesPerSec float64) float64 { return bytesPerSec * 8 / 1e6 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>netspeed report</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: right; }
th { background: #f0f0f0; }
h2 { margin-top: 2rem; }
</style>
</head>
<body>
<h1>netspeed report</h1>
<p>protocol: {{.Result.Protocol}} &middot; version: {{.Version}} &middot; generated: {{.Timestamp}}</p>

{{if .Result.Latency}}
<h2>Latency</h2>
<table>
<tr><th>count</th><th>dropped</th><th>loss rate</th><th>min ms</th><th>avg ms</th><th>max ms</th><th>jitter ms</th></tr>
<tr>
<td>{{.Result.Latency.Count}}</td>
<td>{{.Result.Latency.DroppedCount}}</td>
<td>{{printf "%.2f" .Result.Latency.LossRate}}</td>
<td>{{printf "%.3f" .Result.Latency.MinRTT}}</td>
<td>{{printf "%.3f" .Result.Latency.AvgRTT}}</td>
<td>{{printf "%.3f" .Result.Latency.MaxRTT}}</td>
<td>{{printf "%.3f" .Result.Latency.Jitter}}</td>
</tr>
</table>
{{end}}

{{if .Result.Download}}
<h2>Download</h2>
<table>
<tr><th>size</th><th>success</th><th>failed</th><th>success rate</th><th>Mbps</th><th>retries</th></tr>
{{range .Result.Download}}
<tr>
<td>{{.PayloadSize}}</td>
<td>{{.Result.SuccessCount}}</td>
<td>{{.Result.FailureCount}}</td>
<td>{{printf "%.2f" .Result.SuccessRate}}</td>
<td>{{printf "%.2f" (mbps .Result.AvgThroughput)}}</td>
<td>{{.Result.TotalRetries}}</td>
</tr>
{{end}}
</table>
{{end}}

{{if .Result.Upload}}
<h2>Upload</h2>
<table>
<tr><th>size</th><th>success</th><th>failed</th><th>success rate</th><th>Mbps</th><th>retries</th></tr>
{{range .Result.Upload}}
<tr>
<td>{{.PayloadSize}}</td>
<td>{{.Result.SuccessCount}}</td>
<td>{{.Result.FailureCount}}</td>
<td>{{printf "%.2f" .Result.SuccessRate}}</td>
<td>{{printf "%.2f" (mbps .Result.AvgThroughput)}}</td>
<td>{{.Result.TotalRetries}}</td>
</tr>
{{end}}
</table>
{{end}}

</body>
</html>
`))

// renderHTML streams a presentation-only rendering of r into w. There is
// no corresponding parser: HTML is an output format, never an input one.
func renderHTML(w io.Writer, r measure.TestReport) error {
	return reportTemplate.Execute(w, r)
}
