package http

import (
	"html/template"
	"io"
	"net/http"

	"github.com/chzchzchz/sniffrx/sniffer"
)

const indexTmplStr = `<!DOCTYPE html>
<html>
<head>
<title>sniffrx</title>
<style>
table, th, td {
  border: 1px solid black;
  text-align: right;
}
td.bits {
  text-align: left;
  font-family: monospace;
}
</style>
</head>
<body>
<h1>sniffrx</h1>
<hr/>

<h2>Engine &#x1F4FB;</h2>
<ul>
<li>State: {{.Status.State}}</li>
<li>Samples consumed: {{.Status.Cursor}}</li>
<li>Demodulation: {{.Status.Config}}</li>
<li>Sink: {{if .Status.SinkActive}}writing{{else}}none (<a href="/api/export?view={{.View}}">export</a>){{end}}</li>
</ul>
<p>
View:
<a href="?view=bits">bits</a>
<a href="?view=hex">hex</a>
<a href="?view=ascii">ascii</a>
</p>
<form method="post" action="/api/clear?redirect=/"><input type="submit" value="clear"/></form>

<h2>Messages ({{.Status.Messages}})</h2>
<table>
<tr><th>#</th><th>Start</th><th>Pause</th><th>Data</th></tr>
{{range $_, $m := .Messages}}
<tr><td>{{$m.Index}}</td><td>{{$m.Start}}</td><td>{{$m.Pause}}</td><td class="bits">{{$m.Text}}</td></tr>
{{end}}
</table>
</body>
</html>
`

// indexMessages is the number of most recent messages on the index page.
const indexMessages = 100

type indexHandler struct {
	h    *handler
	tmpl *template.Template
}

type indexPage struct {
	Status   Status
	View     string
	Messages []RenderedMessage
}

func newIndexHandler(h *handler) http.Handler {
	return &indexHandler{h: h, tmpl: template.Must(template.New("index").Parse(indexTmplStr))}
}

func (ih *indexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	e := ih.h.e
	view := r.URL.Query().Get("view")
	if view == "" {
		view = "bits"
	}
	f, err := sniffer.FormatterByName(view)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n := e.MessageCount()
	from := n - indexMessages
	if from < 0 {
		from = 0
	}
	page := indexPage{Status: ih.h.status(), View: view}
	for i, m := range e.Messages(from, n) {
		page.Messages = append(page.Messages, RenderedMessage{
			Index: from + i,
			Start: m.Start,
			End:   m.End,
			Pause: m.Pause,
			Text:  f.Format(m),
		})
	}
	if err := ih.tmpl.Execute(w, page); err != nil {
		io.WriteString(w, err.Error())
	}
}
