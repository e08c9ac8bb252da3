package server

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

// shellScript keeps the page body in sync with render messages and exposes
// modbind.set(name, value) for sending set messages.
const shellScript = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "render") {
      document.getElementById("modbind-page").innerHTML = msg.html;
    } else if (msg.type === "error") {
      console.error("modbind:", msg.error);
    }
  };
  window.modbind = {
    set: function (name, value) {
      ws.send(JSON.stringify({type: "set", name: name, value: value}));
    }
  };
})();`

var shellTemplate = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<div id="modbind-page">{{.Body}}</div>
<script>{{.Script}}</script>
</body>
</html>
`))

// Shell is the live preview page: the bound body plus the socket client.
func Shell(title, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return shellTemplate.Execute(w, struct {
			Title  string
			Body   template.HTML
			Script template.JS
		}{
			Title:  title,
			Body:   template.HTML(body),
			Script: template.JS(shellScript),
		})
	})
}
