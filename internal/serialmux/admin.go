package serialmux

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"tailscale.com/tsweb"
)

var tailTemplate = template.Must(template.New("serial-tail").Parse(`<!DOCTYPE html>
<html>
<head><title>serial tail</title>
<style>body{font-family:monospace} #log{white-space:pre} .c{color:#888}</style>
</head>
<body>
<h1>serial tail</h1>
<p>{{.Lines}} lines read, {{.Dropped}} dropped, {{.Subscribers}} subscribers</p>
<div id="log"></div>
<script>
const log = document.getElementById("log");
const es = new EventSource("/debug/serial-tail-api");
es.onmessage = (ev) => {
  const line = document.createElement("div");
  if (ev.data.startsWith("#")) line.className = "c";
  line.textContent = ev.data;
  log.prepend(line);
  while (log.childNodes.length > 500) log.removeChild(log.lastChild);
};
</script>
</body>
</html>
`))

// AttachAdminRoutes registers the serial tail page, its server-sent events
// feed and a JSON counters endpoint under /debug/.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("serial lines", func() any { return s.Stats().Lines })

	debug.HandleFunc("serial-tail", "live tail of the device serial output", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tailTemplate.Execute(w, s.Stats()); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("serial-stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Stats())
	})

	// Server-Sent Events, one event per line from the port.
	debug.HandleSilentFunc("serial-tail-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
