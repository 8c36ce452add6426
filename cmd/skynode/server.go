// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/maruel/serve-dir/loghttp"
)

// state holds the latest record for the HTTP surface.
type state struct {
	lock sync.Mutex
	rec  *record
}

var currentState state

func (s *state) set(r *record) {
	s.lock.Lock()
	s.rec = r
	s.lock.Unlock()
}

func (s *state) get() *record {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.rec
}

var rootTmpl = template.Must(template.New("name").Parse(`
	<html>
	<head>
		<title>skynode</title>
		<meta http-equiv="refresh" content="10">
	</head>
	<body>
	<h1>skynode</h1>
	{{if .}}
	<p>{{.Time}}</p>
	{{if .Env}}<p>Ambient: {{printf "%.2f" .Env.Temperature}}&deg;C, {{printf "%.1f" .Env.Humidity}}%RH, dew point {{printf "%.2f" .Env.DewPoint}}&deg;C</p>{{end}}
	{{if .Light}}<p>Light: full {{.Light.Full}}, IR {{.Light.IR}}, {{.Light.Gain}}/{{.Light.Integration}}, VIS {{printf "%.3f" .Light.VIS}}</p>{{end}}
	{{if .SQM}}<p>SQM: {{printf "%.2f" .SQM.MPSAS}} &plusmn; {{printf "%.3f" .SQM.DMPSAS}} mpsas</p>{{end}}
	{{if .Thermal}}<p>Thermal: Vdd {{printf "%.2f" .Thermal.Vdd}}V, Ta {{printf "%.2f" .Thermal.Ta}}&deg;C, center {{printf "%.2f" .Thermal.Regions.Center}}&deg;C, spread {{printf "%.2f" .Thermal.Regions.Spread}}&deg;C</p>{{end}}
	{{else}}
	<p>No measurement yet.</p>
	{{end}}
	<p><a href="/status.json">status.json</a> &middot; <a href="/data/">data</a></p>
	</body>
	</html>`))

func root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := rootTmpl.Execute(w, currentState.get()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	rec := currentState.get()
	if rec == nil {
		http.Error(w, "no measurement yet", http.StatusServiceUnavailable)
		return
	}
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func startServer(port int, dataDir string) error {
	http.HandleFunc("/", root)
	http.HandleFunc("/status.json", status)
	if dataDir != "" {
		http.Handle("/data/", http.StripPrefix("/data/", &loghttp.Handler{Handler: http.FileServer(http.Dir(dataDir))}))
	}
	fmt.Printf("Listening on %d\n", port)
	go http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	return nil
}
