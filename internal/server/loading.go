package server

import (
	"html/template"
	"net/http"
)

// loadingPage is shown in the dev client while the first bundle builds.
var loadingPage = template.Must(template.New("loading").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}}</title>
  <style>
    body { font-family: -apple-system, sans-serif; background: #0f1020; color: #e2e2f0; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
    .card { text-align: center; }
    .name { font-size: 24px; font-weight: 600; }
    .meta { margin-top: 8px; color: #8a8aa8; font-size: 14px; }
    .spinner { margin: 24px auto 0; width: 28px; height: 28px; border: 3px solid #2a2a48; border-top-color: #6366f1; border-radius: 50%; animation: spin 0.8s linear infinite; }
    @keyframes spin { to { transform: rotate(360deg); } }
  </style>
</head>
<body>
  <div class="card">
    <div class="name">{{.Name}}</div>
    <div class="meta">SDK {{.SDKVersion}} &middot; waiting for the bundler</div>
    <div class="spinner"></div>
  </div>
</body>
</html>
`))

// handleLoading serves the templated loading page.
func (s *Server) handleLoading(w http.ResponseWriter, r *http.Request) {
	config, err := s.service.Builder().AppConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	name := config.Name
	if name == "" {
		name = config.Slug
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	loadingPage.Execute(w, struct {
		Name       string
		SDKVersion string
	}{Name: name, SDKVersion: config.SDKVersion})
}
