// Package view renders the server-side pages from templates embedded in the
// binary. Every page is wrapped in layout.html and fills its "content" block.
package view

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/ioea/academy/auth"
)

//go:embed templates/*.html
var files embed.FS

var tplCache = struct {
	sync.RWMutex
	m map[string]*template.Template
}{m: map[string]*template.Template{}}

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"year": func() int { return time.Now().Year() },
		"hasRole": func(s *auth.Session, role string) bool {
			return auth.HasRole(s, auth.Role(role))
		},
		"roleNames": func(roles []auth.Role) []string {
			out := make([]string, len(roles))
			for i, r := range roles {
				out[i] = string(r)
			}
			return out
		},
		// dict creates a map from key-value pairs for passing to sub-templates.
		// Usage: {{ template "partial" (dict "Key1" val1 "Key2" val2) }}
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					continue
				}
				m[key] = values[i+1]
			}
			return m
		},
	}
}

func lookup(name string) (*template.Template, error) {
	tplCache.RLock()
	t, ok := tplCache.m[name]
	tplCache.RUnlock()
	if ok {
		return t, nil
	}
	t, err := template.New("layout.html").Funcs(Funcs()).ParseFS(files, "templates/layout.html", "templates/"+name)
	if err != nil {
		return nil, err
	}
	tplCache.Lock()
	tplCache.m[name] = t
	tplCache.Unlock()
	return t, nil
}

// Render executes the page template name with data and writes it with
// status. Session and Year are injected when absent.
func Render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	if _, exists := data["Year"]; !exists {
		data["Year"] = time.Now().Year()
	}
	if _, exists := data["Session"]; !exists {
		data["Session"] = auth.SessionFromContext(r.Context())
	}
	t, err := lookup(name)
	if err != nil {
		return err
	}
	// Render to a buffer so a template error does not leave a half-written page.
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

// Error renders the generic error page.
func Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := Render(w, r, status, "error.html", map[string]any{"Title": http.StatusText(status), "Message": message}); err != nil {
		http.Error(w, message, status)
	}
}
