// Package web embeds the console's HTML templates and browser assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"zvision-console/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var funcs = template.FuncMap{
	"humanize": model.HumanizeKey,
}

// Templates parses every page template. Page names are the file names, e.g. "login.html".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// Static serves the browser assets rooted at /static.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
