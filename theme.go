package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"strings"

	sprig "github.com/Masterminds/sprig/v3"
)

//go:embed themes
var builtinThemes embed.FS

const (
	themeTemplatesDir = "templates"
	themeStaticDir    = "static"
)

// theme is a set of page templates plus optional static assets.
type theme struct {
	name      string
	fsys      fs.FS
	templates *template.Template
}

// loadTheme resolves name to a built-in theme first and to a theme
// directory on disk second, then parses its templates.
func loadTheme(name string) (*theme, error) {
	fsys, err := themeFS(name)
	if err != nil {
		return nil, err
	}

	t, err := template.New(name).
		Funcs(themeFuncs()).
		ParseFS(fsys, path.Join(themeTemplatesDir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("parsing templates of theme %q: %w", name, err)
	}
	for _, required := range []string{postTemplate, categoryTemplate, homeTemplate} {
		if t.Lookup(required) == nil {
			return nil, fmt.Errorf("theme %q is missing template %s", name, required)
		}
	}

	return &theme{name: name, fsys: fsys, templates: t}, nil
}

func themeFuncs() template.FuncMap {
	funcs := sprig.FuncMap()
	// root turns a page's base URL into a link prefix.
	funcs["root"] = func(baseURL string) string {
		if baseURL == "" {
			return ""
		}
		return strings.TrimSuffix(baseURL, "/") + "/"
	}
	return funcs
}

func themeFS(name string) (fs.FS, error) {
	if isThemeName(name) {
		builtin := path.Join("themes", name)
		if info, err := fs.Stat(builtinThemes, builtin); err == nil && info.IsDir() {
			return fs.Sub(builtinThemes, builtin)
		}
	}

	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("unknown theme %q: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("theme %q is not a directory", name)
	}
	return os.DirFS(name), nil
}

// isThemeName reports whether name may refer to a built-in theme
// rather than only to a path.
func isThemeName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// hasStatic reports whether the theme ships static assets.
func (t *theme) hasStatic() bool {
	info, err := fs.Stat(t.fsys, themeStaticDir)
	return err == nil && info.IsDir()
}
