package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"time"

	"rpi-weatherstation/internal/readings"
)

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"stars": stars,
	"f1":    func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"clock": func(t time.Time) string { return t.UTC().Format("15:04:05 UTC") },
}

// stars renders a rating such as "***" out of five.
func stars(rating string) string {
	n := min(strings.Count(rating, "*"), 5)
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates loads the embedded templates. Call during startup before
// serving requests.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// DashboardData is the current state of the station. Nil readings render
// as "no reading yet".
type DashboardData struct {
	StationID string
	Updated   time.Time
	BME280    *readings.BME280Reading
	VEML7700  *readings.VEML7700Reading
	SGP40     *readings.SGP40Reading
	Enabled   map[string]bool
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderCurrentPartial executes only the readings block.
func RenderCurrentPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/current.html", data)
}
