// ABOUTME: Markdown and HTML reports for a single state snapshot
// ABOUTME: Uses goldmark with the table extension for the HTML form

package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/state"
)

// Report is everything shown for one device.
type Report struct {
	Record       state.Record
	Owner        string
	Correlations []correlation.Record
	GeneratedAt  time.Time
}

// Renderer converts reports to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// HTML writes the report as an HTML fragment.
func (r *Renderer) HTML(w io.Writer, rep Report) error {
	if err := r.md.Convert([]byte(Markdown(rep)), w); err != nil {
		return fmt.Errorf("converting report: %w", err)
	}
	return nil
}

// HTMLString is HTML into a string.
func (r *Renderer) HTMLString(rep Report) (string, error) {
	var buf bytes.Buffer
	if err := r.HTML(&buf, rep); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markdown renders the report text.
func Markdown(rep Report) string {
	rec := rep.Record
	var b strings.Builder

	fmt.Fprintf(&b, "# State %d\n\n", rec.ID)
	if rep.Owner != "" {
		fmt.Fprintf(&b, "Owned by agent `%s`.\n\n", rep.Owner)
	}

	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Temperature | %.2f |\n", rec.Temperature)
	fmt.Fprintf(&b, "| Humidity | %.2f |\n", rec.Humidity)
	fmt.Fprintf(&b, "| Pressure | %.2f |\n", rec.Pressure)
	fmt.Fprintf(&b, "| Airflow | %.2f |\n", rec.Airflow)
	fmt.Fprintf(&b, "| Customer | %d |\n", rec.Parameters.CustomerID)
	fmt.Fprintf(&b, "| Service priority | %d |\n", rec.Parameters.ServicePriority)
	fmt.Fprintf(&b, "| Correlation vector | %s |\n", formatVector(rec.CorrelationVector))
	b.WriteString("\n")

	if preds := rec.Parameters.FailurePredictions; len(preds) > 0 {
		b.WriteString("## Failure predictions\n\n| Component | Probability | Estimated |\n|---|---|---|\n")
		for _, p := range preds {
			fmt.Fprintf(&b, "| %s | %.0f%% | %s |\n",
				escapeCell(p.Component), p.Probability*100, time.Unix(p.EstimatedTime, 0).UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	if hist := rec.Parameters.ServiceHistory; len(hist) > 0 {
		b.WriteString("## Service history\n\n")
		for _, ev := range hist {
			fmt.Fprintf(&b, "- %s: %s\n", time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02"), escapeCell(ev.ServiceType))
		}
		b.WriteString("\n")
	}

	if len(rep.Correlations) > 0 {
		b.WriteString("## Correlations\n\n| Devices | Degree | Measured |\n|---|---|---|\n")
		for _, c := range rep.Correlations {
			marker := ""
			if correlation.ShouldNotify(c.Degree) {
				marker = " **high**"
			}
			fmt.Fprintf(&b, "| %d / %d | %.3f%s | %s |\n",
				c.DeviceA, c.DeviceB, c.Degree, marker, c.MeasuredAt.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	if !rep.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n", rep.GeneratedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func formatVector(v []float64) string {
	if len(v) == 0 {
		return "empty"
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
