// ABOUTME: Tests for snapshot report rendering
// ABOUTME: Covers Markdown sections and goldmark HTML output

package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/state"
)

func testReport() Report {
	return Report{
		Record: state.Record{
			ID:                1,
			Temperature:       30,
			Humidity:          45.5,
			CorrelationVector: []float64{0.8, 0.2, 0.5},
			Parameters: state.Parameters{
				CustomerID: 7,
				FailurePredictions: []state.FailurePrediction{
					{Component: "compressor", Probability: 0.5, EstimatedTime: 1772366400},
				},
				ServiceHistory: []state.ServiceEvent{
					{Timestamp: 1772366400, ServiceType: "filter | replace"},
				},
			},
		},
		Owner: "agent-1",
		Correlations: []correlation.Record{
			{DeviceA: 1, DeviceB: 2, Degree: 0.9},
			{DeviceA: 1, DeviceB: 3, Degree: 0.19},
		},
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(testReport())

	assert.Contains(t, md, "# State 1")
	assert.Contains(t, md, "agent `agent-1`")
	assert.Contains(t, md, "| Temperature | 30.00 |")
	assert.Contains(t, md, "0.800, 0.200, 0.500")
	assert.Contains(t, md, "| compressor | 50% |")
	assert.Contains(t, md, `filter \| replace`)
	assert.Contains(t, md, "| 1 / 2 | 0.900 **high** |")
	assert.Contains(t, md, "| 1 / 3 | 0.190 |")
	assert.Contains(t, md, "_Generated 2026-03-01T12:00:00Z_")
}

func TestMarkdown_Minimal(t *testing.T) {
	md := Markdown(Report{Record: state.Record{ID: 4}})

	assert.Contains(t, md, "| Correlation vector | empty |")
	assert.NotContains(t, md, "## Failure predictions")
	assert.NotContains(t, md, "## Correlations")
	assert.NotContains(t, md, "Generated")
}

func TestRenderer_HTML(t *testing.T) {
	html, err := New().HTMLString(testReport())
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>State 1</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<strong>high</strong>")
	assert.Contains(t, html, "<code>agent-1</code>")
}
