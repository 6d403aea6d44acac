// Package render turns state snapshots into human-readable reports.
//
// A Report is built from a state.Record plus any stored correlations for the
// device. Markdown produces the report text; HTML converts it with goldmark
// (tables enabled). The gateway serves the HTML at
// GET /api/states/{id}/report.
package render
