package bundle

import (
	"encoding/hex"
	"fmt"
	"html"
	"strings"
)

// Timeline renders b as a deterministic HTML document: a pure function
// of the bundle's contents, byte-for-byte reproducible given the same
// bundle.
func Timeline(b *IncidentBundle) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	sb.WriteString(fmt.Sprintf("<title>Incident bundle %s</title></head><body>\n", html.EscapeString(b.ID)))
	sb.WriteString(fmt.Sprintf("<h1>Incident bundle %s</h1>\n", html.EscapeString(b.ID)))
	sb.WriteString(fmt.Sprintf("<p>Window: %d &ndash; %d</p>\n", b.Window.Start, b.Window.End))
	sb.WriteString("<table>\n<thead><tr><th>timestamp</th><th>level</th><th>counter</th><th>message</th><th>mac</th></tr></thead>\n<tbody>\n")
	for _, e := range b.Logs {
		sb.WriteString("<tr>")
		sb.WriteString(fmt.Sprintf("<td>%d</td>", e.Timestamp))
		sb.WriteString(fmt.Sprintf("<td>%s</td>", html.EscapeString(e.Level.String())))
		sb.WriteString(fmt.Sprintf("<td>%d</td>", e.Counter))
		sb.WriteString(fmt.Sprintf("<td>%s</td>", html.EscapeString(string(e.Message))))
		sb.WriteString(fmt.Sprintf("<td><code>%s</code></td>", hex.EncodeToString(e.MAC[:])))
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>\n</body></html>\n")
	return sb.String()
}
