package server

import (
	"fmt"
	"strings"

	"github.com/mazznoer/colorgrad"
)

// Banner returns the startup banner shaded with a horizontal gradient.
func Banner(version string) string {
	banner := `
  _                _
 (_)  _ __   ___  | |
 | | | '__| / __| / _' |
 | | | |   | (__ | (_| |
 |_| |_|    \___| \__,_|
 .  .  .  relay  chat  server  [v` + version + `]
`
	grad, err := colorgrad.NewGradient().
		HtmlColors("#0f9b8eff", "#f5f5f5ff").
		Build()
	if err != nil {
		return banner
	}

	lines := strings.Split(banner, "\n")
	width := 0
	for _, line := range lines {
		width = max(width, len(line))
	}

	colors := grad.Colors(uint(width))
	var b strings.Builder
	for _, line := range lines {
		for i, ch := range line {
			r, g, bl, _ := colors[i].RGBA255()
			fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm%c", r, g, bl, ch)
		}
		b.WriteString("\x1b[0m\n")
	}
	return b.String()
}
