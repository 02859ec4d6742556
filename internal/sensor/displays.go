package sensor

import (
	"fmt"
	"strings"
)

// Display describes one active display.
type Display struct {
	ID     uint32
	Width  int
	Height int
}

// Displays enumerates the active displays.
type Displays interface {
	Active() ([]Display, error)
}

// Signature renders a display layout as a comparable string. Two layouts with
// the same signature are the same configuration.
func Signature(ds []Display) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = fmt.Sprintf("%d:%dx%d", d.ID, d.Width, d.Height)
	}
	return strings.Join(parts, ",")
}
