package sensor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"howett.net/plist"

	"github.com/sweeney/hud-worker/internal/procctl"
)

// DefaultDiagPath is the CoreBrightness diagnostic utility shipped with macOS.
const DefaultDiagPath = "/usr/libexec/corebrightnessdiag"

// errNoBuiltIn is returned when the diagnostic output lists no built-in display
// with a brightness value.
var errNoBuiltIn = errors.New("no built-in display brightness in diagnostic output")

// DiagProbe reads brightness from the out-of-process diagnostic utility.
// It works on hardware where the standard IOKit path is not exposed.
type DiagProbe struct {
	Path   string
	runner procctl.Runner
}

// NewDiagProbe creates a DiagProbe. Empty path uses DefaultDiagPath and a nil
// runner uses procctl.ExecRunner.
func NewDiagProbe(path string, runner procctl.Runner) *DiagProbe {
	if path == "" {
		path = DefaultDiagPath
	}
	if runner == nil {
		runner = procctl.ExecRunner{}
	}
	return &DiagProbe{Path: path, runner: runner}
}

// ReadBrightness runs "status-info" and extracts the built-in display brightness.
func (p *DiagProbe) ReadBrightness(ctx context.Context) (float64, error) {
	out, err := p.runner.Run(ctx, p.Path, "status-info")
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", p.Path, err)
	}
	return parseDiagStatus(out)
}

// parseDiagStatus decodes the status plist. The relevant shape is
// CBDisplays -> {id: {Display: {DisplayServicesIsBuiltInDisplay, DisplayServicesBrightness}}}.
func parseDiagStatus(data []byte) (float64, error) {
	var doc map[string]interface{}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("decode status plist: %w", err)
	}

	displays, ok := doc["CBDisplays"].(map[string]interface{})
	if !ok {
		return 0, errNoBuiltIn
	}

	ids := make([]string, 0, len(displays))
	for id := range displays {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry, ok := displays[id].(map[string]interface{})
		if !ok {
			continue
		}
		info, ok := entry["Display"].(map[string]interface{})
		if !ok {
			continue
		}
		if builtIn, _ := info["DisplayServicesIsBuiltInDisplay"].(bool); !builtIn {
			continue
		}
		if v, ok := toFloat(info["DisplayServicesBrightness"]); ok {
			return v, nil
		}
	}
	return 0, errNoBuiltIn
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
