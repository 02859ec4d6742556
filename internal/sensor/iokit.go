package sensor

import "context"

// ReadBrightness reads the standard brightness control path.
func (p IOKitProbe) ReadBrightness(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.readBrightness()
}
