//go:build darwin

package sensor

/*
#cgo darwin LDFLAGS: -framework IOKit -framework CoreFoundation -framework CoreGraphics
#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>
#include <IOKit/IOKitLib.h>
#include <IOKit/graphics/IOGraphicsLib.h>

static int readDisplayBrightness(float *out) {
        io_service_t service = IOServiceGetMatchingService(kIOMasterPortDefault, IOServiceMatching("IODisplayConnect"));
        if (service == 0) {
                return -1;
        }
        IOReturn result = IODisplayGetFloatParameter(service, kNilOptions, CFSTR(kIODisplayBrightnessKey), out);
        IOObjectRelease(service);
        return result == kIOReturnSuccess ? 0 : (int)result;
}

#define MAX_DISPLAYS 16

static int activeDisplays(uint32_t *ids, size_t *widths, size_t *heights) {
        CGDirectDisplayID list[MAX_DISPLAYS];
        uint32_t count = 0;
        if (CGGetActiveDisplayList(MAX_DISPLAYS, list, &count) != kCGErrorSuccess) {
                return -1;
        }
        for (uint32_t i = 0; i < count; i++) {
                ids[i] = list[i];
                widths[i] = CGDisplayPixelsWide(list[i]);
                heights[i] = CGDisplayPixelsHigh(list[i]);
        }
        return (int)count;
}
*/
import "C"

import "fmt"

const maxDisplays = 16

// IOKitProbe reads brightness through IODisplayGetFloatParameter. It fails on
// machines whose display controller does not expose IODisplayConnect.
type IOKitProbe struct{}

// readBrightness queries the first IODisplayConnect service.
func (IOKitProbe) readBrightness() (float64, error) {
	var v C.float
	if rc := C.readDisplayBrightness(&v); rc != 0 {
		return 0, fmt.Errorf("IODisplayGetFloatParameter: %d", int(rc))
	}
	return float64(v), nil
}

// CGDisplays lists active displays through CoreGraphics.
type CGDisplays struct{}

// Active returns the active display list.
func (CGDisplays) Active() ([]Display, error) {
	var (
		ids     [maxDisplays]C.uint32_t
		widths  [maxDisplays]C.size_t
		heights [maxDisplays]C.size_t
	)
	n := int(C.activeDisplays(&ids[0], &widths[0], &heights[0]))
	if n < 0 {
		return nil, fmt.Errorf("CGGetActiveDisplayList failed")
	}
	out := make([]Display, n)
	for i := 0; i < n; i++ {
		out[i] = Display{ID: uint32(ids[i]), Width: int(widths[i]), Height: int(heights[i])}
	}
	return out, nil
}
