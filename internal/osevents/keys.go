package osevents

// Media key codes carried in system-defined (subtype 8) events.
const (
	keySoundUp        = 0
	keySoundDown      = 1
	keyBrightnessUp   = 2
	keyBrightnessDown = 3
	keyMute           = 7
)

// mediaKeyKind maps a media key code to the event kind it produces. Only key
// presses count; releases and unrelated keys are ignored.
func mediaKeyKind(code int, down bool) (Kind, bool) {
	if !down {
		return 0, false
	}
	switch code {
	case keySoundUp, keySoundDown, keyMute:
		return KindVolumeKey, true
	case keyBrightnessUp, keyBrightnessDown:
		return KindBrightnessKey, true
	default:
		return 0, false
	}
}

// decodeMediaKey splits the data1 field of a system-defined event into key
// code and pressed state.
func decodeMediaKey(data1 int64) (code int, down bool) {
	code = int((data1 & 0xFFFF0000) >> 16)
	flags := int(data1 & 0xFFFF)
	down = (flags&0xFF00)>>8 == 0xA
	return code, down
}
