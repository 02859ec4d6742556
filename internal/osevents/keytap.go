package osevents

import "time"

// KeyTap reports volume and brightness key presses.
type KeyTap struct {
	Now func() time.Time
}

func (k *KeyTap) clock() func() time.Time {
	if k.Now != nil {
		return k.Now
	}
	return time.Now
}
