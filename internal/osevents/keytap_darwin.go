//go:build darwin

package osevents

/*
#cgo darwin CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework Cocoa
#include <ApplicationServices/ApplicationServices.h>
#include <Cocoa/Cocoa.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

extern CGEventRef goHandleMediaKey(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

// NSEventTypeSystemDefined
static CGEventMask systemDefinedMask(void) {
        return ((CGEventMask)1) << 14;
}

static CFRunLoopSourceRef startMediaKeyTap(uintptr_t handle, CFMachPortRef *tapOut) {
        CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
                                             kCGHeadInsertEventTap,
                                             kCGEventTapOptionListenOnly,
                                             systemDefinedMask(),
                                             goHandleMediaKey,
                                             (void *)handle);
        if (tap == NULL) {
                return NULL;
        }
        CGEventTapEnable(tap, true);
        CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
        *tapOut = tap;
        return source;
}

static int tapDisabled(CGEventType type) {
        return type == kCGEventTapDisabledByTimeout || type == kCGEventTapDisabledByUserInput;
}

static void enableTap(CFMachPortRef tap) {
        CGEventTapEnable(tap, true);
}

// mediaKeyData returns data1 of a media key event, or -1 for anything else.
static int64_t mediaKeyData(CGEventRef event) {
        NSEvent *ev = [NSEvent eventWithCGEvent:event];
        if (ev == nil || ev.type != NSEventTypeSystemDefined || ev.subtype != 8) {
                return -1;
        }
        return (int64_t)ev.data1;
}

static CFRunLoopRef currentRunLoop(void) {
        return CFRunLoopGetCurrent();
}

static void addSourceToRunLoop(CFRunLoopRef loop, CFRunLoopSourceRef source) {
        CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static void runCurrentRunLoop(void) {
        CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef loop) {
        CFRunLoopStop(loop);
}
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"
)

type keyTapStream struct {
	emit     func(Event) error
	now      func() time.Time
	tap      C.CFMachPortRef
	stopLoop func()
	err      error
}

func (s *keyTapStream) handle(data1 int64) {
	if s.err != nil {
		return
	}
	code, down := decodeMediaKey(data1)
	kind, ok := mediaKeyKind(code, down)
	if !ok {
		return
	}
	if err := s.emit(Event{Kind: kind, At: s.now()}); err != nil {
		s.err = err
		s.stopLoop()
	}
}

// Stream installs a listen-only event tap for media keys and runs a CFRunLoop
// on a locked OS thread until ctx is cancelled. Creating the tap fails unless
// the process has the Accessibility or Input Monitoring permission.
func (k *KeyTap) Stream(ctx context.Context, emit func(Event) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stream := &keyTapStream{emit: emit, now: k.clock()}
	handle := cgo.NewHandle(stream)
	defer handle.Delete()

	var tap C.CFMachPortRef
	source := C.startMediaKeyTap(C.uintptr_t(handle), &tap)
	if source == 0 {
		return fmt.Errorf("%w: create media key event tap (check input monitoring permission)", ErrUnavailable)
	}
	defer C.CFRelease(C.CFTypeRef(source))
	defer C.CFRelease(C.CFTypeRef(tap))
	stream.tap = tap

	loop := C.currentRunLoop()
	var stopOnce sync.Once
	stream.stopLoop = func() {
		stopOnce.Do(func() { C.stopRunLoop(loop) })
	}
	C.addSourceToRunLoop(loop, source)

	done := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			stream.stopLoop()
		case <-done:
		}
	}()

	C.runCurrentRunLoop()
	close(done)
	<-watcherDone

	if stream.err != nil {
		return stream.err
	}
	return ctx.Err()
}

//export goHandleMediaKey
func goHandleMediaKey(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	stream, ok := cgo.Handle(uintptr(userInfo)).Value().(*keyTapStream)
	if !ok {
		return event
	}
	// The OS disables slow taps; turn it back on.
	if C.tapDisabled(eventType) != 0 {
		C.enableTap(stream.tap)
		return event
	}
	data1 := int64(C.mediaKeyData(event))
	if data1 >= 0 {
		stream.handle(data1)
	}
	return event
}
