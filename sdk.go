package godaq

import (
	"fmt"
	"os"
	"sync"
)

// The armband vendor ships its hub runtime as a companion installation that
// must be registered exactly once per process before any hub connection is
// made. The registration is process-wide state, so it lives here rather than
// on the device adapter: constructing several armband devices must not
// re-initialize the runtime.

var hubSDK struct {
	lock        sync.Mutex
	initialized bool
	path        string
}

// InitHubSDK registers the vendor hub runtime installed at path. The first
// call wins; later calls with the same path are no-ops and later calls with a
// different path are an error, since the runtime cannot be re-pointed while
// loaded.
func InitHubSDK(path string) error {
	hubSDK.lock.Lock()
	defer hubSDK.lock.Unlock()
	if hubSDK.initialized {
		if path != hubSDK.path {
			return fmt.Errorf("hub SDK already initialized with path %q, cannot switch to %q",
				hubSDK.path, path)
		}
		return nil
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("hub SDK path %q: %v", path, err)
		}
	}
	hubSDK.path = path
	hubSDK.initialized = true
	return nil
}

// TeardownHubSDK releases the process-wide registration. Only tests and
// programs that are completely done with armband hardware should call it.
func TeardownHubSDK() {
	hubSDK.lock.Lock()
	defer hubSDK.lock.Unlock()
	hubSDK.initialized = false
	hubSDK.path = ""
}

func hubSDKInitialized() bool {
	hubSDK.lock.Lock()
	defer hubSDK.lock.Unlock()
	return hubSDK.initialized
}
