package keychain

import "errors"

// errNativeNotFound is returned by native backends for a missing entry.
var errNativeNotFound = errors.New("key not found")
