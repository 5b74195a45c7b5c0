package clients

import "errors"

// ErrRemoteNotFound indicates the remote system has no such resource.
// Compensators and remediation treat it as already-released.
var ErrRemoteNotFound = errors.New("remote resource not found")

// ErrRemoteConflict indicates the remote system already holds a resource
// with the requested identity, typically left by a prior attempt. Handlers
// use it to distinguish double-allocation from other failures.
var ErrRemoteConflict = errors.New("remote resource already exists")
