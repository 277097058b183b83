package service

import "errors"

// ErrStorageUnavailable is returned by the R2-backed paths when the server
// runs without cloud storage credentials. Handlers translate it to 503.
var ErrStorageUnavailable = errors.New("cloud storage is not configured")
