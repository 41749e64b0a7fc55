package svc

import "errors"

var ErrStorageInitFailed = errors.New("storage initialization failed")
