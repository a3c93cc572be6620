package worker

import "errors"

// ErrRetire, returned (possibly wrapped) by a Processor, stops its worker
// after the current job without failing the pool. Other workers keep going.
var ErrRetire = errors.New("worker retired")
