package selftest

import (
	"errors"
	"fmt"
)

var (
	ErrNilCheck        = errors.New("selftest: check is required")
	ErrBusy            = errors.New("selftest: a self test is already in progress")
	ErrHostWaitTimeout = errors.New("selftest: timed out waiting for self test to finish")
	ErrShuttingDown    = errors.New("selftest: node is shutting down")
)

type HookStage string

const (
	StagePretest  HookStage = "pretest"
	StagePosttest HookStage = "posttest"
)

// HookError reports a failing pretest or posttest hook. Hook failures abort
// the whole self test and produce no result.
type HookError struct {
	Stage HookStage
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("selftest: %s failed: %v", e.Stage, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
