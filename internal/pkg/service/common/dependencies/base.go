package dependencies

import (
	"github.com/benbjohnson/clock"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
)

// baseScope dependencies container implements BaseScope interface.
type baseScope struct {
	logger    log.Logger
	telemetry telemetry.Telemetry
	clock     clock.Clock
	proc      *servicectx.Process
}

func NewBaseScope(logger log.Logger, tel telemetry.Telemetry, clk clock.Clock, proc *servicectx.Process) BaseScope {
	return newBaseScope(logger, tel, clk, proc)
}

func newBaseScope(logger log.Logger, tel telemetry.Telemetry, clk clock.Clock, proc *servicectx.Process) *baseScope {
	return &baseScope{
		logger:    logger,
		telemetry: tel,
		clock:     clk,
		proc:      proc,
	}
}

func (v *baseScope) Logger() log.Logger {
	return v.logger
}

func (v *baseScope) Telemetry() telemetry.Telemetry {
	return v.telemetry
}

func (v *baseScope) Clock() clock.Clock {
	return v.clock
}

func (v *baseScope) Process() *servicectx.Process {
	return v.proc
}
