package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	syncPkg "github.com/teranos/histsync/sync"
)

// progressBars renders one pterm progress bar per transferring operation.
type progressBars struct {
	bar *pterm.ProgressbarPrinter
}

var _ syncPkg.Progress = (*progressBars)(nil)

func (p *progressBars) Start(op syncPkg.Operation, total uint64) {
	p.Close()
	if total == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(int(total)).
		WithTitle(fmt.Sprintf("%-8s %s", op.Kind(), op.Key())).
		Start()
	if err != nil {
		return
	}
	p.bar = bar
}

func (p *progressBars) Advance(_ syncPkg.Operation, done, _ uint64) {
	if p.bar == nil {
		return
	}
	if delta := int(done) - p.bar.Current; delta > 0 {
		p.bar.Add(delta)
	}
}

func (p *progressBars) Finish(syncPkg.Operation, uint64) {
	p.Close()
}

// Close stops a bar left open by a failed operation.
func (p *progressBars) Close() {
	if p.bar != nil {
		p.bar.Stop()
		p.bar = nil
	}
}
