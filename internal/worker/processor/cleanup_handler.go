package processor

import (
	"docconv/internal/worker/workspace"
)

type Cleanup struct {
	ws *workspace.Workspace
}

func NewCleanup(ws *workspace.Workspace) *Cleanup {
	return &Cleanup{ws: ws}
}

// Finish clears the shared result directory once the job is terminal: a
// success, a permanent failure or an exhausted retry budget. A requeued or
// abandoned job leaves it alone; the next render clears it first.
func (c *Cleanup) Finish(d Decision) {
	if d.Action == ActionNone || d.Requeue {
		return
	}
	c.ws.ClearResult()
}
