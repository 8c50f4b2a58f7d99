package plan

import (
	"github.com/joshuapare/heapkit/heap/scheduler"
	"github.com/joshuapare/heapkit/pkg/types"
)

// EdgesPerPacket caps the references carried by one trace work item.
const EdgesPerPacket = 512

// ProcessEdges traces a packet of references. Objects it newly marks are
// collected and handed to a ScanObjects item, whose edges come back as new
// ProcessEdges items.
type ProcessEdges struct {
	plan  *FreeListMarkSweep
	edges []types.ObjectReference
	nodes []types.ObjectReference // newly marked, to scan
}

// NewProcessEdges creates a trace packet.
func NewProcessEdges(p *FreeListMarkSweep, edges []types.ObjectReference) *ProcessEdges {
	return &ProcessEdges{plan: p, edges: edges}
}

// TraceObject returns obj unchanged. If obj is not null and was not yet
// marked this cycle, it is marked and queued for scanning.
func (pe *ProcessEdges) TraceObject(obj types.ObjectReference) types.ObjectReference {
	if obj.IsNull() {
		return obj
	}
	if pe.plan.TraceObject(obj) {
		pe.nodes = append(pe.nodes, obj)
	}
	return obj
}

// Pending returns the objects queued for scanning.
func (pe *ProcessEdges) Pending() []types.ObjectReference { return pe.nodes }

// Do implements scheduler.Work.
func (pe *ProcessEdges) Do(w *scheduler.Worker) {
	for _, e := range pe.edges {
		pe.TraceObject(e)
	}
	pe.flush(w)
}

func (pe *ProcessEdges) flush(w *scheduler.Worker) {
	if len(pe.nodes) == 0 {
		return
	}
	w.AddWork(scheduler.Closure, &ScanObjects{plan: pe.plan, objects: pe.nodes})
	pe.nodes = nil
}

// ScanObjects enumerates the edges of marked objects.
type ScanObjects struct {
	plan    *FreeListMarkSweep
	objects []types.ObjectReference
}

// Do implements scheduler.Work.
func (so *ScanObjects) Do(w *scheduler.Worker) {
	p := so.plan
	var packet []types.ObjectReference
	for _, obj := range so.objects {
		p.cycle.scanned.Add(1)
		p.binding.ScanObject(obj, func(child types.ObjectReference) {
			if child.IsNull() {
				return
			}
			packet = append(packet, child)
			if len(packet) == EdgesPerPacket {
				w.AddWork(scheduler.Closure, NewProcessEdges(p, packet))
				packet = nil
			}
		})
	}
	if len(packet) > 0 {
		w.AddWork(scheduler.Closure, NewProcessEdges(p, packet))
	}
}
