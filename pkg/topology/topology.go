package topology

import (
	"time"

	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/telem"
)

// Node is one device in the mesh graph.
type Node struct {
	DeviceID     string    `json:"device_id"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	Type         string    `json:"type"`
	LinkQuality  *int      `json:"link_quality,omitempty"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
}

// Edge is one routing link, child to parent.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a point-in-time snapshot of the mesh layout. Counts holds the
// number of nodes per device type.
type Graph struct {
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Counts      map[string]int `json:"counts"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Builder derives the mesh graph from the telemetry store.
type Builder struct {
	store  *telem.Store
	logger *logx.Logger
}

// NewBuilder creates a topology builder over the store.
func NewBuilder(store *telem.Store, logger *logx.Logger) *Builder {
	return &Builder{store: store, logger: logger}
}

// Build assembles the current graph. Devices reporting no parent are attached
// to the coordinator when one is known, so routers and sleepy end devices
// still render as part of the mesh. Edges pointing at unknown devices are
// dropped.
func (b *Builder) Build() Graph {
	graph := Graph{
		Nodes:       []Node{},
		Edges:       []Edge{},
		Counts:      make(map[string]int),
		GeneratedAt: time.Now(),
	}

	ids := b.store.Devices()
	known := make(map[string]bool, len(ids))
	var coordinatorID string

	for _, id := range ids {
		info, hasInfo := b.store.DeviceInfo(id)

		node := Node{DeviceID: id, Type: "unknown"}
		if hasInfo {
			node.FriendlyName = info.FriendlyName
			if info.Type != "" {
				node.Type = info.Type
			}
			if info.Type == "coordinator" {
				coordinatorID = id
			}
		}
		if snap, ok := b.store.Latest(id); ok {
			node.LinkQuality = snap.LinkQuality
			node.LastSeen = snap.LastSeen
		}

		graph.Nodes = append(graph.Nodes, node)
		graph.Counts[node.Type]++
		known[id] = true
	}

	for _, id := range ids {
		info, ok := b.store.DeviceInfo(id)
		if !ok || id == coordinatorID {
			continue
		}

		parent := info.ParentID
		if parent == "" {
			parent = coordinatorID
		}
		if parent == "" || parent == id {
			continue
		}
		if !known[parent] {
			b.logger.Debug("Dropping edge to unknown parent", "device_id", id, "parent_id", parent)
			continue
		}

		graph.Edges = append(graph.Edges, Edge{Source: id, Target: parent})
	}

	return graph
}
