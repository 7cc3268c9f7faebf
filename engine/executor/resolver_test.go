package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/velora-labs/conversa/engine"
)

func TestNextNodeID(t *testing.T) {
	flow := &engine.Flow{
		Edges: []engine.FlowEdge{
			{Source: "cond", SourceHandle: "condition-c1", Target: "branch-yes"},
			{Source: "cond", SourceHandle: "default", Target: "branch-no"},
			{Source: "menu", SourceHandle: "menu-option-a", Target: "via-menu-alias"},
			{Source: "menu", SourceHandle: "option-b", Target: "via-plain-option"},
			{Source: "plain", SourceHandle: "", Target: "next"},
		},
	}

	tests := []struct {
		name      string
		nodeID    string
		branchKey string
		expected  string
	}{
		{"branch key wins", "cond", "condition-c1", "branch-yes"},
		{"unknown branch falls to default", "cond", "condition-otra", "branch-no"},
		{"empty branch uses default", "cond", "", "branch-no"},
		{"legacy menu alias", "menu", "option-a", "via-menu-alias"},
		{"plain option handle", "menu", "option-b", "via-plain-option"},
		{"unlabeled edge is default", "plain", "", "next"},
		{"no outgoing edge ends flow", "huerfano", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextNodeID(flow, tt.nodeID, tt.branchKey))
		})
	}
}
