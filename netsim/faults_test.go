package netsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaultModel_Admit_allows_by_default(t *testing.T) {
	f := newFaultModel()
	assert.True(t, f.admit(1, 2, 1.0, 0))
}

func TestFaultModel_Admit_blocks_clogged_node_either_side(t *testing.T) {
	f := newFaultModel()
	f.clogNode(1)
	assert.False(t, f.admit(1, 2, 1.0, 0))
	assert.False(t, f.admit(2, 1, 1.0, 0))

	f.unclogNode(1)
	assert.True(t, f.admit(1, 2, 1.0, 0))
}

func TestFaultModel_Admit_blocks_clogged_link_directionally(t *testing.T) {
	f := newFaultModel()
	f.clogLink(1, 2)
	assert.False(t, f.admit(1, 2, 1.0, 0))
	assert.True(t, f.admit(2, 1, 1.0, 0))
}

func TestFaultModel_Admit_blocks_on_loss_draw(t *testing.T) {
	f := newFaultModel()
	assert.False(t, f.admit(1, 2, 0.05, 0.5))
	assert.True(t, f.admit(1, 2, 0.5, 0.5))
}

func TestFaultModel_Reset_clears_both_sides_of_links(t *testing.T) {
	f := newFaultModel()
	f.clogNode(1)
	f.clogLink(1, 2)
	f.clogLink(2, 1)

	f.reset(1)

	assert.True(t, f.admit(1, 2, 1.0, 0))
	assert.True(t, f.admit(2, 1, 1.0, 0))
}
