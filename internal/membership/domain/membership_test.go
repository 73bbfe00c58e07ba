package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProvenanceTagging(t *testing.T) {
	tagged := TagObservation("Mensalidade maio", "g1")
	assert.Equal(t, "Mensalidade maio [grupo:g1]", tagged)
	assert.True(t, HasProvenance(tagged, "g1"))
	assert.False(t, HasProvenance(tagged, "g10"))
	assert.Equal(t, tagged, TagObservation(tagged, "g1"))

	assert.Equal(t, "[grupo:g1]", TagObservation("  ", "g1"))
	assert.Equal(t, "Mensalidade maio", UntagObservation(tagged, "g1"))
	assert.Equal(t, "", UntagObservation("[grupo:g1]", "g1"))
}

func TestSyncPlanEmpty(t *testing.T) {
	assert.True(t, SyncPlan{Preserved: 3}.Empty())
	assert.False(t, SyncPlan{Add: []string{"u1"}}.Empty())
}
