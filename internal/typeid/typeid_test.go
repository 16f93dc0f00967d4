package typeid_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/anchors/internal/typeid"
)

func TestGeneratedIDsCarryPrefix(t *testing.T) {
	tests := []struct {
		gen    func() string
		prefix string
	}{
		{typeid.NewDiagramID, typeid.PrefixDiagram},
		{typeid.NewNodeID, typeid.PrefixNode},
		{typeid.NewConnectionID, typeid.PrefixConnection},
		{typeid.NewOpID, typeid.PrefixOp},
	}
	for _, tt := range tests {
		id := tt.gen()
		assert.True(t, strings.HasPrefix(id, tt.prefix+"_"), id)
		assert.NotContains(t, id, "#")
		require.NoError(t, typeid.Validate(id, tt.prefix))
	}
	assert.NotEqual(t, typeid.NewNodeID(), typeid.NewNodeID())
}

func TestValidate(t *testing.T) {
	assert.Error(t, typeid.Validate(typeid.NewNodeID(), typeid.PrefixConnection))
	assert.Error(t, typeid.Validate("not an id", typeid.PrefixNode))
}
