package idgen_test

import (
	"testing"

	"github.com/smallbiznis/eksporyuk/internal/idgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeDefaultsToOne(t *testing.T) {
	t.Setenv("SNOWFLAKE_NODE_ID", "")
	node, err := idgen.NewNode()
	require.NoError(t, err)
	assert.Equal(t, int64(1), node.Generate().Node())
}

func TestNewNodeReadsEnv(t *testing.T) {
	t.Setenv("SNOWFLAKE_NODE_ID", "7")
	node, err := idgen.NewNode()
	require.NoError(t, err)
	assert.Equal(t, int64(7), node.Generate().Node())
}

func TestNewNodeRejectsGarbage(t *testing.T) {
	t.Setenv("SNOWFLAKE_NODE_ID", "seven")
	_, err := idgen.NewNode()
	assert.Error(t, err)

	t.Setenv("SNOWFLAKE_NODE_ID", "5000")
	_, err = idgen.NewNode()
	assert.Error(t, err)
}
