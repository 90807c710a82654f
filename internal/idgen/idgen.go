package idgen

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)

// NewNode reads SNOWFLAKE_NODE_ID so the service and the ops CLI never mint
// colliding ids when they run side by side.
func NewNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := strings.TrimSpace(os.Getenv("SNOWFLAKE_NODE_ID")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse SNOWFLAKE_NODE_ID: %w", err)
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
