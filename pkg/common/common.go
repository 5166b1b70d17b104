package common

import (
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

func setupNode() {
	nodeID := int64(1)
	if v := os.Getenv("WLINK_NODE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			nodeID = n
		}
	}
	var err error
	snowflakeNode, err = snowflake.NewNode(nodeID)
	if err != nil {
		snowflakeNode, _ = snowflake.NewNode(rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1023))
	}
}

// UUIDint64 generates a cluster-unique int64 id.
func UUIDint64() int64 {
	snowflakeOnce.Do(setupNode)
	return snowflakeNode.Generate().Int64()
}

// FileExists checks whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
