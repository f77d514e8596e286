package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Server and
// worker processes must use distinct node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a time-ordered int64 ID unique across relay instances. Used
// for conversation and message identity.
func New() int64 {
	return node.Generate().Int64()
}

// NewString returns New formatted in base-58, for keys that travel in URLs
// or Redis key names.
func NewString() string {
	return node.Generate().Base58()
}
