package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

func snowflakeNode() *snowflake.Node {
	nodeOnce.Do(func() {
		n, err := snowflake.NewNode(1)
		if err == nil {
			node = n
		}
	})
	return node
}

// New returns a time-ordered record id such as "doc_1790123456789012480".
func New(prefix string) string {
	if n := snowflakeNode(); n != nil {
		return fmt.Sprintf("%s_%s", prefix, n.Generate().String())
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%d%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// NewLineItemID returns a random id for an editor line item. It never leaves
// the editing session.
func NewLineItemID() string {
	return uuid.NewString()
}
