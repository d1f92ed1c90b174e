package history

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewSessionID 生成新的会话 ID / NewSessionID generates a new session ID.
// Time-derived prefix keeps ids roughly sortable; the random suffix removes
// the collision risk of a pure wall-clock id under rapid creation.
func NewSessionID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("chat_%d_%s", time.Now().UTC().UnixMilli(), hex.EncodeToString(buf))
}
