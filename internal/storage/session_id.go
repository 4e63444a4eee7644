package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID 生成新的会话 ID / Generates a new session ID
func NewSessionID() string {
	return fmt.Sprintf("sess_%d_%s", time.Now().UTC().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
