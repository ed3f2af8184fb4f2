package container

import (
	"sync"

	"github.com/google/uuid"
)

var (
	sessionOnce sync.Once
	sessionID   string
)

// SessionID identifies the current process. Every container created by it is
// labelled with this value so a crashed run can be pruned later.
func SessionID() string {
	sessionOnce.Do(func() {
		sessionID = uuid.NewString()
	})
	return sessionID
}
