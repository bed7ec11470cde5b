package session

import (
	"strconv"

	"github.com/moby/locker"
)

// chatLocks serializes read-modify-write per chat. locker drops a name
// once nobody holds or waits for it.
type chatLocks struct {
	l *locker.Locker
}

func newChatLocks() chatLocks {
	return chatLocks{l: locker.New()}
}

func (c chatLocks) Lock(chatID int64) func() {
	key := strconv.FormatInt(chatID, 10)
	c.l.Lock(key)
	return func() { _ = c.l.Unlock(key) }
}
