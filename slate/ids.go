package slate

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces slate ids. Production code uses RandomIDs;
// tests inject SeqIDs for reproducible ids.
type IDGenerator interface {
	NewSlateID() uuid.UUID
}

type RandomIDs struct{}

func (RandomIDs) NewSlateID() uuid.UUID {
	return uuid.New()
}

// SeqIDs yields a deterministic id sequence, differing only in the
// last byte.
type SeqIDs struct {
	mu  sync.Mutex
	ctr uint8
}

func NewSeqIDs() *SeqIDs {
	return &SeqIDs{}
}

func (g *SeqIDs) NewSlateID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	bytes := [16]byte{4, 54, 67, 12, 43, 2, 98, 76, 32, 50, 87, 5, 1, 33, 43, g.ctr}
	g.ctr++
	id, err := uuid.FromBytes(bytes[:])
	if err != nil {
		panic(err)
	}
	return id
}
