package wallet

import (
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
)

// Context is the ephemeral secret state of one local signing session.
// It exists only for the duration of the negotiation, is never
// persisted, and must be zeroed when the negotiation ends.
type Context struct {
	ParentKeyID   keychain.Identifier
	ParticipantID uint64

	SecKey   keychain.SecretKey
	SecNonce keychain.SecretKey

	// Commitments touched by this negotiation.
	InputCommits  []pedersen.Commitment
	OutputCommits []pedersen.Commitment

	// ChangeOutputs are the change outputs planned by coin selection;
	// they are persisted by the ledger when the slate's inputs are
	// locked, not before.
	ChangeOutputs []PlannedOutput

	Amount uint64
	Fee    uint64
}

// PlannedOutput is an output the wallet intends to create once the
// transaction exchange succeeds.
type PlannedOutput struct {
	KeyID  keychain.Identifier
	NChild uint32
	Value  uint64
	Commit pedersen.Commitment
}

// Zero wipes the secret key and nonce backing memory.
func (c *Context) Zero() {
	c.SecKey.Zero()
	c.SecNonce.Zero()
}

// AddInputCommit records an input touched by the negotiation.
func (c *Context) AddInputCommit(commit pedersen.Commitment) {
	c.InputCommits = append(c.InputCommits, commit)
}

// AddOutputCommit records an output touched by the negotiation.
func (c *Context) AddOutputCommit(commit pedersen.Commitment) {
	c.OutputCommits = append(c.OutputCommits, commit)
}
