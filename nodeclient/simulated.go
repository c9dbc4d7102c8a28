// Package nodeclient provides chain node clients for the wallet. The
// simulated node keeps a whole chain view in memory and is the backend
// used throughout the tests.
package nodeclient

import (
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
)

// SimulatedNode implements wallet.ChainClient against an in-memory
// chain. Posted transactions sit in a mempool until Mine is called.
type SimulatedNode struct {
	mu sync.Mutex

	height  uint64
	outputs map[pedersen.Commitment]uint64 // unspent commit -> height
	kernels map[pedersen.Commitment]uint64 // kernel excess -> height
	mempool []*core.Transaction

	// failure injection
	postFailures   int
	heightFailures int
}

func NewSimulatedNode() *SimulatedNode {
	return &SimulatedNode{
		outputs: make(map[pedersen.Commitment]uint64),
		kernels: make(map[pedersen.Commitment]uint64),
	}
}

// FailNextPosts makes the next n PostTx calls fail.
func (n *SimulatedNode) FailNextPosts(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.postFailures = count
}

// FailNextHeights makes the next n GetChainHeight calls fail.
func (n *SimulatedNode) FailNextHeights(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.heightFailures = count
}

// AddOutput places an output on chain directly, bypassing the mempool.
// Used to seed wallet funds.
func (n *SimulatedNode) AddOutput(commit pedersen.Commitment, height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.outputs[commit] = height
	if height > n.height {
		n.height = height
	}
}

func (n *SimulatedNode) GetChainHeight() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.heightFailures > 0 {
		n.heightFailures--
		return 0, wallet.ErrNodeUnavailable
	}
	return n.height, nil
}

// PostTx validates the transaction and admits it to the mempool. All
// inputs must be unspent and not already claimed by a pending tx.
func (n *SimulatedNode) PostTx(tx *core.Transaction, fluff bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.postFailures > 0 {
		n.postFailures--
		return wallet.ErrNodeUnavailable
	}

	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	pending := make(map[pedersen.Commitment]bool)
	for _, ptx := range n.mempool {
		for _, c := range ptx.InputCommits() {
			pending[c] = true
		}
	}
	for _, c := range tx.InputCommits() {
		if _, ok := n.outputs[c]; !ok {
			return fmt.Errorf("input %s not found in utxo set", c)
		}
		if pending[c] {
			return fmt.Errorf("input %s double spent in mempool", c)
		}
	}

	n.mempool = append(n.mempool, tx)
	logger.WithFields(logger.Fields{
		"kernels": len(tx.Body.Kernels),
		"fluff":   fluff,
	}).Debug("tx admitted to mempool")
	return nil
}

// Mine advances the chain by blocks, applying the whole mempool in the
// first new block.
func (n *SimulatedNode) Mine(blocks uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if blocks == 0 {
		return
	}
	n.height++

	for _, tx := range n.mempool {
		for _, c := range tx.InputCommits() {
			delete(n.outputs, c)
		}
		for _, c := range tx.OutputCommits() {
			n.outputs[c] = n.height
		}
		for _, k := range tx.Body.Kernels {
			n.kernels[k.Excess] = n.height
		}
	}
	n.mempool = nil
	n.height += blocks - 1
}

func (n *SimulatedNode) GetOutputsByCommits(commits []pedersen.Commitment) (map[pedersen.Commitment]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	found := make(map[pedersen.Commitment]uint64)
	for _, c := range commits {
		if h, ok := n.outputs[c]; ok {
			found[c] = h
		}
	}
	return found, nil
}

func (n *SimulatedNode) GetKernel(excess pedersen.Commitment, minHeight, maxHeight uint64) (*wallet.KernelInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	h, ok := n.kernels[excess]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	if h < minHeight || (maxHeight > 0 && h > maxHeight) {
		return nil, wallet.ErrNotFound
	}
	return &wallet.KernelInfo{Excess: excess, Height: h}, nil
}

// MempoolSize reports the number of pending transactions.
func (n *SimulatedNode) MempoolSize() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.mempool)
}
