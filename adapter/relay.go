package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/proof"
	"github.com/mimblenet/mwwallet/slate"
)

// RelayTransport is the relay network's publish/subscribe surface.
type RelayTransport interface {
	Publish(addr string, data []byte) error
	Subscribe(addr string) <-chan []byte
}

// relayEnvelope is one relay message: the slate plus, on the reply
// leg, an optional payment proof and the address to reply to.
type relayEnvelope struct {
	ReplyTo string         `json:"reply_to,omitempty"`
	Slate   *slate.Slate   `json:"slate"`
	Proof   *proof.TxProof `json:"proof,omitempty"`
}

// RelayAdapter exchanges the slate over a relay network. The sender
// publishes to the destination address and polls its own address for
// the reply with a bounded interval and a fixed attempt ceiling;
// running out of attempts is terminal.
type RelayAdapter struct {
	transport RelayTransport
	ownAddr   string
	keyPath   *uint64

	pollInterval time.Duration
	maxAttempts  int
}

func NewRelayAdapter(transport RelayTransport, ownAddr string) *RelayAdapter {
	return &RelayAdapter{
		transport:    transport,
		ownAddr:      ownAddr,
		pollInterval: time.Second,
		maxAttempts:  30,
	}
}

// SetPolling overrides the reply poll interval and attempt ceiling.
func (a *RelayAdapter) SetPolling(interval time.Duration, attempts int) {
	a.pollInterval = interval
	a.maxAttempts = attempts
}

// SetKeyPath records the wallet key path the relay address derives
// from. Sends through this adapter carry it onto the transaction log,
// which is what later makes a payment proof signable.
func (a *RelayAdapter) SetKeyPath(path uint64) {
	p := path
	a.keyPath = &p
}

// RelayKeyPath implements RelayKeyed.
func (a *RelayAdapter) RelayKeyPath() *uint64 { return a.keyPath }

func (a *RelayAdapter) SupportsSync() bool { return true }

func (a *RelayAdapter) SendTxSync(dest string, s *slate.Slate) (*slate.Slate, *proof.TxProof, error) {
	replies := a.transport.Subscribe(a.ownAddr)
	if err := a.SendTxAsync(dest, s); err != nil {
		return nil, nil, err
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		select {
		case data := <-replies:
			env := &relayEnvelope{}
			if err := json.Unmarshal(data, env); err != nil {
				return nil, nil, err
			}
			if env.Slate == nil || env.Slate.ID != s.ID {
				logger.WithField("addr", a.ownAddr).
					Warn("discarding relay reply for another slate")
				continue
			}
			return env.Slate, env.Proof, nil
		case <-ticker.C:
		}
	}
	return nil, nil, ErrRelayTimeout
}

func (a *RelayAdapter) SendTxAsync(dest string, s *slate.Slate) error {
	data, err := json.Marshal(&relayEnvelope{ReplyTo: a.ownAddr, Slate: s})
	if err != nil {
		return err
	}
	return a.transport.Publish(dest, data)
}

func (a *RelayAdapter) ReceiveTxAsync(src string) (*slate.Slate, error) {
	select {
	case data := <-a.transport.Subscribe(src):
		env := &relayEnvelope{}
		if err := json.Unmarshal(data, env); err != nil {
			return nil, err
		}
		return env.Slate, nil
	default:
		return nil, ErrRelayTimeout
	}
}

// ProofSigner optionally attaches a payment proof to a relay reply.
type ProofSigner func(s *slate.Slate) (*proof.TxProof, error)

// RelayListener consumes slates arriving at the wallet's relay address
// in the background, extends each through the receiver and publishes
// the reply back to the originator.
type RelayListener struct {
	transport RelayTransport
	addr      string
	receiver  ForeignReceiver
	signProof ProofSigner
}

func NewRelayListener(transport RelayTransport, addr string,
	receiver ForeignReceiver, signProof ProofSigner) *RelayListener {

	return &RelayListener{
		transport: transport,
		addr:      addr,
		receiver:  receiver,
		signProof: signProof,
	}
}

// Start consumes incoming envelopes until the context is cancelled.
func (l *RelayListener) Start(ctx context.Context) {
	incoming := l.transport.Subscribe(l.addr)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-incoming:
				if err := l.handle(data); err != nil {
					logger.WithError(err).WithField("addr", l.addr).
						Error("relay exchange failed")
				}
			}
		}
	}()
}

func (l *RelayListener) handle(data []byte) error {
	env := &relayEnvelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return err
	}

	out, err := l.receiver.ReceiveTx(env.Slate)
	if err != nil {
		return err
	}

	reply := &relayEnvelope{Slate: out}
	if l.signProof != nil {
		p, err := l.signProof(out)
		if err != nil {
			logger.WithError(err).Warn("proof signing for relay reply failed")
		} else {
			reply.Proof = p
		}
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return l.transport.Publish(env.ReplyTo, payload)
}

// MemoryRelay is an in-process relay hub, one buffered channel per
// address.
type MemoryRelay struct {
	mu    sync.Mutex
	boxes map[string]chan []byte
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{boxes: make(map[string]chan []byte)}
}

func (r *MemoryRelay) box(addr string) chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boxes[addr]; !ok {
		r.boxes[addr] = make(chan []byte, 16)
	}
	return r.boxes[addr]
}

func (r *MemoryRelay) Publish(addr string, data []byte) error {
	r.box(addr) <- data
	return nil
}

func (r *MemoryRelay) Subscribe(addr string) <-chan []byte {
	return r.box(addr)
}
