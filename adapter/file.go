package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mimblenet/mwwallet/proof"
	"github.com/mimblenet/mwwallet/slate"
)

// FileAdapter exchanges slates through files the parties pass out of
// band. Send writes the slate document; receive parses one.
type FileAdapter struct{}

func (a *FileAdapter) SupportsSync() bool { return false }

func (a *FileAdapter) SendTxSync(dest string, s *slate.Slate) (*slate.Slate, *proof.TxProof, error) {
	return nil, nil, ErrSyncNotSupported
}

func (a *FileAdapter) SendTxAsync(dest string, s *slate.Slate) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o600)
}

func (a *FileAdapter) ReceiveTxAsync(src string) (*slate.Slate, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	s := &slate.Slate{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing slate file %s: %w", src, err)
	}
	return s, nil
}

// PairingAdapter exchanges slates through a shared mailbox directory,
// one file per slate id. Receive drains the oldest pending slate.
type PairingAdapter struct {
	Mailbox string
}

func (a *PairingAdapter) SupportsSync() bool { return false }

func (a *PairingAdapter) SendTxSync(dest string, s *slate.Slate) (*slate.Slate, *proof.TxProof, error) {
	return nil, nil, ErrSyncNotSupported
}

func (a *PairingAdapter) SendTxAsync(dest string, s *slate.Slate) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Join(a.Mailbox, dest)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, s.ID.String()+".slate"), data, 0o600)
}

func (a *PairingAdapter) ReceiveTxAsync(src string) (*slate.Slate, error) {
	dir := filepath.Join(a.Mailbox, src)
	matches, err := filepath.Glob(filepath.Join(dir, "*.slate"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, os.ErrNotExist
	}
	sort.Strings(matches)

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	s := &slate.Slate{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing mailbox slate %s: %w", matches[0], err)
	}
	if err := os.Remove(matches[0]); err != nil {
		return nil, err
	}
	return s, nil
}
