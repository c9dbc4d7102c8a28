// Server = wallet store + chain node + owner/foreign api + http listener.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/adapter"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/nodeclient"
	"github.com/mimblenet/mwwallet/owner"
	"github.com/mimblenet/mwwallet/walletdb"
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type WalletServerConfig struct {
	// key side
	WalletSeed string // hex seed for the keychain, empty generates a fresh one
	Account    string // account index, decimal string, empty means 0
	// state side
	DbFilePath string // db file path
	// listener side
	HttpIp         string // eg. 0.0.0.0
	HttpPort       string // eg. 8080
	ReceiveMessage string // optional message attached to received slates
}

// WalletServer holds the objects that consists of the wallet server.
type WalletServer struct {
	MyKeychain *keychain.ExtKeychain
	MyNode     *nodeclient.SimulatedNode
	MyStore    *walletdb.Store

	MyOwnerAPI   *owner.OwnerAPI
	MyForeignAPI *owner.ForeignAPI
	MyListener   *adapter.ForeignListener
}

// NewWalletServer creates a new wallet server.
// ctx is used for parental context to cancel the operation of the server.
// wg is used to wait for the goroutines inside the server to finish.
func NewWalletServer(wsc *WalletServerConfig, ctx context.Context, wg *sync.WaitGroup) (*WalletServer, error) {
	// 0) key material
	var kc *keychain.ExtKeychain
	if wsc.WalletSeed != "" {
		raw, err := hex.DecodeString(wsc.WalletSeed)
		if err != nil || len(raw) != 32 {
			logger.Errorf("wallet seed must be 32 hex-encoded bytes")
			return nil, fmt.Errorf("bad wallet seed")
		}
		var seed [32]byte
		copy(seed[:], raw)
		kc = keychain.NewExtKeychain(seed)
	} else {
		var err error
		kc, err = keychain.FromRandomSeed()
		if err != nil {
			logger.Fatalf("cannot create keychain %v", err)
			return nil, err
		}
	}

	// 1) chain node
	myNode := nodeclient.NewSimulatedNode()

	// 2) wallet store over sqlite
	myStore, err := walletdb.Open(wsc.DbFilePath, kc, myNode)
	if err != nil {
		logger.Fatalf("cannot open wallet db %s %v", wsc.DbFilePath, err)
		return nil, err
	}

	// 3) owner + foreign surfaces
	myOwnerAPI := owner.NewOwnerAPI(myStore)
	var msg *string
	if wsc.ReceiveMessage != "" {
		msg = &wsc.ReceiveMessage
	}
	myForeignAPI := owner.NewForeignAPI(myStore, msg)

	if wsc.Account != "" {
		account, err := strconv.ParseUint(wsc.Account, 10, 32)
		if err != nil {
			logger.Fatalf("bad account index %s %v", wsc.Account, err)
			return nil, err
		}
		myOwnerAPI.SetActiveAccount(uint32(account))
		myForeignAPI.SetActiveAccount(uint32(account))
	}

	// 4) http listener for incoming slates
	addr := wsc.HttpIp + ":" + wsc.HttpPort
	myListener := adapter.NewForeignListener(addr, myForeignAPI)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myListener.Run(); err != nil {
			logger.Errorf("foreign listener stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		myStore.Close()
	}()

	return &WalletServer{
		MyKeychain:   kc,
		MyNode:       myNode,
		MyStore:      myStore,
		MyOwnerAPI:   myOwnerAPI,
		MyForeignAPI: myForeignAPI,
		MyListener:   myListener,
	}, nil
}

// Create, then start the wallet server and wait.
// Press Ctrl-C to kill the server.
func StartWalletServerAndWait(wsc *WalletServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	_, err := NewWalletServer(wsc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create wallet server: %v", err)
		return
	}

	wg.Wait()
}
