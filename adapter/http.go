package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mimblenet/mwwallet/proof"
	"github.com/mimblenet/mwwallet/slate"
)

const ROUTE_RECEIVE_TX = "/v2/foreign/receive_tx"

// HTTPAdapter posts the slate to the counterparty's foreign listener
// and reads the extended slate from the response.
type HTTPAdapter struct {
	client *http.Client
}

func NewHTTPAdapter() *HTTPAdapter {
	return &HTTPAdapter{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *HTTPAdapter) SupportsSync() bool { return true }

func (a *HTTPAdapter) SendTxSync(dest string, s *slate.Slate) (*slate.Slate, *proof.TxProof, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, nil, err
	}

	url := strings.TrimSuffix(dest, "/") + ROUTE_RECEIVE_TX
	resp, err := a.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("foreign listener %s: status %d: %s",
			url, resp.StatusCode, data)
	}

	out := &slate.Slate{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func (a *HTTPAdapter) SendTxAsync(dest string, s *slate.Slate) error {
	return ErrAsyncNotSupported
}

func (a *HTTPAdapter) ReceiveTxAsync(src string) (*slate.Slate, error) {
	return nil, ErrAsyncNotSupported
}

// ForeignListener serves the receive endpoint counterparties post
// slates to.
type ForeignListener struct {
	addr     string
	receiver ForeignReceiver
}

func NewForeignListener(addr string, receiver ForeignReceiver) *ForeignListener {
	return &ForeignListener{addr: addr, receiver: receiver}
}

// SetupRouter hooks up routes and handlers.
func (f *ForeignListener) SetupRouter() *gin.Engine {
	router := gin.Default()
	router.POST(ROUTE_RECEIVE_TX, f.receiveTx)
	return router
}

func (f *ForeignListener) Run() error {
	return f.SetupRouter().Run(f.addr)
}

func (f *ForeignListener) receiveTx(c *gin.Context) {
	s := &slate.Slate{}
	if err := c.ShouldBindJSON(s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := f.receiver.ReceiveTx(s)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
