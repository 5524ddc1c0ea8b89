package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// atomicShift converts between coins and the wallet's 1e12 atomic units.
const atomicShift = 12

// MoneroRPC talks to a monero-wallet-rpc compatible daemon over JSON-RPC.
type MoneroRPC struct {
	url      string
	user     string
	password string
	http     *http.Client
}

func NewMoneroRPC(url, user, password string) *MoneroRPC {
	return &MoneroRPC{
		url:      url,
		user:     user,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (w *MoneroRPC) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.user != "" {
		req.SetBasicAuth(w.user, w.password)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("wallet rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet rpc %s: status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("wallet rpc %s: decode: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("wallet rpc %s: %s (%d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if result != nil {
		return json.Unmarshal(rpcResp.Result, result)
	}
	return nil
}

func (w *MoneroRPC) UnlockedBalance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Balance         int64 `json:"balance"`
		UnlockedBalance int64 `json:"unlocked_balance"`
	}
	if err := w.call(ctx, "get_balance", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(out.UnlockedBalance).Shift(-atomicShift), nil
}

func (w *MoneroRPC) TransferStatus(ctx context.Context, txID string) (*TransferStatus, error) {
	params := map[string]interface{}{"txid": txID}
	var out struct {
		Transfer struct {
			TxID          string `json:"txid"`
			Type          string `json:"type"`
			Confirmations uint64 `json:"confirmations"`
		} `json:"transfer"`
	}
	if err := w.call(ctx, "get_transfer_by_txid", params, &out); err != nil {
		return nil, err
	}
	return &TransferStatus{
		TxID:          out.Transfer.TxID,
		State:         out.Transfer.Type,
		Confirmations: out.Transfer.Confirmations,
	}, nil
}

func (w *MoneroRPC) Transfer(ctx context.Context, address string, amount decimal.Decimal) (*TransferResult, error) {
	params := map[string]interface{}{
		"destinations": []map[string]interface{}{
			{"amount": amount.Shift(atomicShift).IntPart(), "address": address},
		},
		"priority":  1,
		"ring_size": 16,
	}
	var out struct {
		TxHash string `json:"tx_hash"`
		Fee    int64  `json:"fee"`
	}
	if err := w.call(ctx, "transfer", params, &out); err != nil {
		return nil, err
	}
	return &TransferResult{
		TxID: out.TxHash,
		Fee:  decimal.NewFromInt(out.Fee).Shift(-atomicShift),
	}, nil
}
