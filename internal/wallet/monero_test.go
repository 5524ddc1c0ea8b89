package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

func rpcStub(t *testing.T, result string, calls *[]rpcCall) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		*calls = append(*calls, call)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":"0","result":%s}`, result)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestUnlockedBalanceConvertsAtomicUnits(t *testing.T) {
	var calls []rpcCall
	ts := rpcStub(t, `{"balance":3000000000000,"unlocked_balance":2500000000000}`, &calls)
	w := NewMoneroRPC(ts.URL, "", "")

	balance, err := w.UnlockedBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2.5", balance.String())
	require.Len(t, calls, 1)
	require.Equal(t, "get_balance", calls[0].Method)
}

func TestTransferSendsAtomicUnits(t *testing.T) {
	var calls []rpcCall
	ts := rpcStub(t, `{"tx_hash":"deadbeef","fee":30000000}`, &calls)
	w := NewMoneroRPC(ts.URL, "", "")

	result, err := w.Transfer(context.Background(), "4abc", decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	require.Equal(t, "deadbeef", result.TxID)
	require.Equal(t, "0.00003", result.Fee.String())

	require.Len(t, calls, 1)
	require.Equal(t, "transfer", calls[0].Method)
	destinations := calls[0].Params["destinations"].([]interface{})
	require.Len(t, destinations, 1)
	dest := destinations[0].(map[string]interface{})
	require.Equal(t, "4abc", dest["address"])
	require.Equal(t, float64(2500000000000), dest["amount"])
	require.Equal(t, float64(1), calls[0].Params["priority"])
	require.Equal(t, float64(16), calls[0].Params["ring_size"])
}

func TestTransferStatusQueriesByTxID(t *testing.T) {
	var calls []rpcCall
	ts := rpcStub(t, `{"transfer":{"txid":"deadbeef","type":"out","confirmations":12}}`, &calls)
	w := NewMoneroRPC(ts.URL, "", "")

	status, err := w.TransferStatus(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", status.TxID)
	require.Equal(t, "out", status.State)
	require.Equal(t, uint64(12), status.Confirmations)

	require.Len(t, calls, 1)
	require.Equal(t, "get_transfer_by_txid", calls[0].Method)
	require.Equal(t, "deadbeef", calls[0].Params["txid"])
}

func TestCallSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"0","result":{"balance":0,"unlocked_balance":0}}`)
	}))
	t.Cleanup(ts.Close)
	w := NewMoneroRPC(ts.URL, "pool", "hunter2")

	_, err := w.UnlockedBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pool", gotUser)
	require.Equal(t, "hunter2", gotPass)
}

func TestCallSurfacesRPCError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"0","error":{"code":-37,"message":"not enough money"}}`)
	}))
	t.Cleanup(ts.Close)
	w := NewMoneroRPC(ts.URL, "", "")

	_, err := w.Transfer(context.Background(), "4abc", decimal.NewFromInt(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not enough money")
}
