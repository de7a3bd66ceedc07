package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every request with handler(req) encoded as the result,
// or as a JSON-RPC error when handler returns *RPCError.
func rpcServer(t *testing.T, handler func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch v := handler(req).(type) {
		case *RPCError:
			resp["error"] = v
		default:
			resp["result"] = v
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	var gotConfig map[string]interface{}
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getTransaction", req.Method)
		gotConfig, _ = req.Params[1].(map[string]interface{})
		return map[string]interface{}{
			"slot":      123456,
			"blockTime": 1700000000,
			"meta": map[string]interface{}{
				"err":          nil,
				"fee":          5000,
				"preBalances":  []uint64{2_000_000_000, 1},
				"postBalances": []uint64{1_499_995_000, 1},
				"preTokenBalances": []map[string]interface{}{
					{
						"accountIndex": 2,
						"mint":         "MintA",
						"owner":        "Wallet",
						"programId":    TokenProgramID,
						"uiTokenAmount": map[string]interface{}{
							"amount": "1500000", "decimals": 6, "uiAmount": 1.5, "uiAmountString": "1.5",
						},
					},
				},
				"postTokenBalances": []map[string]interface{}{},
				"logMessages":       []string{"Program log: Hello"},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{"accountKeys": []string{"addr1", "addr2"}},
			},
		}
	})

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "testsig123", EncodingJSONParsed)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "jsonParsed", gotConfig["encoding"])
	assert.Equal(t, "confirmed", gotConfig["commitment"])
	assert.EqualValues(t, 0, gotConfig["maxSupportedTransactionVersion"])

	assert.Equal(t, "testsig123", tx.Signature)
	assert.Equal(t, int64(123456), tx.Slot)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
	require.NotNil(t, tx.Meta)
	assert.False(t, tx.Meta.Failed())
	assert.Equal(t, uint64(5000), tx.Meta.Fee)
	assert.Equal(t, []uint64{2_000_000_000, 1}, tx.Meta.PreBalances)
	require.Len(t, tx.Meta.PreTokenBalances, 1)
	assert.Equal(t, 2, tx.Meta.PreTokenBalances[0].AccountIndex)
	assert.Equal(t, "1.5", tx.Meta.PreTokenBalances[0].UIAmount.String())
	assert.NotNil(t, tx.Meta.PostTokenBalances, "empty list must stay distinguishable from absent")
	assert.Empty(t, tx.Meta.PostTokenBalances)
	assert.True(t, tx.Meta.HasTokenBalances())
}

func TestHTTPClient_GetTransaction_MissingTokenBalances(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"slot": 1,
			"meta": map[string]interface{}{"err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		}
	})

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "sig", "")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.True(t, tx.Meta.Failed())
	assert.False(t, tx.Meta.HasTokenBalances())
	assert.Zero(t, tx.BlockTime)
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} { return nil })

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "nonexistent", EncodingJSONParsed)
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestHTTPClient_GetTransaction_InternalError(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return &RPCError{Code: CodeInternalError, Message: "Internal error"}
	})

	_, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "sig", EncodingJSONParsed)
	require.Error(t, err)
	assert.True(t, IsRPCCode(err, CodeInternalError))
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	var gotConfig map[string]interface{}
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getSignaturesForAddress", req.Method)
		assert.Equal(t, "testaddr", req.Params[0])
		gotConfig, _ = req.Params[1].(map[string]interface{})
		return []map[string]interface{}{
			{"signature": "sig1", "slot": 100, "blockTime": 1700000000, "err": nil},
			{"signature": "sig2", "slot": 101, "blockTime": nil, "err": nil},
		}
	})

	sigs, err := NewHTTPClient(server.URL).GetSignaturesForAddress(context.Background(), "testaddr",
		&SignaturesOpts{Before: "sig0", Limit: 10})
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	assert.Equal(t, "sig0", gotConfig["before"])
	assert.EqualValues(t, 10, gotConfig["limit"])
	assert.Equal(t, "confirmed", gotConfig["commitment"])
	assert.NotContains(t, gotConfig, "until")

	assert.Equal(t, "sig1", sigs[0].Signature)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000000), *sigs[0].BlockTime)
	assert.Nil(t, sigs[1].BlockTime)
	assert.Equal(t, int64(101), sigs[1].Slot)
}

func TestHTTPClient_GetTokenAccountsByOwner(t *testing.T) {
	tests := []struct {
		name       string
		filter     TokenAccountsFilter
		wantKey    string
		wantFilter string
	}{
		{"mint filter", TokenAccountsFilter{Mint: "MintA"}, "mint", "MintA"},
		{"token-2022 program", TokenAccountsFilter{ProgramID: Token2022ProgramID}, "programId", Token2022ProgramID},
		{"default program", TokenAccountsFilter{}, "programId", TokenProgramID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := rpcServer(t, func(req rpcRequest) interface{} {
				assert.Equal(t, "getTokenAccountsByOwner", req.Method)
				selector, _ := req.Params[1].(map[string]interface{})
				assert.Equal(t, tt.wantFilter, selector[tt.wantKey])
				return map[string]interface{}{
					"value": []map[string]interface{}{
						{
							"pubkey": "AccountA",
							"account": map[string]interface{}{
								"data": map[string]interface{}{
									"program": "spl-token",
									"parsed": map[string]interface{}{
										"info": map[string]interface{}{
											"mint":        "MintA",
											"owner":       "Wallet",
											"tokenAmount": map[string]interface{}{"amount": "42000", "decimals": 3},
										},
									},
								},
							},
						},
					},
				}
			})

			accounts, err := NewHTTPClient(server.URL).GetTokenAccountsByOwner(context.Background(), "Wallet", tt.filter)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, "AccountA", accounts[0].Pubkey)
			assert.Equal(t, "MintA", accounts[0].Mint)
			assert.Equal(t, "Wallet", accounts[0].Owner)
			assert.Equal(t, "42", accounts[0].Amount.String())
		})
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return &RPCError{Code: -32600, Message: "Invalid Request"}
	})

	_, err := NewHTTPClient(server.URL).GetSignaturesForAddress(context.Background(), "addr", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32600, rpcErr.Code)
	assert.Equal(t, "Invalid Request", rpcErr.Message)
}

func TestHTTPClient_HTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).GetAccountInfo(context.Background(), "addr")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getAccountInfo", req.Method)
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   1000000,
				"owner":      MetaplexProgramID,
				"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
				"executable": false,
				"rentEpoch":  100,
			},
		}
	})

	info, err := NewHTTPClient(server.URL).GetAccountInfo(context.Background(), "testpubkey")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint64(1000000), info.Lamports)
	assert.Equal(t, MetaplexProgramID, info.Owner)
	assert.Equal(t, "SGVsbG8gV29ybGQ=", info.Data)
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{"value": nil}
	})

	info, err := NewHTTPClient(server.URL).GetAccountInfo(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestHTTPClient_Options(t *testing.T) {
	custom := &http.Client{}
	client := NewHTTPClient("http://localhost",
		WithHTTPClient(custom),
		WithTimeout(5*time.Second),
		WithCommitment(CommitmentFinalized),
	)

	assert.Same(t, custom, client.client)
	assert.Equal(t, 5*time.Second, client.client.Timeout)
	assert.Equal(t, CommitmentFinalized, client.commitment)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(server.URL).GetTransaction(ctx, "sig", EncodingJSONParsed)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUITokenAmount_Decimal(t *testing.T) {
	ui := 2.5
	tests := []struct {
		name   string
		amount uiTokenAmount
		want   string
	}{
		{"raw amount with decimals", uiTokenAmount{Amount: "123456789", Decimals: 6}, "123.456789"},
		{"ui amount string fallback", uiTokenAmount{UIAmountString: "0.001"}, "0.001"},
		{"ui amount float fallback", uiTokenAmount{UIAmount: &ui}, "2.5"},
		{"zero when empty", uiTokenAmount{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.amount.decimal().String())
		})
	}
}
