package rpc_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/rpc"
)

func TestParseMessageRequest(t *testing.T) {
	req, resp, err := rpc.ParseMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Nil(t, resp)
	assert.Equal(t, "ping", req.Method)
	assert.False(t, req.IsNotification())
}

func TestParseMessageNotification(t *testing.T) {
	req, _, err := rpc.ParseMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.True(t, req.IsNotification())
}

func TestParseMessageResponse(t *testing.T) {
	_, resp, err := rpc.ParseMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	require.NoError(t, err)
	require.NotNil(t, resp)
}

func TestParseMessageRejectsInvalidJSON(t *testing.T) {
	_, _, err := rpc.ParseMessage([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, errs.CodeTransport, errs.CodeOf(err))
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	d := rpc.NewDispatcher()
	id := json.RawMessage(`1`)
	resp := d.Dispatch(context.Background(), &rpc.Request{JSONRPC: rpc.Version, ID: id, Method: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}

func TestDispatchRoutesRegisteredMethod(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	id := json.RawMessage(`2`)
	resp := d.Dispatch(context.Background(), &rpc.Request{JSONRPC: rpc.Version, ID: id, Method: "ping"})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &decoded))
	assert.Equal(t, "ok", decoded["status"])
}

func TestDispatchMapsRichErrorToJSONRPCCode(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("tasks/get", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errs.NotFound("task-1")
	})

	id := json.RawMessage(`3`)
	resp := d.Dispatch(context.Background(), &rpc.Request{JSONRPC: rpc.Version, ID: id, Method: "tasks/get"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32001, resp.Error.Code)
}
