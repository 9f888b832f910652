package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSyncSeek(t *testing.T) {
	env := Envelope{
		Type:    EventSyncSeek,
		Payload: json.RawMessage(`{"current_time":120.5}`),
	}

	payload, err := Decode(env)
	require.NoError(t, err)
	assert.Equal(t, SyncSeekPayload{CurrentTime: 120.5}, payload)
}

func TestDecodeEmptyPayload(t *testing.T) {
	payload, err := Decode(Envelope{Type: EventHostMuteAll})
	require.NoError(t, err)
	assert.Equal(t, HostMuteAllPayload{}, payload)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode(Envelope{Type: "sync:rewind"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEncodeDecodeSignalKeepsOpaquePayload(t *testing.T) {
	signal := json.RawMessage(`{"sdp":"v=0...","type":"offer"}`)
	env, err := Encode(EventSignal, SignalPayload{
		To:     "conn-b",
		From:   "conn-a",
		Signal: signal,
	})
	require.NoError(t, err)

	decoded, err := Decode(env)
	require.NoError(t, err)
	assert.JSONEq(t, string(signal), string(decoded.(SignalPayload).Signal))
}
