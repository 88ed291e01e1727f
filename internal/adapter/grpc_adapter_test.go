package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/pkg/types"
)

func TestEncodeDecodeFrameRoundTrips(t *testing.T) {
	msg := types.UnifiedMessage{
		Type:      types.TypeAssistant,
		Role:      types.RoleAssistant,
		MessageID: "m1",
		Content:   []types.ContentBlock{{Type: types.BlockText, Text: "hi"}},
		Metadata:  types.Metadata{"model": "claude-sonnet"},
	}

	frame, err := encodeFrame("s1", msg)
	require.NoError(t, err)
	assert.Equal(t, "s1", frame.SessionID)
	assert.Equal(t, "assistant", frame.Type)

	decoded, ok := decodeFrame(frame, 1000)
	require.True(t, ok)
	require.NotNil(t, decoded)
	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, msg.MessageID, decoded.MessageID)
	assert.Equal(t, "hi", decoded.Content[0].Text)
	assert.Equal(t, "claude-sonnet", decoded.Metadata["model"])
	assert.Equal(t, int64(1000), decoded.ReceivedAt)
}

func TestDecodeFrameTreatsEmptyTypeAsConsumed(t *testing.T) {
	msg, ok := decodeFrame(&wireFrame{SessionID: "s1"}, 1000)
	assert.True(t, ok)
	assert.Nil(t, msg)
}

func TestDecodeFrameNilReportsConsumed(t *testing.T) {
	msg, ok := decodeFrame(nil, 1000)
	assert.True(t, ok)
	assert.Nil(t, msg)
}
