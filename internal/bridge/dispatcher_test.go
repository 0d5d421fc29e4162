package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaunagostinho/portbridge/internal/message"
	"github.com/shaunagostinho/portbridge/internal/serialport"
)

func TestDispatchExecute(t *testing.T) {
	link := serialport.NewLoopback(9600)
	d := NewDispatcher(ModeStructured, link, nil, zap.NewNop())

	res, err := d.Dispatch(context.Background(), &message.Command{MessageType: message.TypeExecute, Data: message.Bytes{128, 131}})
	require.NoError(t, err)
	require.Equal(t, ActionWrite, res.Action)
	require.Equal(t, message.NewOK(0), res.Response)
	require.Equal(t, 2, res.Written)
}

func TestDispatchNonExecuteTypesAreFatal(t *testing.T) {
	link := serialport.NewLoopback(9600)
	d := NewDispatcher(ModeStructured, link, nil, zap.NewNop())
	for _, mt := range []uint8{0, 1, 2, 4, 5, 42, 255} {
		res, err := d.Dispatch(context.Background(), &message.Command{MessageType: message.MessageType(mt)})
		require.Error(t, err, "type %d", mt)
		require.True(t, IsFatal(err))
		require.Nil(t, res.Response)
	}
	require.Empty(t, link.Writes())
}

func TestParseMode(t *testing.T) {
	testCases := []struct {
		in     string
		expect Mode
	}{
		{"structured", ModeStructured},
		{"JSON", ModeStructured},
		{"", ModeStructured},
		{"raw", ModeRawPower},
		{"raw-power", ModeRawPower},
		{" raw-minimal ", ModeRawMinimal},
		{"minimal", ModeRawMinimal},
	}
	for _, tc := range testCases {
		m, err := ParseMode(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.expect, m, tc.in)
	}
	_, err := ParseMode("erlang")
	require.Error(t, err)

	require.Equal(t, "raw-power", ModeRawPower.String())
	require.Equal(t, "mode(9)", Mode(9).String())
	require.True(t, ModeStructured.Structured())
	require.False(t, ModeRawMinimal.Structured())
}
