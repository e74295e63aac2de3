package ssserver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dfs/internal/wire"
)

func TestDispatchNSCreateReadUpdateDelete(t *testing.T) {
	s := newTestServer(t)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		for {
			msg, err := wire.ReadMessage(serverConn)
			if err != nil {
				return
			}
			if !s.dispatchNS(serverConn, msg) {
				return
			}
		}
	}()

	require.NoError(t, wire.WriteMessage(clientConn, wire.MsgCreate, wire.ComponentNS, wire.ComponentSS, "report.txt", nil))
	resp, err := wire.ReadMessage(clientConn)
	require.NoError(t, err)
	require.Equal(t, wire.MsgAck, resp.Header.Type)

	require.NoError(t, wire.WriteMessage(clientConn, wire.MsgInternalSetOwner, wire.ComponentNS, wire.ComponentSS, "report.txt", wire.EncodeString("alice")))
	resp, err = wire.ReadMessage(clientConn)
	require.NoError(t, err)
	require.Equal(t, wire.MsgAck, resp.Header.Type)

	require.NoError(t, wire.WriteMessage(clientConn, wire.MsgInternalGetMetadata, wire.ComponentNS, wire.ComponentSS, "report.txt", nil))
	resp, err = wire.ReadMessage(clientConn)
	require.NoError(t, err)
	require.Equal(t, wire.MsgInternalMetadataResp, resp.Header.Type)

	rec, err := s.Meta.Get("report.txt")
	require.NoError(t, err)
	require.Equal(t, "alice", rec.Owner)

	require.NoError(t, wire.WriteMessage(clientConn, wire.MsgDelete, wire.ComponentNS, wire.ComponentSS, "report.txt", nil))
	resp, err = wire.ReadMessage(clientConn)
	require.NoError(t, err)
	require.Equal(t, wire.MsgAck, resp.Header.Type)

	_, err = s.Meta.Get("report.txt")
	require.Error(t, err)
}
