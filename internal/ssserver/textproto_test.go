package ssserver

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dfs/internal/metrics"
	"github.com/marmos91/dfs/internal/ssmeta"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	base := t.TempDir()
	reg := prometheus.NewRegistry()
	s, err := New("", "", "127.0.0.1", 0, base, metrics.NewSSMetrics(reg))
	require.NoError(t, err)
	return s
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func connectClient(t *testing.T, s *Server, username string) *testClient {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go s.handleClient(serverConn)

	tc := &testClient{conn: clientConn, r: bufio.NewReader(clientConn)}
	tc.send(t, "USER "+username)
	require.Equal(t, "OK_200 USER_ACCEPTED", tc.readLine(t))
	return tc
}

func TestTextProtoWriteThenRead(t *testing.T) {
	s := newTestServer(t)
	tc := connectClient(t, s, "alice")
	defer tc.conn.Close()

	tc.send(t, "WRITE notes.txt 1")
	require.Equal(t, "OK_200 WRITE_READY", tc.readLine(t))

	tc.send(t, "1 Hello world.")
	require.Equal(t, "OK_200 INSERTED", tc.readLine(t))

	tc.send(t, "ETIRW")
	require.Equal(t, "OK_200 COMMITTED", tc.readLine(t))

	tc.send(t, "READ notes.txt")
	require.Equal(t, "OK_200", tc.readLine(t))
	require.Equal(t, "Hello world.", tc.readLine(t))
	require.Equal(t, endOfFile, tc.readLine(t))
}

func TestTextProtoWriteConflict(t *testing.T) {
	s := newTestServer(t)
	alice := connectClient(t, s, "alice")
	defer alice.conn.Close()
	bob := connectClient(t, s, "bob")
	defer bob.conn.Close()

	alice.send(t, "WRITE shared.txt 1")
	require.Equal(t, "OK_200 WRITE_READY", alice.readLine(t))

	bob.send(t, "WRITE shared.txt 1")
	require.Equal(t, statusErr409+" sentence is locked by another connection", bob.readLine(t))
}

func TestTextProtoCheckpointAndRevert(t *testing.T) {
	s := newTestServer(t)
	tc := connectClient(t, s, "alice")
	defer tc.conn.Close()

	tc.send(t, "WRITE doc.txt 1")
	require.Equal(t, "OK_200 WRITE_READY", tc.readLine(t))
	tc.send(t, "1 Hello world.")
	require.Equal(t, "OK_200 INSERTED", tc.readLine(t))
	tc.send(t, "ETIRW")
	require.Equal(t, "OK_200 COMMITTED", tc.readLine(t))

	tc.send(t, "CHECKPOINT doc.txt v1")
	require.Equal(t, "OK_201 CHECKPOINT_CREATED", tc.readLine(t))

	tc.send(t, "WRITE doc.txt 1")
	require.Equal(t, "OK_200 WRITE_READY", tc.readLine(t))
	tc.send(t, "3 Farewell")
	require.Equal(t, "OK_200 INSERTED", tc.readLine(t))
	tc.send(t, "ETIRW")
	require.Equal(t, "OK_200 COMMITTED", tc.readLine(t))

	tc.send(t, "REVERT doc.txt v1")
	require.Equal(t, "OK_200 REVERTED", tc.readLine(t))

	tc.send(t, "READ doc.txt")
	require.Equal(t, "OK_200", tc.readLine(t))
	require.Equal(t, "Hello world.", tc.readLine(t))
	require.Equal(t, endOfFile, tc.readLine(t))
}

func TestTextProtoAccessRequestWorkflow(t *testing.T) {
	s := newTestServer(t)
	owner := connectClient(t, s, "alice")
	defer owner.conn.Close()

	owner.send(t, "WRITE shared.txt 1")
	require.Equal(t, "OK_200 WRITE_READY", owner.readLine(t))
	owner.send(t, "1 Hello.")
	require.Equal(t, "OK_200 INSERTED", owner.readLine(t))
	owner.send(t, "ETIRW")
	require.Equal(t, "OK_200 COMMITTED", owner.readLine(t))
	require.NoError(t, s.Meta.Mutate("shared.txt", func(r *ssmeta.Record) { r.Owner = "alice" }))

	bob := connectClient(t, s, "bob")
	defer bob.conn.Close()

	bob.send(t, "REQUESTACCESS shared.txt WRITE")
	require.Equal(t, "OK_201 REQUEST_RECORDED", bob.readLine(t))

	bob.send(t, "VIEWREQUESTS shared.txt")
	require.Equal(t, statusErr404+" not found or access denied", bob.readLine(t))

	owner.send(t, "VIEWREQUESTS shared.txt")
	require.Equal(t, "OK_200", owner.readLine(t))
	require.Contains(t, owner.readLine(t), "bob|WRITE|PENDING")
	require.Equal(t, endOfRequests, owner.readLine(t))

	owner.send(t, "APPROVEREQUEST shared.txt bob")
	require.Equal(t, "OK_200 APPROVED", owner.readLine(t))
}
