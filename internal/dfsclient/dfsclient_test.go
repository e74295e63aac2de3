package dfsclient_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dfs/internal/dfsclient"
	"github.com/marmos91/dfs/internal/metrics"
	"github.com/marmos91/dfs/internal/nsserver"
	"github.com/marmos91/dfs/internal/ssserver"
	"github.com/marmos91/dfs/internal/wire"
)

// harness starts a real name server and a real storage server on loopback
// TCP and lets the SS complete its registration handshake before handing
// back their addresses.
type harness struct {
	ns *nsserver.Server
	ss *ssserver.Server
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()

	ns := nsserver.New("127.0.0.1:0", 64, 4, metrics.NewNSMetrics(reg))
	go func() {
		if err := ns.ListenAndServe(); err != nil {
			t.Logf("ns server stopped: %v", err)
		}
	}()
	waitListening(t, func() string { return ns.Addr() })

	ss, err := ssserver.New("127.0.0.1:0", ns.Addr(), "127.0.0.1", 0, t.TempDir(), metrics.NewSSMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	go func() {
		if err := ss.ListenAndServe(); err != nil {
			t.Logf("ss server stopped: %v", err)
		}
	}()
	waitListening(t, func() string { return ss.Addr() })

	h := &harness{ns: ns, ss: ss}
	t.Cleanup(func() {
		ss.Stop()
		ns.Stop()
	})
	return h
}

func waitListening(t *testing.T, addr func() string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr() != "" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never started listening")
}

// waitRegistered retries Create until the SS has finished registering with
// the NS (or the deadline passes), since that handshake runs asynchronously
// on the SS side.
func waitRegistered(t *testing.T, sess *dfsclient.Session, probe string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var err error
	for time.Now().Before(deadline) {
		if err = sess.NS().Create(probe); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("storage server never registered: %v", err)
}

func TestSessionEndToEnd(t *testing.T) {
	h := startHarness(t)

	alice, err := dfsclient.Connect(h.ns.Addr(), "alice")
	require.NoError(t, err)
	defer alice.Close()

	waitRegistered(t, alice, "__probe__")

	require.NoError(t, alice.NS().Create("report.txt"))

	require.NoError(t, alice.WriteSentence("report.txt", 1, []dfsclient.Edit{
		{WordIndex: 1, Content: "Quarterly results look good."},
	}))

	lines, err := alice.ReadFile("report.txt")
	require.NoError(t, err)
	require.Equal(t, []string{"Quarterly results look good."}, lines)

	require.NoError(t, alice.Checkpoint("report.txt", "v1"))

	require.NoError(t, alice.WriteSentence("report.txt", 1, []dfsclient.Edit{
		{WordIndex: 5, Content: "Revised."},
	}))

	tags, err := alice.ListCheckpoints("report.txt")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.Contains(t, tags[0], "|v1|alice|")

	require.NoError(t, alice.Revert("report.txt", "v1"))

	lines, err = alice.ReadFile("report.txt")
	require.NoError(t, err)
	require.Equal(t, []string{"Quarterly results look good."}, lines)

	info, err := alice.NS().Info("report.txt")
	require.NoError(t, err)
	require.Equal(t, "alice", info.Record.Owner)

	bob, err := dfsclient.Connect(h.ns.Addr(), "bob")
	require.NoError(t, err)
	defer bob.Close()

	users, err := bob.NS().List()
	require.NoError(t, err)
	require.Contains(t, users, "alice")

	require.Error(t, bob.WriteSentence("report.txt", 1, []dfsclient.Edit{{WordIndex: 1, Content: "hack"}}))

	require.NoError(t, alice.NS().AddAccess("report.txt", "bob", wire.PermissionWrite))
	require.NoError(t, bob.WriteSentence("report.txt", 1, []dfsclient.Edit{{WordIndex: 5, Content: "Confirmed."}}))
}
