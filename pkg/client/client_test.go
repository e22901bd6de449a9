package client

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/master"
	"github.com/wikieden/tachyon/pkg/tachyon"
)

// freePort asks the OS for an unused TCP port, the way the teacher's
// integration tests pick fixed high ports but without risking
// collisions between test runs.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startTestMaster(t *testing.T) (*master.Server, tachyon.NetAddress) {
	t.Helper()
	port := freePort(t)
	addr := tachyon.NetAddress{Host: "127.0.0.1", Port: port}
	svc := master.NewMasterService("ufs://test", time.Now)
	srv, err := master.NewServer(addr.String(), svc)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)
	return srv, addr
}

func TestMasterClientCreateFileAndGetFileID(t *testing.T) {
	_, addr := startTestMaster(t)
	c := NewMasterClient(addr)

	id, err := c.CreateFile("/a/b.txt")
	require.NoError(t, err)

	gotID, err := c.GetFileID("/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
}

func TestMasterClientMkdirAndLs(t *testing.T) {
	_, addr := startTestMaster(t)
	c := NewMasterClient(addr)

	_, err := c.Mkdir("/dir")
	require.NoError(t, err)
	_, err = c.CreateFile("/dir/f.txt")
	require.NoError(t, err)

	infos, err := c.Ls("/dir")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "f.txt", infos[0].Name)
}

func TestMasterClientGetWorkerFailsWithNoWorkers(t *testing.T) {
	_, addr := startTestMaster(t)
	c := NewMasterClient(addr)

	_, err := c.GetWorker(true, "")
	assert.True(t, tachyon.Is(err, tachyon.NoLocalWorker))
}

func TestMasterClientDeleteRoundTrip(t *testing.T) {
	_, addr := startTestMaster(t)
	c := NewMasterClient(addr)

	id, err := c.CreateFile("/f.txt")
	require.NoError(t, err)

	ok, err := c.DeleteByID(id, false)
	require.NoError(t, err)
	assert.True(t, ok)

	gotID, err := c.GetFileID("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, tachyon.NoFileID, gotID)
}

func TestMasterClientRawTableRoundTrip(t *testing.T) {
	_, addr := startTestMaster(t)
	c := NewMasterClient(addr)

	id, err := c.CreateRawTable("/rt", 2, []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, c.UpdateRawTableMetadata(id, []byte("v2")))

	info, err := c.GetClientRawTableInfoByID(id)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Columns)
	assert.Equal(t, []byte("v2"), info.Metadata)
}
