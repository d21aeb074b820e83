//go:build linux

package lineserver

import (
	"bufio"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lutongjia9090/tinykv/internal/storage"
)

func startTestServer(t *testing.T) (addr string, engine storage.Engine, srv *Server) {
	t.Helper()

	engine = storage.NewMemory()
	srv = New("127.0.0.1", freePort(t), engine)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	return net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.port)), engine, srv
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func roundTrip(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)

	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return reply[:len(reply)-2]
}

func TestPutThenGetOverWire(t *testing.T) {
	addr, _, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, "SUCCESS success", roundTrip(t, conn, "PUT k1 v1"))
	require.Equal(t, "SUCCESS success v1", roundTrip(t, conn, "GET k1"))
}

func TestGetMissingOverWire(t *testing.T) {
	addr, _, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, "FAIL key not found", roundTrip(t, conn, "GET missing"))
}

func TestUnknownVerbOverWire(t *testing.T) {
	addr, _, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, "FAIL unknown operation", roundTrip(t, conn, "BOGUS a b"))
}

func TestFragmentedRequestAcrossWrites(t *testing.T) {
	addr, _, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("PUT k"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write([]byte("1 v1\r\n"))
	require.NoError(t, err)

	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "SUCCESS success", reply[:len(reply)-2])
}

func TestMultiRequestsOnOneConnectionPreserveOrder(t *testing.T) {
	addr, _, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	_, err = conn.Write([]byte("PUT a 1\r\nPUT b 2\r\nGET a\r\nGET b\r\n"))
	require.NoError(t, err)

	var got []string
	for i := 0; i < 4; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		got = append(got, line[:len(line)-2])
	}
	require.Equal(t, []string{
		"SUCCESS success",
		"SUCCESS success",
		"SUCCESS success 1",
		"SUCCESS success 2",
	}, got)
}

func TestStopClosesListener(t *testing.T) {
	addr, _, srv := startTestServer(t)
	require.NoError(t, srv.Stop())

	_, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	require.Error(t, err)
}
