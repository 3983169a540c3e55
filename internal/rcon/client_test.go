package rcon

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

// fakeServer accepts one session, checks the login frame and answers the
// command with reply split over two writes.
func fakeServer(t *testing.T, password string, reply ...string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil { t.Fatalf("listen: %v", err) }
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil { return }
		defer conn.Close()
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		want := append(append([]byte{opLogin}, password...), 0x00)
		if !bytes.Equal(buf[:n], want) {
			_, _ = conn.Write([]byte("Password Rejected"))
			return
		}
		_, _ = conn.Write([]byte("Password Accepted"))
		n, _ = conn.Read(buf)
		if !bytes.Equal(buf[:n], []byte{opCommand, cmdPlayerLst, 0x00}) { return }
		for _, part := range reply {
			_, _ = conn.Write([]byte(part))
			time.Sleep(20 * time.Millisecond)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestPlayerListReadsWholeResponse(t *testing.T) {
	host, port := fakeServer(t, "secret", "Name: A, PlayerID: 1, ", "Class: BP_Rex_C, Growth: 0.5")
	c := New(host, port, "secret", 2*time.Second)

	got, err := c.PlayerList(context.Background())
	if err != nil { t.Fatalf("PlayerList: %v", err) }
	if got != "Name: A, PlayerID: 1, Class: BP_Rex_C, Growth: 0.5" { t.Fatalf("response = %q", got) }
}

func TestLoginRejected(t *testing.T) {
	host, port := fakeServer(t, "secret")
	c := New(host, port, "wrong", 2*time.Second)
	if _, err := c.PlayerList(context.Background()); !errors.Is(err, ErrAuth) { t.Fatalf("err = %v, want ErrAuth", err) }
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil { t.Fatalf("listen: %v", err) }
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c := New("127.0.0.1", port, "x", time.Second)
	if c.Addr() != "127.0.0.1:"+strconv.Itoa(port) { t.Fatalf("Addr = %s", c.Addr()) }
	if _, err := c.PlayerList(context.Background()); err == nil { t.Fatalf("expected dial error") }
}
