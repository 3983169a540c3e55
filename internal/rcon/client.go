// Package rcon talks to The Isle Evrima RCON port.
package rcon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

var ErrAuth = errors.New("rcon: login rejected")

const (
	opLogin      byte = 0x01
	opCommand    byte = 0x02
	cmdPlayerLst byte = 0x77
)

// idleGap ends a response once the server stops sending for this long.
const idleGap = 250 * time.Millisecond

type Client struct {
	addr     string
	password string
	timeout  time.Duration
	dialer   net.Dialer
}

func New(host string, port int, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		password: password,
		timeout:  timeout,
	}
}

func (c *Client) Addr() string { return c.addr }

// PlayerList returns the raw text of the player list command.
func (c *Client) PlayerList(ctx context.Context) (string, error) {
	return c.Exec(ctx, []byte{opCommand, cmdPlayerLst, 0x00})
}

// Exec opens a session, logs in and sends one raw command frame.
func (c *Client) Exec(ctx context.Context, frame []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("rcon dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	login := make([]byte, 0, len(c.password)+2)
	login = append(login, opLogin)
	login = append(login, c.password...)
	login = append(login, 0x00)
	if _, err := conn.Write(login); err != nil {
		return "", fmt.Errorf("rcon login write: %w", err)
	}
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("rcon login read: %w", err)
	}
	if !bytes.Contains(buf[:n], []byte("Accepted")) {
		return "", ErrAuth
	}

	if _, err := conn.Write(frame); err != nil {
		return "", fmt.Errorf("rcon command write: %w", err)
	}
	return readResponse(ctx, conn)
}

// readResponse blocks for the first chunk, then keeps reading until the
// server goes quiet or the context deadline passes.
func readResponse(ctx context.Context, conn net.Conn) (string, error) {
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			if out.Len() > 0 && endOfResponse(err) {
				return out.String(), nil
			}
			return "", fmt.Errorf("rcon read: %w", err)
		}
		next := time.Now().Add(idleGap)
		if dl, ok := ctx.Deadline(); ok && dl.Before(next) {
			next = dl
		}
		_ = conn.SetReadDeadline(next)
	}
}

func endOfResponse(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
