package pipeline

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/WhileEndless/go-httpengine/pkg/headers"
	"github.com/WhileEndless/go-httpengine/pkg/request"
	"github.com/WhileEndless/go-httpengine/pkg/suspend"
	"github.com/WhileEndless/go-httpengine/pkg/transport"
)

// setupTestServer starts a one-shot TCP listener that writes rawResponse to
// the first connection it accepts, mirroring the setupTestServer helper
// used by the retrieved pack's own client tests.
func setupTestServer(t *testing.T, rawResponse string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(rawResponse))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// drivePoll waits on a PollNeeded with a short deadline suited to a loopback
// test server, failing the test if nothing becomes ready in time.
func drivePoll(t *testing.T, poll *suspend.PollNeeded) {
	t.Helper()
	p, err := suspend.NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer p.Close()
	ready, err := p.Wait(*poll, 2000)
	if err != nil {
		t.Fatalf("poller wait: %v", err)
	}
	if !ready {
		t.Fatalf("timed out waiting for fd %d", poll.FD)
	}
}

func newRequest(method, target, host string, mode request.BodyMode, body []byte) *request.Request {
	return &request.Request{
		Method:  method,
		Target:  target,
		Host:    host,
		Headers: headers.New(),
		Mode:    mode,
		Body:    body,
	}
}

func TestConnection_FixedLengthResponse(t *testing.T) {
	host, port := setupTestServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	conn, err := Connect(host, port, transport.Options{ConnectTimeout: time.Second}, Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.SendRequest(newRequest("GET", "/", host+":"+strconv.Itoa(port), request.NoBody, nil)); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	for {
		poll, err := conn.FlushSend()
		if err != nil {
			t.Fatalf("FlushSend: %v", err)
		}
		if poll == nil {
			break
		}
		drivePoll(t, poll)
	}

	var resp *struct{}
	_ = resp
	for {
		r, poll, err := conn.ReadResponse()
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if poll != nil {
			drivePoll(t, poll)
			continue
		}
		if r.StatusCode != 200 {
			t.Errorf("expected status 200, got %d", r.StatusCode)
		}
		break
	}

	var body []byte
	for {
		b, poll, err := conn.ReadAll()
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if poll != nil {
			drivePoll(t, poll)
			continue
		}
		body = b
		break
	}

	if string(body) != "hello" {
		t.Errorf("expected body %q, got %q", "hello", body)
	}
	if conn.ResponsePending() {
		t.Error("expected no responses pending after full read")
	}
}

func TestConnection_ChunkedResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nfoo\r\n3\r\nbar\r\n0\r\n\r\n"
	host, port := setupTestServer(t, raw)

	conn, err := Connect(host, port, transport.Options{ConnectTimeout: time.Second}, Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.SendRequest(newRequest("GET", "/", host, request.NoBody, nil)); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	for {
		poll, err := conn.FlushSend()
		if err != nil {
			t.Fatalf("FlushSend: %v", err)
		}
		if poll == nil {
			break
		}
		drivePoll(t, poll)
	}

	for {
		_, poll, err := conn.ReadResponse()
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if poll != nil {
			drivePoll(t, poll)
			continue
		}
		break
	}

	var body []byte
	for {
		b, poll, err := conn.ReadAll()
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if poll != nil {
			drivePoll(t, poll)
			continue
		}
		body = b
		break
	}

	if string(body) != "foobar" {
		t.Errorf("expected %q, got %q", "foobar", body)
	}
}

func TestConnection_HeadHasNoBody(t *testing.T) {
	host, port := setupTestServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n")

	conn, err := Connect(host, port, transport.Options{ConnectTimeout: time.Second}, Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.SendRequest(newRequest("HEAD", "/", host, request.NoBody, nil)); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	for {
		poll, err := conn.FlushSend()
		if err != nil {
			t.Fatalf("FlushSend: %v", err)
		}
		if poll == nil {
			break
		}
		drivePoll(t, poll)
	}

	for {
		r, poll, err := conn.ReadResponse()
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if poll != nil {
			drivePoll(t, poll)
			continue
		}
		if r.Framing != 0 {
			t.Errorf("expected FramingNone for a HEAD response, got %v", r.Framing)
		}
		break
	}
}

// setupEchoServer starts a one-shot TCP listener that reads the whole
// request (head plus declared body) off the first connection it accepts,
// optionally sending a 100-continue interim response after the head, then
// writes rawResponse. Used to exercise the send-side streamed-body and
// Expect:100-continue rendezvous, which the request/response half alone
// (setupTestServer) can't drive.
func setupEchoServer(t *testing.T, send100 bool, bodyLen int, rawResponse string) (host string, port int, gotBody chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	gotBody = make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := make([]byte, 4096)
		total := 0
		for {
			n, err := conn.Read(br[total:])
			if err != nil {
				return
			}
			total += n
			if strings.Contains(string(br[:total]), "\r\n\r\n") {
				break
			}
		}

		if send100 {
			conn.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
		}

		body := make([]byte, bodyLen)
		read := 0
		for read < bodyLen {
			n, err := conn.Read(body[read:])
			if err != nil {
				return
			}
			read += n
		}
		gotBody <- body

		conn.Write([]byte(rawResponse))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, gotBody
}

// TestConnection_BodyFollowingWithExpect100 exercises a PUT with a declared
// Content-Length whose body bytes don't exist yet at SendRequest time (the
// BodyFollowing(n) case), gated by an Expect:100-continue rendezvous: the
// body must not go out until the 100-continue interim response has been
// observed, and FlushSend/Write must keep the request's sendState at the
// head of the FIFO until the whole declared body has actually been written.
func TestConnection_BodyFollowingWithExpect100(t *testing.T) {
	host, port, gotBody := setupEchoServer(t, true, 4, "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n")

	conn, err := Connect(host, port, transport.Options{ConnectTimeout: time.Second}, Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	req := &request.Request{
		Method:        "PUT",
		Target:        "/upload",
		Host:          host,
		Headers:       headers.New(),
		Mode:          request.FixedLength,
		ContentLength: 4,
		Expect100:     true,
	}
	if err := conn.SendRequest(req); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	for {
		poll, err := conn.FlushSend()
		if err != nil {
			t.Fatalf("FlushSend: %v", err)
		}
		if poll == nil {
			break
		}
		drivePoll(t, poll)
	}

	// The head is on the wire but the body must not be written until the
	// 100-continue rendezvous completes.
	if !conn.AwaitingContinue() {
		t.Fatal("expected AwaitingContinue to be true after the head is flushed but before a 100-continue arrives")
	}
	if _, _, err := conn.Write([]byte("test")); err == nil {
		t.Fatal("expected Write to reject body bytes before the 100-continue rendezvous completes")
	}

	for conn.AwaitingContinue() {
		_, poll, err := conn.ReadResponse()
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if !conn.AwaitingContinue() {
			break
		}
		if poll != nil {
			drivePoll(t, poll)
		}
	}

	for {
		_, poll, err := conn.Write([]byte("test"))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if poll == nil {
			break
		}
		drivePoll(t, poll)
	}
	for {
		poll, err := conn.FlushSend()
		if err != nil {
			t.Fatalf("FlushSend: %v", err)
		}
		if poll == nil {
			break
		}
		drivePoll(t, poll)
	}

	select {
	case body := <-gotBody:
		if string(body) != "test" {
			t.Fatalf("expected server to observe body %q, got %q", "test", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to observe the streamed body")
	}

	for {
		r, poll, err := conn.ReadResponse()
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if poll != nil {
			drivePoll(t, poll)
			continue
		}
		if r.StatusCode != 201 {
			t.Errorf("expected status 201, got %d", r.StatusCode)
		}
		break
	}
}

func TestWrite_RejectsExcessBodyData(t *testing.T) {
	host, port := setupTestServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

	conn, err := Connect(host, port, transport.Options{ConnectTimeout: time.Second}, Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	req := newRequest("POST", "/", host, request.FixedLength, nil)
	req.Mode = request.FixedLength
	if err := conn.SendRequest(req); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	_, _, err = conn.Write([]byte("unexpected"))
	if err == nil || !strings.Contains(err.Error(), "remained") {
		t.Fatalf("expected an excess body data error writing past a zero-length declared body, got %v", err)
	}
}
