package protocol

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// startResponder answers every datagram with reply(request).
func startResponder(t *testing.T, reply func(req []byte) []byte) int {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen on loopback UDP: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if out := reply(buf[:n]); out != nil {
				_, _ = pc.WriteTo(out, addr)
			}
		}
	}()
	return pc.LocalAddr().(*net.UDPAddr).Port
}

func TestClientQuery(t *testing.T) {
	port := startResponder(t, func(req []byte) []byte {
		if len(req) != 1 || req[0] != MsgClientUnicastEx {
			return nil
		}
		return EncodePayload("ServerName;HOST1;InstanceName;SQLEXPRESS;tcp;1533;;;")
	})

	c := &Client{Timeout: time.Second, Port: port}
	resp, err := c.Query(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(resp.Records))
	}
	if resp.Records[0].Port != 1533 {
		t.Errorf("port = %d, want 1533", resp.Records[0].Port)
	}
}

func TestClientQueryInstance(t *testing.T) {
	port := startResponder(t, func(req []byte) []byte {
		if req[0] != MsgClientUnicastInst || string(req[1:len(req)-1]) != "PROD" {
			return nil
		}
		return EncodePayload("ServerName;H;InstanceName;PROD;tcp;50000;;;")
	})

	c := &Client{Timeout: time.Second, Port: port}
	resp, err := c.QueryInstance(context.Background(), "127.0.0.1", "PROD")
	if err != nil {
		t.Fatalf("QueryInstance() error: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].InstanceName != "PROD" {
		t.Errorf("records = %v", resp.Records)
	}
}

func TestClientUnexpectedMarker(t *testing.T) {
	port := startResponder(t, func([]byte) []byte {
		return []byte{0x01, 0x00, 0x00}
	})

	c := &Client{Timeout: time.Second, Port: port}
	_, err := c.Query(context.Background(), "127.0.0.1")
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("Query() error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestClientTimeout(t *testing.T) {
	port := startResponder(t, func([]byte) []byte { return nil })

	c := &Client{Timeout: 50 * time.Millisecond, Port: port}
	start := time.Now()
	_, err := c.Query(context.Background(), "127.0.0.1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Query() took %v, timeout not honoured", elapsed)
	}
}
