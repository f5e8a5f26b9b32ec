package kafkax

import (
	"context"
	"net"
	"strings"
	"testing"
)

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(" , ")(context.Background()); err == nil {
		t.Fatal("expected an error without brokers")
	}
}

func TestReadyCheckAnyBrokerIsEnough(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	// A closed port first, then the live listener.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := dead.Addr().String()
	_ = dead.Close()

	check := ReadyCheck(deadAddr + "," + ln.Addr().String())
	if err := check(context.Background()); err != nil {
		t.Fatalf("ReadyCheck: %v", err)
	}

	err = ReadyCheck(deadAddr)(context.Background())
	if err == nil || !strings.Contains(err.Error(), deadAddr) {
		t.Fatalf("expected an error naming %s, got %v", deadAddr, err)
	}
}
