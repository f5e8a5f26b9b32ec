package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("localhost:6379")
	if err != nil || opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected options %+v err=%v", opts, err)
	}

	opts, err = ParseOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("ParseOptions url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Fatalf("unexpected url options %+v", opts)
	}

	if _, err := ParseOptions(""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestOpenAndReady(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Open(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rdb.Close()

	if err := ReadyCheck(rdb)(context.Background()); err != nil {
		t.Fatalf("ReadyCheck: %v", err)
	}
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
