package browser

import (
	"context"
	"net"
	"strconv"
	"testing"
)

func TestArgsCarryDebuggingFlagsAndStartURL(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9220, ProfileDir: "/tmp/profile"})
	args := l.args()

	want := map[string]bool{
		"--remote-debugging-port=9220":         false,
		"--remote-debugging-address=127.0.0.1": false,
		"--user-data-dir=/tmp/profile":         false,
	}
	for _, a := range args {
		if _, ok := want[a]; ok {
			want[a] = true
		}
	}
	for flag, seen := range want {
		if !seen {
			t.Fatalf("args %v missing %s", args, flag)
		}
	}
	if last := args[len(args)-1]; last != "about:blank" {
		t.Fatalf("last arg = %q; want default start URL", last)
	}
}

func TestLaunchSkipsWhenPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: port, ProfileDir: t.TempDir()})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() = %v", err)
	}
	if l.Running() {
		t.Fatal("Running() = true; launcher should not own an existing browser")
	}
	if got := l.addr(); got != "127.0.0.1:"+strconv.Itoa(port) {
		t.Fatalf("addr() = %q", got)
	}
}
