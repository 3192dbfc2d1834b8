package endpoint

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		sandboxPrefix string
		wantScheme    string
		wantPath      string
		wantHost      string
		wantPort      int
		wantErr       bool
	}{
		{
			name:       "file URL with absolute path",
			url:        "file:///var/tmp/revfs.socket",
			wantScheme: SchemeFile,
			wantPath:   "/var/tmp/revfs.socket",
		},
		{
			name:          "file URL with sandbox prefix",
			url:           "file:///run/revfs.socket",
			sandboxPrefix: "/sandbox",
			wantScheme:    SchemeFile,
			wantPath:      "/sandbox/run/revfs.socket",
		},
		{
			name:       "tcp URL with host and port",
			url:        "tcp://0.0.0.0:9999",
			wantScheme: SchemeTCP,
			wantHost:   "0.0.0.0",
			wantPort:   9999,
		},
		{
			name:       "tcp URL defaults",
			url:        "tcp://",
			wantScheme: SchemeTCP,
			wantHost:   DefaultHost,
			wantPort:   DefaultPort,
		},
		{
			name:       "tcp URL with host only",
			url:        "tcp://10.0.0.1",
			wantScheme: SchemeTCP,
			wantHost:   "10.0.0.1",
			wantPort:   DefaultPort,
		},
		{
			name:    "unknown scheme",
			url:     "ftp://example.com/store",
			wantErr: true,
		},
		{
			name:    "empty scheme",
			url:     "/var/tmp/revfs.socket",
			wantErr: true,
		},
		{
			name:    "file URL without path",
			url:     "file://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := Parse(tt.url, tt.sandboxPrefix)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ep.Scheme != tt.wantScheme {
				t.Errorf("Scheme = %q, want %q", ep.Scheme, tt.wantScheme)
			}
			if ep.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", ep.Path, tt.wantPath)
			}
			if ep.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", ep.Host, tt.wantHost)
			}
			if ep.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", ep.Port, tt.wantPort)
			}
		})
	}
}

func TestListenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revfs.socket")

	ep, err := Parse("file://"+path, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ln, err := ep.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Socket file not created: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Errorf("Expected a socket at %s, got mode %v", path, info.Mode())
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()
}

func TestListenFileRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revfs.socket")

	// A leftover file from a previous run must not block bind.
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("Failed to create stale file: %v", err)
	}

	ep, err := Parse("file://"+path, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ln, err := ep.Listen()
	if err != nil {
		t.Fatalf("Listen failed with stale socket present: %v", err)
	}
	ln.Close()
}

func TestListenTCP(t *testing.T) {
	ep, err := Parse("tcp://127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ln, err := ep.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("Expected TCP listener, got %T", ln.Addr())
	}
	if addr.Port == 0 {
		t.Error("Listener port is 0, socket not bound")
	}
	if got := addr.IP.String(); got != "127.0.0.1" {
		t.Errorf("Bound to %s, want 127.0.0.1", got)
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()
}

func TestListenFileBindFailure(t *testing.T) {
	// Binding inside a directory that does not exist must fail and report
	// the URL.
	ep, err := Parse("file:///nonexistent-dir-for-revfs-test/revfs.socket", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := ep.Listen(); err == nil {
		t.Fatal("Listen succeeded on a nonexistent directory")
	}
}
