package main

import "testing"

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "url with port", raw: "http://qdrant.internal:6334", wantHost: "qdrant.internal", wantPort: 6334},
		{name: "url without port defaults to 6334", raw: "http://qdrant.internal", wantHost: "qdrant.internal", wantPort: 6334},
		{name: "https with custom port", raw: "https://vectors.example.com:443", wantHost: "vectors.example.com", wantPort: 443},
		{name: "bare host falls back to raw", raw: "localhost", wantHost: "localhost", wantPort: 6334},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := splitHostPort(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("splitHostPort(%q) error: %v", tt.raw, err)
			}
			if host != tt.wantHost {
				t.Errorf("host = %q, want %q", host, tt.wantHost)
			}
			if port != tt.wantPort {
				t.Errorf("port = %d, want %d", port, tt.wantPort)
			}
		})
	}
}

func TestComponentsCloseToleratesNilFields(t *testing.T) {
	// Close must be safe on a partially-wired components value, since
	// wireComponents can fail midway and run still defers Close.
	c := &components{}
	c.Close()
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
}
