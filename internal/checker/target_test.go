package checker

import "testing"

func TestParseTarget_IPv4(t *testing.T) {
	testCases := []struct {
		name     string
		target   string
		wantHost string
		wantPort string
	}{
		{name: "Plain IPv4", target: "192.168.1.1", wantHost: "192.168.1.1"},
		{name: "IPv4 with HTTP", target: "http://192.168.1.1", wantHost: "192.168.1.1"},
		{name: "IPv4 with port", target: "192.168.1.1:8080", wantHost: "192.168.1.1", wantPort: "8080"},
		{name: "IPv4 with HTTPS and port", target: "https://192.168.1.1:443", wantHost: "192.168.1.1", wantPort: "443"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseTarget(tc.target)
			if info.Host != tc.wantHost {
				t.Errorf("Expected host '%s', got '%s'", tc.wantHost, info.Host)
			}
			if info.Port != tc.wantPort {
				t.Errorf("Expected port '%s', got '%s'", tc.wantPort, info.Port)
			}
		})
	}
}

func TestParseTarget_IPv6(t *testing.T) {
	testCases := []struct {
		name     string
		target   string
		wantHost string
	}{
		{name: "IPv6 with brackets", target: "http://[2001:db8::1]", wantHost: "2001:db8::1"},
		{name: "IPv6 with brackets and port", target: "https://[2001:db8::1]:443", wantHost: "2001:db8::1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseTarget(tc.target)
			if info.Host != tc.wantHost {
				t.Errorf("Expected host '%s', got '%s'", tc.wantHost, info.Host)
			}
		})
	}
}

func TestParseTarget_EdgeCases(t *testing.T) {
	for _, target := range []string{"", "http://", "ht!tp://example.com", "   "} {
		t.Run(target, func(t *testing.T) {
			info := ParseTarget(target)
			if info == nil {
				t.Fatalf("Expected non-nil result for target %q", target)
			}
			if info.Original != target {
				t.Errorf("Expected original '%s', got '%s'", target, info.Original)
			}
		})
	}
}

func TestNormalizeTarget(t *testing.T) {
	testCases := []struct {
		target string
		want   string
	}{
		{"example.com", "https://example.com/"},
		{"  example.com/path?q=1  ", "https://example.com/path?q=1"},
		{"http://example.com", "http://example.com/"},
		{"https://example.com/a#frag", "https://example.com/a#frag"},
	}

	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			if got := NormalizeTarget(tc.target); got != tc.want {
				t.Errorf("NormalizeTarget(%q) = %q, want %q", tc.target, got, tc.want)
			}
		})
	}
}
