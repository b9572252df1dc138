package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("Get() returned empty version")
	}
	if strings.TrimSpace(v) != v {
		t.Errorf("Get() = %q, want trimmed", v)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); ua != "waypoint/"+Get() {
		t.Errorf("UserAgent() = %q", ua)
	}
}
