package buildinfo

import (
	"strings"
	"testing"
)

func TestInfoKeys(t *testing.T) {
	info := Info()
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "uptime"} {
		if _, ok := info[k]; !ok {
			t.Errorf("Info() missing %q", k)
		}
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); !strings.HasPrefix(ua, "errand/"+Version) {
		t.Errorf("UserAgent() = %q", ua)
	}
}
