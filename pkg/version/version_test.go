package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "abcdef"}
	if got, want := v.String(), "Version: 1.2.3-rc1\nBuild: abcdef"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	v.Metadata = ""
	if got := v.String(); !strings.HasPrefix(got, "Version: 1.2.3\n") {
		t.Errorf("got %q", got)
	}
}

func TestBuildInfo(t *testing.T) {
	if !strings.HasPrefix(BuildInfo(), "go") {
		t.Errorf("build info does not start with the go version: %q", BuildInfo())
	}
}
