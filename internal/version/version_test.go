package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("Get() returned an empty version")
	}
	if strings.TrimSpace(v) != v {
		t.Errorf("Get() = %q, want trimmed", v)
	}
}

func TestString(t *testing.T) {
	if got, want := String(), "opsmesh version "+Get(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestAppID(t *testing.T) {
	id := AppID()
	if !regexp.MustCompile("^[a-zA-Z0-9!#$%&'*+\\-.^_`|~]{1,50}$").MatchString(id) {
		t.Errorf("AppID() = %q is not a valid AWS app id", id)
	}
	if !strings.HasPrefix(id, "opsmesh-") {
		t.Errorf("AppID() = %q", id)
	}
}
