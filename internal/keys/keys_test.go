package keys

import (
	"strings"
	"testing"
)

func TestKeys(t *testing.T) {
	if got := Row("app", "user", "7"); got != "app:user:7" {
		t.Fatalf("Row = %q", got)
	}
	if got := Row("", "user", "7"); got != "user:7" {
		t.Fatalf("Row without namespace = %q", got)
	}
	if got := Index("app", "user", "email", "a@x"); got != "app:idx:user:email:a@x" {
		t.Fatalf("Index = %q", got)
	}
}

func TestCompactLongValues(t *testing.T) {
	long := strings.Repeat("x", 200)
	a := Compact(long)
	if len(a) != 17 || a[0] != '#' {
		t.Fatalf("Compact = %q", a)
	}
	if Compact(long) != a {
		t.Fatalf("Compact not deterministic")
	}
	if Compact(long+"y") == a {
		t.Fatalf("different values share a key")
	}
	if Compact("short") != "short" {
		t.Fatalf("short value changed")
	}
}
