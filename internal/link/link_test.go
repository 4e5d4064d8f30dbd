package link

import (
	"testing"

	"github.com/danmuck/wearctl/internal/testutil/testlog"
)

func TestIsCompatiblePeripheral(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		p    Peripheral
		want bool
	}{
		{"uart service", Peripheral{Services: []string{"180f", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"}}, true},
		{"name prefix", Peripheral{LocalName: "Feather-7c"}, true},
		{"unrelated", Peripheral{LocalName: "Headphones", Services: []string{"180d"}}, false},
		{"empty", Peripheral{}, false},
	}
	for _, tc := range cases {
		if got := IsCompatiblePeripheral(tc.p); got != tc.want {
			t.Fatalf("%s: got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestEventKindString(t *testing.T) {
	testlog.Start(t)
	if EventSignal.String() != "signal" || EventKind(0).String() != "unknown" {
		t.Fatalf("unexpected kind strings")
	}
}
