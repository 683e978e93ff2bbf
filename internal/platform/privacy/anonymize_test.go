package privacy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"presence/internal/platform/privacy"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ipv4", in: "203.0.113.57", want: "203.0.113.0"},
		{name: "ipv4 with port", in: "203.0.113.57:49218", want: "203.0.113.0"},
		{name: "ipv6", in: "2001:db8:85a3::8a2e:370:7334", want: "2001:0db8:85a3::"},
		{name: "ipv6 with port", in: "[2001:db8:85a3::1]:8080", want: "2001:0db8:85a3::"},
		{name: "loopback", in: "127.0.0.1", want: "127.0.0.0"},
		{name: "empty", in: "", want: "unknown"},
		{name: "unknown passthrough", in: "unknown", want: "unknown"},
		{name: "garbage", in: "not-an-ip", want: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, privacy.AnonymizeIP(tt.in))
		})
	}
}
