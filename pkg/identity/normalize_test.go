package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "colon separated lower", input: "aa:bb:cc:dd:ee:ff", expected: "AA:BB:CC:DD:EE:FF"},
		{name: "dash separated", input: "aa-bb-cc-dd-ee-ff", expected: "AA:BB:CC:DD:EE:FF"},
		{name: "dot separated", input: "aa.bb.cc.dd.ee.ff", expected: "AA:BB:CC:DD:EE:FF"},
		{name: "bare hex", input: "aabbccddeeff", expected: "AA:BB:CC:DD:EE:FF"},
		{name: "already canonical", input: "AA:BB:CC:DD:EE:FF", expected: "AA:BB:CC:DD:EE:FF"},
		{name: "surrounding whitespace", input: "  aa:bb:cc:dd:ee:ff ", expected: "AA:BB:CC:DD:EE:FF"},
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: "   ", expected: ""},
		{name: "too short", input: "aa:bb:cc:dd:ee", expected: ""},
		{name: "too long", input: "aa:bb:cc:dd:ee:ff:00", expected: ""},
		{name: "not hex", input: "zz:bb:cc:dd:ee:ff", expected: ""},
		{name: "garbage", input: "not-a-mac", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeMAC(tt.input))
		})
	}
}
