package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)

	cases := []struct {
		in     time.Time
		expect string
	}{
		{in: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), expect: "2024-01-02T00:00:00Z"},
		{in: time.Date(2024, 1, 1, 19, 0, 0, 0, est), expect: "2024-01-02T00:00:00Z"},
		{in: time.Date(2024, 1, 2, 0, 0, 0, 999_000_000, time.UTC), expect: "2024-01-02T00:00:00Z"},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, FormatUTC(test.in))
	}
}

func TestFrozenTime(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	clock := FrozenTime{At: at}
	require.Equal(t, time.UTC, clock.Now().Location())
	require.True(t, clock.Now().Equal(at))
}
