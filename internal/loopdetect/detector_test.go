package loopdetect_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/loopdetect"
)

// aperiodicPattern is 50 distinct characters with no internal repeating
// substructure, so the only way three of its copies placed back to back can
// satisfy the immediate-repetition check is at the true copy boundaries.
const aperiodicPattern = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwx"

func cfg() loopdetect.Config {
	return loopdetect.Config{
		Enabled:          true,
		MinPatternLength: 50,
		MaxPatternLength: 50,
		MinRepetitions:   3,
	}
}

// P6: three contiguous copies of a 50-char pattern fire; output ends exactly
// at the end of the third copy plus the truncation marker, nothing after.
func TestThreeContiguousCopiesFire(t *testing.T) {
	prefix := "preamble text before the loop starts here: "
	content := prefix + aperiodicPattern + aperiodicPattern + aperiodicPattern + "trailing content that must never appear"

	d := loopdetect.New(cfg())
	out := d.Feed([]byte(content))

	require.True(t, d.Fired())
	want := prefix + aperiodicPattern + aperiodicPattern + aperiodicPattern + loopdetect.TruncationMarker
	require.Equal(t, want, string(out))
}

func TestNoRepetitionNoFire(t *testing.T) {
	d := loopdetect.New(cfg())
	out := d.Feed([]byte("a completely unique sentence with no repeats at all here"))
	require.False(t, d.Fired())
	require.Equal(t, "a completely unique sentence with no repeats at all here", string(out))
}

func TestTwoCopiesDoNotFire(t *testing.T) {
	d := loopdetect.New(cfg())
	out := d.Feed([]byte(aperiodicPattern + aperiodicPattern))
	require.False(t, d.Fired())
	require.Equal(t, aperiodicPattern+aperiodicPattern, string(out))
}

// Determinism: same input, same config -> same result.
func TestDeterministic(t *testing.T) {
	content := aperiodicPattern + aperiodicPattern + aperiodicPattern

	d1 := loopdetect.New(cfg())
	out1 := d1.Feed([]byte(content))
	d2 := loopdetect.New(cfg())
	out2 := d2.Feed([]byte(content))

	require.Equal(t, d1.Fired(), d2.Fired())
	require.Equal(t, string(out1), string(out2))
}

func TestFeedAcrossMultipleChunks(t *testing.T) {
	d := loopdetect.New(cfg())

	var out []byte
	for _, chunk := range []string{aperiodicPattern, aperiodicPattern, aperiodicPattern, "more"} {
		if d.Fired() {
			break
		}
		out = append(out, d.Feed([]byte(chunk))...)
	}
	require.True(t, d.Fired())
	require.Equal(t, aperiodicPattern+aperiodicPattern+aperiodicPattern+loopdetect.TruncationMarker, string(out))
}

func TestDisabledNeverFires(t *testing.T) {
	c := cfg()
	c.Enabled = false
	d := loopdetect.New(c)
	content := aperiodicPattern + aperiodicPattern + aperiodicPattern
	out := d.Feed([]byte(content))
	require.False(t, d.Fired())
	require.Equal(t, content, string(out))
}
