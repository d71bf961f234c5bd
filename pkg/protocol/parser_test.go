package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/robotalks/guard.go/pkg/state"
)

type parserTestSequence struct {
	in     string
	expect []ParseResult
}

type parserTestSequenceBuilder struct {
	seq []parserTestSequence
}

func parserTestSequences() *parserTestSequenceBuilder {
	return &parserTestSequenceBuilder{}
}

func (b *parserTestSequenceBuilder) on(in string) *parserTestSequenceBuilder {
	b.seq = append(b.seq, parserTestSequence{in: in})
	return b
}

func (b *parserTestSequenceBuilder) line(line string) *parserTestSequenceBuilder {
	last := &b.seq[len(b.seq)-1]
	last.expect = append(last.expect, ParseResult{Line: line, Complete: true})
	return b
}

func (b *parserTestSequenceBuilder) tooLong() *parserTestSequenceBuilder {
	last := &b.seq[len(b.seq)-1]
	last.expect = append(last.expect, ParseResult{Err: ErrLineTooLong})
	return b
}

func (b *parserTestSequenceBuilder) build() []parserTestSequence {
	return b.seq
}

func parseAll(p *LineParser, in string) []ParseResult {
	var results []ParseResult
	for i := 0; i < len(in); i++ {
		if pr := p.Parse(in[i]); pr.Complete || pr.Err != nil {
			results = append(results, pr)
		}
	}
	return results
}

func TestLineParser(t *testing.T) {
	testCases := []struct {
		name   string
		maxLen int
		seq    []parserTestSequence
	}{
		{
			name: "single line",
			seq:  parserTestSequences().on("ping\n").line("ping").build(),
		},
		{
			name: "crlf and spaces trimmed",
			seq:  parserTestSequences().on("  ping \r\n").line("ping").build(),
		},
		{
			name: "split across reads",
			seq: parserTestSequences().
				on("batt").
				on("ery_level=5.5,").
				on("7.2\npi").line("battery_level=5.5,7.2").
				on("ng\n").line("ping").
				build(),
		},
		{
			name: "empty lines dropped",
			seq:  parserTestSequences().on("\n\r\n  \nping\n").line("ping").build(),
		},
		{
			name:   "too long line discarded",
			maxLen: 4,
			seq: parserTestSequences().
				on("picture\nping\n").tooLong().line("ping").
				build(),
		},
		{
			name:   "exactly max length",
			maxLen: 4,
			seq:    parserTestSequences().on("ping\n").line("ping").build(),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &LineParser{MaxLen: tc.maxLen}
			for n, s := range tc.seq {
				require.Equal(t, s.expect, parseAll(p, s.in), "sequence[%d]", n)
			}
		})
	}
}

func TestLineParserReassemblesLines(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.StringMatching(`[a-z_=,.0-9 ]{0,20}`)).Draw(t, "lines")
		var expect []string
		for _, line := range lines {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				expect = append(expect, trimmed)
			}
		}
		in := strings.Join(lines, "\n") + "\n"
		p := &LineParser{}
		var got []string
		for _, pr := range parseAll(p, in) {
			got = append(got, pr.Line)
		}
		require.Equal(t, expect, got)
	})
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		line      string
		kind      Kind
		malformed bool
		check     func(t *testing.T, msg Message)
	}{
		{line: "ping", kind: KindPing},
		{line: " ping\r", kind: KindPing},
		{line: "picture_start", kind: KindPictureStart},
		{
			line: "battery_level=5.5,7.2",
			kind: KindBattery,
			check: func(t *testing.T, msg Message) {
				require.Equal(t, 5.5, msg.MotorVoltage)
				require.Equal(t, 7.2, msg.ComputeVoltage)
			},
		},
		{
			line: "battery_level= 7.0 , 7.5",
			kind: KindBattery,
			check: func(t *testing.T, msg Message) {
				require.Equal(t, 7.0, msg.MotorVoltage)
				require.Equal(t, 7.5, msg.ComputeVoltage)
			},
		},
		{line: "battery_level=7.0", kind: KindBattery, malformed: true},
		{line: "battery_level=a,b", kind: KindBattery, malformed: true},
		{line: "battery_level=1,2,3", kind: KindBattery, malformed: true},
		{
			line: "mode_change:toy",
			kind: KindModeChange,
			check: func(t *testing.T, msg Message) {
				require.Equal(t, state.ModeToy, msg.Mode)
			},
		},
		{line: "mode_change:map", kind: KindModeChange, malformed: true},
		{line: "pong", kind: KindUnknown},
		{line: "hello world", kind: KindUnknown},
		{line: "pingping", kind: KindUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			msg, err := Classify(tc.line)
			require.Equal(t, tc.kind, msg.Kind)
			if tc.malformed {
				require.True(t, errors.Is(err, ErrMalformed), "error: %v", err)
				return
			}
			require.NoError(t, err)
			if tc.check != nil {
				tc.check(t, msg)
			}
		})
	}
}

func TestEncoders(t *testing.T) {
	require.Equal(t, "mode_change:toy", EncodeModeChange(state.ModeToy))
	require.Equal(t, "mode_change:guard", EncodeModeChange(state.ModeGuard))
	require.Equal(t, "battery_level=5.5,7.2", EncodeBattery(5.5, 7.2))

	msg, err := Classify(EncodeBattery(6.25, 8))
	require.NoError(t, err)
	require.Equal(t, 6.25, msg.MotorVoltage)
	require.Equal(t, 8.0, msg.ComputeVoltage)
}

func TestDecodePicture(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	testCases := []struct {
		name    string
		line    string
		expect  []byte
		invalid bool
	}{
		{name: "plain", line: EncodePicture(jpeg), expect: jpeg},
		{name: "data uri", line: "data:image/jpeg;base64," + EncodePicture(jpeg), expect: jpeg},
		{name: "unpadded", line: strings.TrimRight(EncodePicture([]byte("ab")), "="), expect: []byte("ab")},
		{name: "empty", line: "  ", invalid: true},
		{name: "not base64", line: "picture!", invalid: true},
		{name: "data uri without base64", line: "data:image/jpeg,xyz", invalid: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := DecodePicture(tc.line)
			if tc.invalid {
				require.True(t, errors.Is(err, ErrMalformed), "error: %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, data)
		})
	}
}

func TestPictureBytes(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	require.Equal(t, jpeg, PictureBytes([]byte(EncodePicture(jpeg))))
	require.Equal(t, jpeg, PictureBytes([]byte("data:image/jpeg;base64,"+EncodePicture(jpeg))))
	require.Equal(t, jpeg, PictureBytes(jpeg))
	require.Equal(t, []byte("frame-0001"), PictureBytes([]byte("frame-0001")))
}
