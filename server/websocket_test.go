package server

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"testing"
)

func TestWsAcceptKeyRFC6455Example(t *testing.T) {
	// The exact example from RFC 6455 section 1.3.
	got := wsAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	require_Equal(t, got, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
}

func TestWsAcceptKeyMatchesManualDerivation(t *testing.T) {
	key := "x3JJHMbDL1EzLkh9GBhXDw=="
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(wsGUID))
	want := base64.StdEncoding.EncodeToString(h.Sum(nil))
	require_Equal(t, wsAcceptKey(key), want)
}

func maskedFrame(opcode wsOpCode, fin bool, payload []byte) []byte {
	first := byte(opcode & 0x0F)
	if fin {
		first |= 0x80
	}
	var header []byte
	length := len(payload)
	switch {
	case length < 126:
		header = []byte{first, byte(length) | 0x80}
	case length <= 0xFFFF:
		header = []byte{first, 126 | 0x80, byte(length >> 8), byte(length)}
	default:
		header = []byte{first, 127 | 0x80, 0, 0, 0, 0, byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	}
	mask := []byte{0x12, 0x34, 0x56, 0x78}
	masked := make([]byte, length)
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}
	out := append(append([]byte{}, header...), mask...)
	return append(out, masked...)
}

func TestParseWSFrameSmallPayload(t *testing.T) {
	payload := []byte("hello")
	raw := maskedFrame(wsTextFrame, true, payload)

	frame, n, ok, err := parseWSFrame(raw)
	require_NoError(t, err)
	require_True(t, ok)
	require_Len(t, n, len(raw))
	require_True(t, frame.fin)
	require_Equal(t, frame.opcode, wsTextFrame)
	require_True(t, bytes.Equal(frame.payload, payload))
}

func TestParseWSFrameIncomplete(t *testing.T) {
	payload := []byte("hello world")
	raw := maskedFrame(wsBinaryFrame, true, payload)

	_, _, ok, err := parseWSFrame(raw[:len(raw)-2])
	require_NoError(t, err)
	require_False(t, ok)
}

func TestParseWSFrameBoundaryLengths(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 65535, 65536} {
		payload := bytes.Repeat([]byte{'a'}, size)
		raw := maskedFrame(wsBinaryFrame, true, payload)

		frame, n, ok, err := parseWSFrame(raw)
		require_NoError(t, err)
		require_True(t, ok)
		require_Len(t, n, len(raw))
		require_Len(t, len(frame.payload), size)
	}
}

func TestWsBufferReassemblesContinuationFrames(t *testing.T) {
	buf := newWSBuffer()

	var raw []byte
	raw = append(raw, maskedFrame(wsTextFrame, false, []byte("hel"))...)
	raw = append(raw, maskedFrame(wsContinuationFrame, false, []byte("lo "))...)
	raw = append(raw, maskedFrame(wsContinuationFrame, true, []byte("world"))...)

	var got []wsMessage
	// Feed byte-by-byte to also exercise partial-frame buffering across
	// many small reads, the way a real socket would deliver it.
	for i := range raw {
		msgs, err := buf.feed(raw[i : i+1])
		require_NoError(t, err)
		got = append(got, msgs...)
	}

	require_Len(t, len(got), 1)
	require_Equal(t, got[0].opcode, wsTextFrame)
	require_Equal(t, string(got[0].payload), "hello world")
}

func TestWsBufferHandlesControlFrameInterleavedWithFragments(t *testing.T) {
	buf := newWSBuffer()

	var raw []byte
	raw = append(raw, maskedFrame(wsTextFrame, false, []byte("frag-"))...)
	raw = append(raw, maskedFrame(wsPingFrame, true, []byte("ping"))...)
	raw = append(raw, maskedFrame(wsContinuationFrame, true, []byte("ment"))...)

	msgs, err := buf.feed(raw)
	require_NoError(t, err)
	require_Len(t, len(msgs), 2)
	require_Equal(t, msgs[0].opcode, wsPingFrame)
	require_Equal(t, string(msgs[0].payload), "ping")
	require_Equal(t, msgs[1].opcode, wsTextFrame)
	require_Equal(t, string(msgs[1].payload), "fragment")
}

func TestWsBufferOverflow(t *testing.T) {
	buf := newWSBuffer()
	buf.cap = 8
	_, err := buf.feed(bytes.Repeat([]byte{0}, 16))
	require_Error(t, err)
	require_Equal(t, err, errWSBufferOverflow)
}

func TestBuildWSFrameRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 70000)
	frame := buildBinaryFrame(payload)

	// Server frames are never masked, per RFC 6455 section 5.1.
	require_True(t, frame[1]&0x80 == 0)

	parsed, n, ok, err := parseWSFrame(frame)
	require_NoError(t, err)
	require_True(t, ok)
	require_Len(t, n, len(frame))
	require_True(t, parsed.fin)
	require_Equal(t, parsed.opcode, wsBinaryFrame)
	require_True(t, bytes.Equal(parsed.payload, payload))
}

func TestBuildCloseFrameHasNoPayload(t *testing.T) {
	frame := buildCloseFrame()
	parsed, _, ok, err := parseWSFrame(frame)
	require_NoError(t, err)
	require_True(t, ok)
	require_Equal(t, parsed.opcode, wsCloseFrame)
	require_Len(t, len(parsed.payload), 0)
}

func TestWsHandshakeResponseRejectsMissingKey(t *testing.T) {
	_, err := wsHandshakeResponse(httpHeaders{"sec-websocket-version": "13"})
	require_Error(t, err)
}

func TestWsHandshakeResponseRejectsWrongVersion(t *testing.T) {
	_, err := wsHandshakeResponse(httpHeaders{
		"sec-websocket-key":     "dGhlIHNhbXBsZSBub25jZQ==",
		"sec-websocket-version": "8",
	})
	require_Error(t, err)
}

func TestWsHandshakeResponseSuccess(t *testing.T) {
	resp, err := wsHandshakeResponse(httpHeaders{
		"sec-websocket-key":     "dGhlIHNhbXBsZSBub25jZQ==",
		"sec-websocket-version": "13",
	})
	require_NoError(t, err)
	require_True(t, bytes.Contains(resp, []byte("101 Switching Protocols")))
	require_True(t, bytes.Contains(resp, []byte("s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")))
}

func TestIsWebSocketUpgrade(t *testing.T) {
	require_True(t, isWebSocketUpgrade(httpHeaders{
		"upgrade":    "websocket",
		"connection": "keep-alive, Upgrade",
	}))
	require_False(t, isWebSocketUpgrade(httpHeaders{
		"upgrade":    "websocket",
		"connection": "keep-alive",
	}))
	require_False(t, isWebSocketUpgrade(httpHeaders{}))
}
