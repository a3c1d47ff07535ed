package cluster

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.Equal(t, "5:hello,", buf.String())

	payload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "hello", string(payload))
}

func TestReadFrameMultiple(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("first")))
	require.NoError(t, WriteFrame(&buf, []byte("second")))

	r := bufio.NewReader(&buf)
	p1, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, "first", string(p1))

	p2, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, "second", string(p2))
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("99999999999:x,"))
	_, err := ReadFrame(r)
	require.Error(t, err)
}

func TestReadFrameRejectsMalformedTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("5:helloX"))
	_, err := ReadFrame(r)
	require.Error(t, err)
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{}))
	payload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Empty(t, payload)
}
