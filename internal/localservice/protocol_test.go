package localservice

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequest(t *testing.T) {
	raw := "get /translate?q=hello%20world&dst=zh-TW HTTP/1.1\r\nHost: 127.0.0.1\r\nX-Any: 1\r\n\r\nignored body"
	req, err := readRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/translate", req.Path)
	assert.Equal(t, "hello world", req.Query.Get("q"))
	assert.Equal(t, "zh-TW", req.Query.Get("dst"))
}

func TestReadRequestWithoutHeaderTerminator(t *testing.T) {
	req, err := readRequest(bufio.NewReader(strings.NewReader("GET /health HTTP/1.1\r\n")))
	require.NoError(t, err)
	assert.Equal(t, "/health", req.Path)
}

func TestReadRequestMalformed(t *testing.T) {
	_, err := readRequest(bufio.NewReader(strings.NewReader("GARBAGE\r\n\r\n")))
	assert.ErrorIs(t, err, errBadRequestLine)

	long := "GET /" + strings.Repeat("a", maxLineLength+1) + " HTTP/1.1\r\n\r\n"
	_, err = readRequest(bufio.NewReader(strings.NewReader(long)))
	assert.ErrorIs(t, err, errLineTooLong)
}

func TestWriteResponse(t *testing.T) {
	var buf bytes.Buffer
	body := errorBody("server busy")
	require.NoError(t, writeResponse(&buf, 503, body))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 503 Service Unavailable\r\n"))
	assert.Contains(t, out, "Content-Type: application/json; charset=utf-8\r\n")
	assert.Contains(t, out, "Access-Control-Allow-Origin: *\r\n")
	assert.Contains(t, out, "Connection: close\r\n")
	assert.Contains(t, out, "Content-Length: 23\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"+`{"error":"server busy"}`))
}

func TestJSONBodyKeepsMarkup(t *testing.T) {
	assert.Equal(t, `{"code":0,"text":"<b>&</b>"}`, string(jsonBody(translateResult{Text: "<b>&</b>"})))
}
