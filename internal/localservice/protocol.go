package localservice

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	maxLineLength  = 16 << 10
	maxHeaderLines = 100
)

var (
	errBadRequestLine = errors.New("bad request line")
	errLineTooLong    = errors.New("line too long")
)

// request 解析后的请求行
type request struct {
	Method string
	Path   string
	Query  url.Values
}

// protocolError 携带状态码的请求错误
type protocolError struct {
	status  int
	message string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("%d %s", e.status, e.message)
}

func badRequest(msg string) *protocolError {
	return &protocolError{status: http.StatusBadRequest, message: msg}
}

// readRequest 读取请求行并丢弃所有头部直到空行
func readRequest(br *bufio.Reader) (*request, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, errBadRequestLine
	}

	for i := 0; ; i++ {
		if i >= maxHeaderLines {
			return nil, errLineTooLong
		}
		h, err := readLine(br)
		if err != nil {
			// 头部不完整时仍按已读到的请求行处理
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if h == "" {
			break
		}
	}

	target := parts[1]
	path, rawQuery, _ := strings.Cut(target, "?")
	query, _ := url.ParseQuery(rawQuery)
	return &request{
		Method: strings.ToUpper(parts[0]),
		Path:   path,
		Query:  query,
	}, nil
}

func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxLineLength {
			return "", errLineTooLong
		}
		if !isPrefix {
			return string(buf), nil
		}
	}
}

// writeResponse 写出完整响应，总是 Connection: close
func writeResponse(w io.Writer, status int, body []byte) error {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(status))
	b.WriteByte(' ')
	b.WriteString(statusText(status))
	b.WriteString("\r\n")
	b.WriteString("Content-Type: application/json; charset=utf-8\r\n")
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n\r\n")
	b.Write(body)
	_, err := w.Write(b.Bytes())
	return err
}

func statusText(status int) string {
	switch status {
	case http.StatusOK, http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable:
		return http.StatusText(status)
	default:
		return http.StatusText(http.StatusInternalServerError)
	}
}

// jsonBody 编码 JSON，不转义 HTML 字符
func jsonBody(v any) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return []byte(`{"error":"encode failed"}`)
	}
	return bytes.TrimRight(b.Bytes(), "\n")
}

func errorBody(msg string) []byte {
	return jsonBody(map[string]string{"error": msg})
}

type translateResult struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}
