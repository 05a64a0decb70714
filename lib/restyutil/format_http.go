package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// redactedHeaders never appear in dumps.
var redactedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// message is a request/response pair as written to an InstrumentOutput.
type message struct {
	Method          string
	Url             string
	RequestHeaders  http.Header
	RequestBody     string
	Status          int
	FinalUrl        string
	ResponseHeaders http.Header
	ResponseBody    string
	Elapsed         time.Duration
}

func newMessage(res *resty.Response) message {
	m := message{
		Method:          res.Request.Method,
		Url:             res.Request.URL,
		FinalUrl:        res.Request.URL,
		Status:          res.StatusCode(),
		ResponseHeaders: res.Header(),
		ResponseBody:    res.String(),
		Elapsed:         res.Time(),
	}
	if raw := res.Request.RawRequest; raw != nil {
		m.RequestHeaders = raw.Header
		m.RequestBody = requestBody(raw)
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		m.FinalUrl = res.RawResponse.Request.URL.String()
	}
	return m
}

func requestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("<failed to get request body: %v>", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("<failed to read request body: %v>", err)
	}
	return string(data)
}

// writeHeaders writes headers sorted by name so dumps can be diffed.
func writeHeaders(sb *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			if slices.Contains(redactedHeaders, http.CanonicalHeaderKey(k)) {
				v = "<redacted>"
			}
			fmt.Fprintf(sb, "%s: %s\n", k, v)
		}
	}
}

func (m message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "> %s %s\n", m.Method, m.Url)
	writeHeaders(&sb, m.RequestHeaders)
	if m.RequestBody != "" {
		sb.WriteString("\n")
		sb.WriteString(m.RequestBody)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\n< %d %s (%s)\n", m.Status, m.FinalUrl, m.Elapsed.Round(time.Millisecond))
	writeHeaders(&sb, m.ResponseHeaders)
	sb.WriteString("\n")
	sb.WriteString(m.ResponseBody)
	return sb.String()
}
