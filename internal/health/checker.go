// Package health checks that a video source is usable before a run.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// ErrNotFound means a local video file does not exist.
	ErrNotFound = errors.New("video not found")
	// ErrUnreachable means a network source failed its probes.
	ErrUnreachable = errors.New("video source unreachable")
)

const (
	KindFile   = "file"
	KindStream = "stream"
)

// CheckResult contains the results of a source check
type CheckResult struct {
	Source        string `json:"source"`
	Kind          string `json:"kind"`
	Available     bool   `json:"available"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	HostReachable bool   `json:"host_reachable,omitempty"`
	HostError     string `json:"host_error,omitempty"`
	URLAccessible bool   `json:"url_accessible,omitempty"`
	URLError      string `json:"url_error,omitempty"`
	ResponseTime  int64  `json:"response_time_ms,omitempty"`
	LastChecked   string `json:"last_checked"`

	err error
}

// Err returns why the source is unavailable, or nil.
func (r CheckResult) Err() error {
	return r.err
}

// Checker probes video sources
type Checker struct {
	timeout time.Duration
}

// NewChecker creates a new health checker
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		timeout: timeout,
	}
}

// IsStream reports whether source names a network stream rather than a file.
func IsStream(source string) bool {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "rtsp", "rtmp", "tcp", "udp":
		return true
	}
	return false
}

// Check verifies a local file exists and is regular, or probes a stream
// URL with a TCP dial followed by an HTTP GET for http(s) sources.
func (c *Checker) Check(source string) CheckResult {
	result := CheckResult{
		Source:      source,
		LastChecked: time.Now().Format(time.RFC3339),
	}
	if IsStream(source) {
		result.Kind = KindStream
		c.checkStream(&result)
	} else {
		result.Kind = KindFile
		checkFile(&result)
	}
	return result
}

func checkFile(result *CheckResult) {
	info, err := os.Stat(result.Source)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.err = fmt.Errorf("%w: %s", ErrNotFound, result.Source)
	case err != nil:
		result.err = fmt.Errorf("failed to stat %s: %w", result.Source, err)
	case !info.Mode().IsRegular():
		result.err = fmt.Errorf("%s is not a regular file", result.Source)
	default:
		result.Available = true
		result.SizeBytes = info.Size()
	}
}

func (c *Checker) checkStream(result *CheckResult) {
	parsedURL, err := url.Parse(result.Source)
	if err != nil {
		result.HostError = fmt.Sprintf("Invalid URL: %v", err)
		result.URLError = result.HostError
		result.err = fmt.Errorf("%w: %s", ErrUnreachable, result.HostError)
		return
	}

	// TCP ping check
	result.HostReachable, result.HostError = c.tcpPing(parsedURL)
	if !result.HostReachable {
		result.URLError = "Host unreachable"
		result.err = fmt.Errorf("%w: %s", ErrUnreachable, result.HostError)
		return
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		// nothing further to probe without speaking the protocol
		result.Available = true
		return
	}

	start := time.Now()
	result.URLAccessible, result.URLError = c.httpCheck(result.Source)
	result.ResponseTime = time.Since(start).Milliseconds()
	result.Available = result.URLAccessible
	if !result.Available {
		result.err = fmt.Errorf("%w: %s", ErrUnreachable, result.URLError)
	}
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"rtsp":  "554",
	"rtmp":  "1935",
}

// tcpPing attempts to establish a TCP connection to the host
func (c *Checker) tcpPing(u *url.URL) (bool, string) {
	host := u.Host
	// Add default port if not specified
	if _, _, err := net.SplitHostPort(host); err != nil {
		port, ok := defaultPorts[strings.ToLower(u.Scheme)]
		if !ok {
			port = "80"
		}
		host = net.JoinHostPort(host, port)
	}

	conn, err := net.DialTimeout("tcp", host, c.timeout)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	_ = conn.Close()
	return true, ""
}

// httpCheck performs an HTTP GET request to verify URL accessibility
func (c *Checker) httpCheck(urlStr string) (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return false, fmt.Sprintf("Request creation failed: %v", err)
	}

	client := &http.Client{
		Timeout: c.timeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true, ""
	}

	return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
}
