package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/caldermaw/graft/internal/models"
)

const maxPayloadSize = 10 << 20 // 10 MB

type uploadResult struct {
	Ref string `json:"ref"`
}

func (s *Server) uploadPayload(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = fetchHTTP(rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(data) > maxPayloadSize {
		return mcp.NewToolResultError(fmt.Sprintf("payload too large: %d bytes (max %d)", len(data), maxPayloadSize)), nil
	}

	var desc models.NodeDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("payload is not valid JSON: %v", err)), nil
	}
	if err := desc.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("payload is not a valid node descriptor: %v", err)), nil
	}

	ref, err := s.payloads.Write(data, "json")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store payload: %v", err)), nil
	}

	out, _ := json.Marshal(uploadResult{Ref: ref})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// fetchHTTP downloads a payload from an HTTP/HTTPS URL with security checks.
func fetchHTTP(rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	resp, err := client.Get(rawURL) //nolint:noctx
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxPayloadSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxPayloadSize {
		return nil, fmt.Errorf("payload too large: exceeds %d bytes", maxPayloadSize)
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}
