// Package metadata resolves token URIs to fetchable URLs and fetches the
// referenced JSON documents, including inline data: URIs that never touch
// the network.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Gateways configures the base URLs used to rewrite distributed-storage URIs.
type Gateways struct {
	IPFS    string
	Arweave string
}

// DefaultGateways are used when no gateway configuration is supplied.
var DefaultGateways = Gateways{
	IPFS:    "https://ipfs.io/ipfs/",
	Arweave: "https://arweave.net/",
}

const (
	dataURIScheme = "data:"
	ipfsScheme    = "ipfs://"
	arweaveScheme = "ar://"
)

// Bare content-hash prefixes treated as IPFS hashes without an explicit scheme.
var bareIPFSPrefixes = []string{"Qm", "bafy"}

// FetchError indicates the network fetch of a metadata document failed or
// returned a non-success status.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates a fetched or inline document was not valid JSON.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ResolveURI maps a raw, possibly scheme-prefixed URI to a directly fetchable
// form. Rules are checked in order; the first match wins:
//
//  1. data: URIs pass through unchanged (decoded by FetchDocument).
//  2. ipfs:// URIs are rewritten to the IPFS gateway.
//  3. ar:// URIs are rewritten to the Arweave gateway.
//  4. Bare Qm/bafy content hashes are prefixed with the IPFS gateway.
//  5. Anything else is assumed directly fetchable and returned unchanged.
//
// An empty input resolves to "" and means there is nothing to fetch.
func ResolveURI(uri string, gateways Gateways) string {
	if uri == "" {
		return ""
	}
	if strings.HasPrefix(uri, dataURIScheme) {
		return uri
	}
	if strings.HasPrefix(uri, ipfsScheme) {
		return gateways.IPFS + strings.TrimPrefix(uri, ipfsScheme)
	}
	if strings.HasPrefix(uri, arweaveScheme) {
		return gateways.Arweave + strings.TrimPrefix(uri, arweaveScheme)
	}
	for _, prefix := range bareIPFSPrefixes {
		if strings.HasPrefix(uri, prefix) {
			return gateways.IPFS + uri
		}
	}
	return uri
}

// Fetcher retrieves metadata documents over HTTP or decodes them inline.
type Fetcher struct {
	httpClient *http.Client
	gateways   Gateways
}

// NewFetcher creates a fetcher using the given gateway configuration.
func NewFetcher(gateways Gateways) *Fetcher {
	if gateways.IPFS == "" {
		gateways.IPFS = DefaultGateways.IPFS
	}
	if gateways.Arweave == "" {
		gateways.Arweave = DefaultGateways.Arweave
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gateways: gateways,
	}
}

// FetchDocument resolves a raw URI and returns the referenced JSON document as
// structured data. Inline data: URIs are decoded without any network call.
func (f *Fetcher) FetchDocument(ctx context.Context, uri string) (map[string]interface{}, error) {
	resolved := ResolveURI(uri, f.gateways)
	if resolved == "" {
		return nil, &FetchError{URL: uri, Err: fmt.Errorf("no URI to fetch")}
	}

	if strings.HasPrefix(resolved, dataURIScheme) {
		return decodeDataURI(resolved)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", resolved, nil)
	if err != nil {
		return nil, &FetchError{URL: resolved, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: resolved, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: resolved, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: resolved, Err: err}
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{URL: resolved, Err: err}
	}

	return doc, nil
}

// decodeDataURI decodes an inline data: URI carrying a JSON document, either
// base64-encoded or percent-encoded.
func decodeDataURI(uri string) (map[string]interface{}, error) {
	comma := strings.Index(uri, ",")
	if comma < 0 {
		return nil, &ParseError{URL: uri, Err: fmt.Errorf("malformed data URI: no payload separator")}
	}

	meta := uri[len(dataURIScheme):comma]
	payload := uri[comma+1:]

	var raw []byte
	if strings.Contains(meta, "base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, &ParseError{URL: uri, Err: fmt.Errorf("invalid base64 payload: %w", err)}
		}
		raw = decoded
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, &ParseError{URL: uri, Err: fmt.Errorf("invalid percent-encoded payload: %w", err)}
		}
		raw = []byte(decoded)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{URL: uri, Err: err}
	}

	return doc, nil
}
