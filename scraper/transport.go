package scraper

import (
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

// browserTransport attaches browser-like headers to every request and
// transparently decodes gzip and brotli bodies. Setting Accept-Encoding
// explicitly disables net/http's automatic gzip handling, so both
// encodings are decoded here.
type browserTransport struct {
	base http.RoundTripper
}

func newBrowserTransport(base http.RoundTripper) *browserTransport {
	if base == nil {
		base = defaultTransport()
	}
	return &browserTransport{base: base}
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range browserHeaders {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = decodedBody{Reader: gz, Closer: resp.Body}
	case "br":
		resp.Body = decodedBody{Reader: brotli.NewReader(resp.Body), Closer: resp.Body}
	default:
		return resp, nil
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}

type decodedBody struct {
	io.Reader
	io.Closer
}

// browserHeaders mimics a real browser navigation; the target serves
// challenge pages to clients that look like bots.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate, br",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
}
