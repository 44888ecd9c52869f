// Package gzippedhttp accepts gzip-encoded request bodies. Response
// compression is left to chi's Compress middleware.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// CompressedReader decompresses a gzip request body.
type CompressedReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

// NewCompressedReader fails when requestBody does not start with a gzip header.
func NewCompressedReader(requestBody io.ReadCloser) (*CompressedReader, error) {
	zippedRequestBody, err := gzip.NewReader(requestBody)
	if err != nil {
		return nil, err
	}

	return &CompressedReader{
		r:  requestBody,
		zr: zippedRequestBody,
	}, nil
}

func (c *CompressedReader) Read(p []byte) (n int, err error) {
	return c.zr.Read(p)
}

// Close closes the gzip stream and then the original body.
func (c *CompressedReader) Close() error {
	zipErr := c.zr.Close()
	if err := c.r.Close(); err != nil {
		return err
	}
	return zipErr
}

// UngzipRequest replaces the body of a "Content-Encoding: gzip" request with
// its decompressed stream. A body that is not valid gzip is answered by
// onInvalid and never reaches h.
func UngzipRequest(onInvalid http.HandlerFunc) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		middleware := func(response http.ResponseWriter, request *http.Request) {
			if !strings.Contains(request.Header.Get("Content-Encoding"), "gzip") {
				h.ServeHTTP(response, request)
				return
			}

			requestBodyWithCompression, err := NewCompressedReader(request.Body)
			if err != nil {
				onInvalid(response, request)
				return
			}
			defer requestBodyWithCompression.Close()

			request.Body = requestBodyWithCompression
			request.Header.Del("Content-Encoding")
			request.ContentLength = -1

			h.ServeHTTP(response, request)
		}

		return http.HandlerFunc(middleware)
	}
}
