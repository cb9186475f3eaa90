// Package seekinghttp provides an io.ReadSeeker and io.ReaderAt on top of
// a series of HTTP GET requests with Range headers. Requests are retried
// with exponential backoff on server errors and timeouts, and a small
// read-ahead cache avoids re-requesting the header and index regions of
// indexed binary files.
package seekinghttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// SeekingHTTP uses a series of HTTP GETs with Range headers
// to implement io.ReadSeeker and io.ReaderAt.
type SeekingHTTP struct {
	URL        string
	Client     *http.Client
	Retries    int
	Debug      bool
	url        *url.URL
	offset     int64
	size       int64
	last       *bytes.Buffer
	lastOffset int64
}

// Compile-time check of interface implementations.
var _ io.ReadSeeker = (*SeekingHTTP)(nil)
var _ io.ReaderAt = (*SeekingHTTP)(nil)

const defaultTimeout = 30 * time.Second
const defaultRetries = 3
const maxConnections = 8

// New initializes a SeekingHTTP for the given URL.
// The SeekingHTTP.Client field may be set before the first call
// to Read or Seek.
func New(url string) *SeekingHTTP {
	return &SeekingHTTP{
		URL:     url,
		Retries: defaultRetries,
		offset:  0,
		size:    -1,
	}
}

// If they did not give us an HTTP client, use one with a bounded
// connection pool, a request timeout, and proxy configuration taken
// from the environment.
func (s *SeekingHTTP) init() error {
	if s.Client == nil {
		s.Client = &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxConnsPerHost: maxConnections,
			},
		}
	}
	return nil
}

func (s *SeekingHTTP) newreq(method string) (*http.Request, error) {
	var err error
	if s.url == nil {
		s.url, err = url.Parse(s.URL)
		if err != nil {
			return nil, err
		}
	}
	return &http.Request{
		Method:     method,
		URL:        s.url,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       nil,
		Host:       s.url.Host,
	}, nil
}

func fmtRange(from, l int64) string {
	var to int64
	if l == 0 {
		to = from
	} else {
		to = from + (l - 1)
	}
	return fmt.Sprintf("bytes=%v-%v", from, to)
}

// Perform the request, retrying with exponential backoff (1s, 2s, 4s)
// on connection errors, timeouts, and 5xx responses.
func (s *SeekingHTTP) do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := time.Second
	for i := 0; ; i++ {
		resp, err = s.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("request for `%v' failed with status %s", req.URL, resp.Status)
		}
		if i >= s.Retries {
			return nil, err
		}
		if s.Debug {
			log.Printf("retrying after error: %v", err)
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

// ReadAt reads len(buf) bytes into buf starting at offset off.
func (s *SeekingHTTP) ReadAt(buf []byte, off int64) (int, error) {
	if s.Debug {
		log.Printf("ReadAt len %v off %v", len(buf), off)
	}
	if s.last != nil && off >= s.lastOffset {
		end := off + int64(len(buf))
		if end <= s.lastOffset+int64(s.last.Len()) {
			start := off - s.lastOffset
			copy(buf, s.last.Bytes()[start:end-s.lastOffset])
			return len(buf), nil
		}
	}

	req, err := s.newreq("GET")
	if err != nil {
		return 0, err
	}

	// Fetch more than what they asked for to reduce round-trips
	wanted := 10 * len(buf)
	rng := fmtRange(off, int64(wanted))
	req.Header.Add("Range", rng)

	if s.last == nil {
		// Cache does not exist yet. So make it.
		s.last = &bytes.Buffer{}
	} else {
		// Cache is getting replaced. Bring it back to zero bytes, but
		// keep the underlying []byte, since we'll reuse it right away.
		s.last.Reset()
	}

	if err := s.init(); err != nil {
		return 0, err
	}
	resp, err := s.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		s.last.ReadFrom(resp.Body)
		s.lastOffset = off
		var n int
		if s.last.Len() < len(buf) {
			n = s.last.Len()
			copy(buf, s.last.Bytes()[0:n])
			return n, io.EOF
		}
		n = len(buf)
		copy(buf, s.last.Bytes())
		return n, nil
	}
	return 0, io.EOF
}

func (s *SeekingHTTP) Read(buf []byte) (int, error) {
	if s.Debug {
		log.Printf("got read len %v", len(buf))
	}
	n, err := s.ReadAt(buf, s.offset)
	if n > 0 {
		s.offset += int64(n)
	}
	return n, err
}

// Seek sets the offset for the next Read.
func (s *SeekingHTTP) Seek(offset int64, whence int) (int64, error) {
	if s.Debug {
		log.Printf("got seek %v %v", offset, whence)
	}
	switch whence {
	case io.SeekStart:
		s.offset = offset
	case io.SeekCurrent:
		s.offset += offset
	case io.SeekEnd:
		if s.size < 0 {
			if size, err := s.Size(); err != nil {
				return 0, err
			} else {
				s.size = size
			}
		}
		s.offset = s.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	return s.offset, nil
}

// Size uses an HTTP HEAD to find out how many bytes are available in total.
func (s *SeekingHTTP) Size() (int64, error) {
	if err := s.init(); err != nil {
		return 0, err
	}

	req, err := s.newreq("HEAD")
	if err != nil {
		return 0, err
	}

	resp, err := s.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 {
		return 0, errors.New("no content length for Size()")
	}
	if s.Debug {
		log.Printf("size %v", resp.ContentLength)
	}
	s.size = resp.ContentLength
	return resp.ContentLength, nil
}

// Close drops the cache. The underlying connections are managed by the
// http client.
func (s *SeekingHTTP) Close() error {
	s.last = nil
	return nil
}
