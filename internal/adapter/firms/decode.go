package firms

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
)

// FIRMS answers bad credentials with a 200 and a plain-text body, so the first
// lines are inspected before CSV parsing.
var credentialMarkers = []string{"invalid map_key", "invalid api call", "unauthorized"}

const (
	markerLines = 2
	peekSize    = 4096
	utf8BOM     = "\ufeff"
)

// acceptEncoding is sent on every request. Setting it by hand turns off the
// transport's transparent gzip, so decodeBody handles both encodings.
const acceptEncoding = "gzip, deflate"

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// decodeBody wraps resp.Body according to Content-Encoding. Closing the
// result closes the response body.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, domain.Wrap(domain.KindMalformedUpstreamData, err, "invalid gzip body")
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{resp.Body, zr}}, nil
	case "deflate":
		return inflate(resp.Body)
	default:
		return nil, domain.Errorf(domain.KindMalformedUpstreamData, "unsupported content encoding %q", enc)
	}
}

// inflate accepts both zlib-wrapped and raw deflate, since servers disagree on
// what "deflate" means.
func inflate(body io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(body)
	head, _ := br.Peek(2)
	if len(head) == 2 && isZlibHeader(head[0], head[1]) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, domain.Wrap(domain.KindMalformedUpstreamData, err, "invalid deflate body")
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{body, zr}}, nil
	}
	fr := flate.NewReader(br)
	return &decodedBody{Reader: fr, closers: []io.Closer{body, fr}}, nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// checkCredential inspects the start of a body for FIRMS's plain-text
// credential rejections.
func checkCredential(head []byte) error {
	lines := strings.SplitN(string(head), "\n", markerLines+1)
	if len(lines) > markerLines {
		lines = lines[:markerLines]
	}
	text := strings.ToLower(strings.Join(lines, " "))
	for _, m := range credentialMarkers {
		if strings.Contains(text, m) {
			return domain.Errorf(domain.KindInvalidCredential, "FIRMS rejected the map key")
		}
	}
	return nil
}

// peekBody reads at most the first markerLines lines of body and returns them
// with a reader that replays them ahead of the rest. It only waits for those
// lines, so the first rows of a slow stream are not held back. A read error
// is left for the returned reader to report.
func peekBody(body io.Reader) (io.Reader, []byte) {
	br := bufio.NewReaderSize(body, peekSize)
	var (
		head []byte
		err  error
	)
	for i := 0; i < markerLines && err == nil; i++ {
		var line []byte
		line, err = br.ReadSlice('\n')
		head = append(head, line...)
	}
	rest := io.Reader(br)
	if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
		rest = &errReader{err: err}
	}
	return io.MultiReader(bytes.NewReader(head), rest), head
}

// errReader replays a read error that surfaced while peeking.
type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

// rowReader yields header-keyed rows from a FIRMS CSV body.
type rowReader struct {
	cr     *csv.Reader
	header []string
}

// newRowReader consumes the header line. An empty body yields a reader
// that is immediately exhausted.
func newRowReader(r io.Reader) (*rowReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &rowReader{cr: cr}, nil
	}
	if err != nil {
		return nil, csvError(err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &rowReader{cr: cr, header: header}, nil
}

// next returns the following row, or io.EOF. Short rows map missing columns
// to "" and extra fields are ignored.
func (rr *rowReader) next() (domain.RawRow, error) {
	if rr.header == nil {
		return nil, io.EOF
	}
	fields, err := rr.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, csvError(err)
	}
	row := make(domain.RawRow, len(rr.header))
	for i, name := range rr.header {
		if i < len(fields) {
			row[name] = fields[i]
		} else {
			row[name] = ""
		}
	}
	return row, nil
}

// csvError classifies a reader failure. Syntax errors mean the payload is not
// CSV; anything else came from the underlying stream and is passed through
// for the caller to classify.
func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return domain.Wrap(domain.KindMalformedUpstreamData, err, fmt.Sprintf("malformed CSV at line %d", pe.Line))
	}
	return err
}
