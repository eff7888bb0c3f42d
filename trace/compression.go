package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// ErrCompressionFailed indicates a failure reading compressed content.
var ErrCompressionFailed = errors.New("failed to read compressed file")

// compressionCodec defines how to create a streaming reader for a compressed format.
type compressionCodec struct {
	name   string
	opener func(io.Reader) (io.ReadCloser, error)
}

var (
	gzipCodec = compressionCodec{
		name: "gzip",
		opener: func(r io.Reader) (io.ReadCloser, error) {
			return newParallelGzipReader(r)
		},
	}
	zstdCodec = compressionCodec{
		name: "zstd",
		opener: func(r io.Reader) (io.ReadCloser, error) {
			return newZstdDecoder(r)
		},
	}
)

// Open opens a trace log file for reading, transparently decompressing
// .gz, .zst/.zstd and .7z files based on their extension. For 7z archives
// the member files are concatenated in archive order, which matches how
// rotated trace logs are usually bundled.
func Open(filename string) (io.ReadCloser, error) {
	lower := strings.ToLower(filename)
	var codec compressionCodec
	switch {
	case strings.HasSuffix(lower, ".7z"):
		return openSevenZip(filename)
	case strings.HasSuffix(lower, ".gz"):
		codec = gzipCodec
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		codec = zstdCodec
	default:
		return os.Open(filename)
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	reader, err := codec.opener(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s %s: %v", ErrCompressionFailed, codec.name, filename, err)
	}
	return &codecFile{ReadCloser: reader, file: file}, nil
}

// ParseFile parses the trace log in the named file, sending records to out.
// Works with plain and compressed logs, see Open.
func (p *Parser) ParseFile(filename string, out chan<- Record) error {
	reader, err := Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer reader.Close()
	return p.Parse(reader, out)
}

// codecFile closes the decompressor and then the underlying file.
type codecFile struct {
	io.ReadCloser
	file *os.File
}

func (c *codecFile) Close() error {
	err := c.ReadCloser.Close()
	if ferr := c.file.Close(); err == nil {
		err = ferr
	}
	return err
}

// newParallelGzipReader returns a pgzip reader configured for parallel decompression.
func newParallelGzipReader(r io.Reader) (*pgzip.Reader, error) {
	threads := runtime.GOMAXPROCS(0)
	if threads < 1 {
		threads = 1
	}
	if threads > 8 {
		threads = 8 // cap to avoid excessive goroutine churn on large hosts
	}

	const blockSize = 1 << 20 // 1 MiB blocks balance throughput and memory usage
	return pgzip.NewReaderN(r, blockSize, threads)
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// newZstdDecoder returns a zstd decoder configured for streaming decompression.
func newZstdDecoder(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{Decoder: dec}, nil
}

// sevenZipReader streams the regular files of a 7z archive back to back.
type sevenZipReader struct {
	archive *sevenzip.ReadCloser
	files   []*sevenzip.File
	current io.ReadCloser
}

func openSevenZip(filename string) (io.ReadCloser, error) {
	archive, err := sevenzip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: 7z %s: %v", ErrCompressionFailed, filename, err)
	}
	var files []*sevenzip.File
	for _, f := range archive.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	return &sevenZipReader{archive: archive, files: files}, nil
}

func (s *sevenZipReader) Read(p []byte) (int, error) {
	for {
		if s.current == nil {
			if len(s.files) == 0 {
				return 0, io.EOF
			}
			f, err := s.files[0].Open()
			if err != nil {
				return 0, err
			}
			s.files = s.files[1:]
			s.current = f
		}
		n, err := s.current.Read(p)
		if err == io.EOF {
			s.current.Close()
			s.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *sevenZipReader) Close() error {
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
	return s.archive.Close()
}
