package ingest

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"wxarchive/internal/types"
)

// StationFile is one discovered source file. The station identifier is the
// file name with compression and data suffixes stripped.
type StationFile struct {
	Path      string
	StationID string
}

// DiscoverStationFiles lists the station files in dir in name order. Plain
// .txt files are read as-is; .txt.gz and .txt.zst archives are decompressed
// on the fly. A missing or unreadable directory fails the run before any
// work starts.
func DiscoverStationFiles(dir string) ([]StationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeIngestSourceMissing,
			fmt.Sprintf("station file directory %s is not readable", dir), err)
	}

	// ReadDir returns entries name-sorted, which fixes the file order.
	var files []StationFile
	for _, e := range entries {
		if e.IsDir() || !hasStationExt(e.Name()) {
			continue
		}
		files = append(files, StationFile{
			Path:      filepath.Join(dir, e.Name()),
			StationID: stationIDFromName(e.Name()),
		})
	}
	return files, nil
}

func hasStationExt(name string) bool {
	return strings.HasSuffix(name, ".txt") ||
		strings.HasSuffix(name, ".txt.gz") ||
		strings.HasSuffix(name, ".txt.zst")
}

func stationIDFromName(name string) string {
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, ".txt")
}

// SourceReader streams the decompressed content of a station file while
// hashing the on-disk bytes, so the checksum identifies the artifact that
// was ingested regardless of compression.
type SourceReader struct {
	stream  io.Reader
	file    *os.File
	hash    hash.Hash
	decoder io.Closer
}

// OpenStationFile opens sf for reading, wiring up decompression from the
// file suffix.
func OpenStationFile(sf StationFile) (*SourceReader, error) {
	f, err := os.Open(sf.Path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeIngestSourceRead,
			fmt.Sprintf("failed to open station file %s", sf.Path), err)
	}

	// blake2b.New256 cannot fail with a nil key.
	h, _ := blake2b.New256(nil)
	hashed := io.TeeReader(f, h)

	var (
		stream  io.Reader = hashed
		decoder io.Closer
	)
	switch {
	case strings.HasSuffix(sf.Path, ".gz"):
		gz, err := gzip.NewReader(hashed)
		if err != nil {
			f.Close()
			return nil, types.NewAppError(types.ErrCodeIngestSourceRead,
				fmt.Sprintf("station file %s is not valid gzip", sf.Path), err)
		}
		stream, decoder = gz, gz
	case strings.HasSuffix(sf.Path, ".zst"):
		dec, err := zstd.NewReader(hashed, zstd.WithDecoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, types.NewAppError(types.ErrCodeIngestSourceRead,
				fmt.Sprintf("station file %s is not valid zstd", sf.Path), err)
		}
		rc := dec.IOReadCloser()
		stream, decoder = rc, rc
	}

	return &SourceReader{stream: stream, file: f, hash: h, decoder: decoder}, nil
}

func (r *SourceReader) Read(p []byte) (int, error) { return r.stream.Read(p) }

// Checksum returns the BLAKE2b-256 hex digest of the on-disk bytes read so
// far. After the stream is drained it covers the whole file.
func (r *SourceReader) Checksum() string {
	return hex.EncodeToString(r.hash.Sum(nil))
}

// Close releases the decoder, if any, and the underlying file.
func (r *SourceReader) Close() error {
	if r.decoder != nil {
		if err := r.decoder.Close(); err != nil {
			r.file.Close()
			return err
		}
	}
	return r.file.Close()
}
