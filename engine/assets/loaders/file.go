package loaders

import (
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// CompressedExt marks assets stored as an lz4 frame.
const CompressedExt = ".lz4"

// TrimCompression returns path without a trailing .lz4 so the inner
// extension can be inspected.
func TrimCompression(path string) string {
	return strings.TrimSuffix(path, CompressedExt)
}

type assetFile struct {
	io.Reader
	file *os.File
}

func (f *assetFile) Close() error {
	return f.file.Close()
}

// openAsset opens path for reading, decompressing .lz4 files on the fly.
func openAsset(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedExt) {
		return f, nil
	}
	return &assetFile{Reader: lz4.NewReader(f), file: f}, nil
}

func readAsset(path string) ([]byte, error) {
	r, err := openAsset(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
