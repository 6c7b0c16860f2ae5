//go:build mage

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/magefile/mage/mg"
	"github.com/pierrec/lz4/v4"
)

type Assets mg.Namespace

var packable = map[string]bool{
	".spv": true,
	".obj": true,
	".png": true,
	".bmp": true,
	".tif": true,
}

// Compresses shaders, models and images under assets/ into .lz4 siblings.
// The loaders read either form.
func (Assets) Pack() error {
	mg.Deps(Build.Shaders)
	return filepath.Walk("assets", func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !packable[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		packed, err := compress(path)
		if err != nil {
			return fmt.Errorf("failed to pack %s: %w", path, err)
		}
		fmt.Printf("%s: %s -> %s\n", path, units.HumanSize(float64(fi.Size())), units.HumanSize(float64(packed)))
		return nil
	})
}

// Removes every .lz4 file under assets/.
func (Assets) Clean() error {
	return filepath.Walk("assets", func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && strings.HasSuffix(path, ".lz4") {
			return os.Remove(path)
		}
		return nil
	})
}

func compress(path string) (int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(path + ".lz4")
	if err != nil {
		return 0, err
	}
	defer out.Close()

	w := lz4.NewWriter(out)
	if _, err := io.Copy(w, in); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
