// Package util - Loads ordered frame sequences from a directory of still images.
package util

import (
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// frameNumber matches the last run of digits in a file name, e.g. "frame-0042.jpg".
var frameNumber = regexp.MustCompile(`(\d+)\D*$`)

// ImageFile is one frame of a sequence on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the number parsed from the file name, or -1 when the name has none.
	Frame int
}

// Load decodes the image, applying any EXIF orientation.
func (f ImageFile) Load() (image.Image, error) {
	img, err := imaging.Open(f.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "decode frame %s", f.Path)
	}
	return img, nil
}

// IsImageFile reports whether name has a supported still image extension.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff":
		return true
	default:
		return false
	}
}

// LoadDirectoryImageFiles lists the image files of a directory in frame order.
//
// Files are ordered by the number in their name; files without one follow in name order.
// The images are not decoded.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The frames in order.
//   - error: Error if the directory cannot be read or holds no images.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read frame directory")
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}

		frame := -1
		if m := frameNumber.FindStringSubmatch(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				frame = n
			}
		}
		files = append(files, ImageFile{Path: filepath.Join(dir, entry.Name()), Frame: frame})
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return files, nil
}
