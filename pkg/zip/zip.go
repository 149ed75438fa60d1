// Package zip streams gallery exports as zip archives.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Entry is one file in an archive. Open is used when Data is nil.
type Entry struct {
	Name     string
	Modified time.Time
	Data     []byte
	Open     func() (io.ReadCloser, error)
}

// Write streams entries into w as a zip archive. Entries whose Open fails are
// skipped and reported through skip, when set.
func Write(w io.Writer, entries []Entry, skip func(name string, err error)) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if err := writeEntry(zw, entry, skip); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, entry Entry, skip func(string, error)) error {
	var src io.Reader
	if entry.Data == nil && entry.Open != nil {
		rc, err := entry.Open()
		if err != nil {
			if skip != nil {
				skip(entry.Name, err)
			}
			return nil
		}
		defer rc.Close()
		src = rc
	}
	header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate, Modified: entry.Modified}
	fw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zip: create %s: %w", entry.Name, err)
	}
	if src == nil {
		_, err = fw.Write(entry.Data)
	} else {
		_, err = io.Copy(fw, src)
	}
	if err != nil {
		return fmt.Errorf("zip: write %s: %w", entry.Name, err)
	}
	return nil
}
