package writer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wudi/pdfpress/ir/raw"
)

// WriteFile serializes the document to path atomically. Bytes land in a
// temporary file in the destination directory and are renamed into place only
// after a successful write, so the destination never holds a partial file.
func (w *Writer) WriteFile(path string, doc *raw.Document) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = w.Write(tmp, doc); err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}
