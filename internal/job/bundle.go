package job

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeBundle packages the job's assembled documents into a single zip in
// the output directory and returns its path.
func writeBundle(outputDir, publication string, artifacts []string) (string, error) {
	bundlePath := filepath.Join(outputDir, publication+"_epubs.zip")
	f, err := os.Create(bundlePath)
	if err != nil {
		return "", fmt.Errorf("create bundle: %w", err)
	}
	zw := zip.NewWriter(f)

	for _, artifact := range artifacts {
		if err := addBundleEntry(zw, artifact); err != nil {
			_ = zw.Close()
			_ = f.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("finalize bundle: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close bundle: %w", err)
	}
	return bundlePath, nil
}

func addBundleEntry(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("add artifact %s: %w", path, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy artifact %s: %w", path, err)
	}
	return nil
}
