package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

const (
	PermSecretFile os.FileMode = 0600
	PermSecretDir  os.FileMode = 0700
	PermPublicFile os.FileMode = 0644
)

var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrFileTooLarge        = errors.New("security: file exceeds maximum size")
	ErrNotDirectory        = errors.New("security: not a directory")
)

// groupOrOtherAccess reports whether mode grants anything beyond the owner.
// Windows has no such bits, so nothing counts there.
func groupOrOtherAccess(mode os.FileMode) bool {
	return runtime.GOOS != "windows" && mode.Perm()&0077 != 0
}

// WriteSecureFile replaces path with data. The bytes go to a hidden temp
// file in the same directory, which is synced and renamed over path, so
// readers see the old or the new content and never a torn write.
func WriteSecureFile(path string, data []byte, perm os.FileMode) (err error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, PermSecretDir); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

// WriteSecretFile writes data readable by the owner only.
func WriteSecretFile(path string, data []byte) error {
	return WriteSecureFile(path, data, PermSecretFile)
}

// ReadSecureFile reads a file only the owner can access. maxSize <= 0
// means no limit.
func ReadSecureFile(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if groupOrOtherAccess(info.Mode()) {
		return nil, fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, info.Mode().Perm())
	}
	if maxSize <= 0 {
		return io.ReadAll(f)
	}

	// One byte over the limit tells a file that grew after Stat apart from
	// one that fits exactly.
	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrFileTooLarge, path, maxSize)
	}
	return data, nil
}

// EnsureSecureDir makes sure path is a directory only the owner can
// access, creating it or tightening its mode as needed.
func EnsureSecureDir(path string) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(path, PermSecretDir); err != nil {
		if isNotDir(path) {
			return fmt.Errorf("%w: %s", ErrNotDirectory, path)
		}
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	if groupOrOtherAccess(info.Mode()) {
		if err := os.Chmod(path, PermSecretDir); err != nil {
			return fmt.Errorf("tighten %s: %w", path, err)
		}
	}
	return nil
}

func isNotDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
