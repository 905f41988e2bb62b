//go:build !windows

package index

import (
	"errors"
	"os"
)

// cleanupBackup removes the backup directory left by AtomicSwap.
func cleanupBackup(backupPath string) error {
	if backupPath == "" {
		return nil
	}
	err := os.RemoveAll(backupPath)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
