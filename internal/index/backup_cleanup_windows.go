//go:build windows

package index

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/windows"
)

// cleanupBackup removes the backup directory left by AtomicSwap.
//
// A server streaming the previous addons.xml keeps a handle open on Windows,
// so removal is retried for a short period and then the remaining files are
// scheduled for deletion at next reboot.
func cleanupBackup(backupPath string) error {
	if backupPath == "" {
		return nil
	}

	tryRemove := func() error {
		err := os.RemoveAll(backupPath)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var lastErr error
	for i := 0; i < 15; i++ {
		if err := tryRemove(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}

	entries, _ := os.ReadDir(backupPath)
	for _, e := range entries {
		if err := deleteAtReboot(filepath.Join(backupPath, e.Name())); err != nil {
			return lastErr
		}
	}
	if err := deleteAtReboot(backupPath); err != nil {
		return lastErr
	}
	return nil
}

func deleteAtReboot(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(p, nil, windows.MOVEFILE_DELAY_UNTIL_REBOOT)
}
