package keyvalstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoStoragePath     = errors.New("keyvalstore: no storage path configured")
	ErrPathNotDirectory  = errors.New("keyvalstore: storage path is not a directory")
	ErrInsufficientSpace = errors.New("keyvalstore: not enough free space on disk")
)

func (c *StoreConfig) check() error {
	if len(c.Paths) == 0 {
		return ErrNoStoragePath
	}

	path := c.Paths[0]
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating storage path %s: %w", path, err)
		}
	} else if err != nil {
		return fmt.Errorf("inspecting storage path %s: %w", path, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPathNotDirectory, path)
	}

	if c.MinimumFreeGB > 0 {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("reading disk usage for %s: %w", path, err)
		}
		freeGB := usage.Free / (1024 * 1024 * 1024)
		if freeGB < uint64(c.MinimumFreeGB) {
			return fmt.Errorf("%w: %d GB free, %d GB required", ErrInsufficientSpace, freeGB, c.MinimumFreeGB)
		}
	}

	return nil
}

func (s *Store) logDiskUsage() {
	for _, path := range s.config.Paths {
		usage, err := disk.Usage(path)
		if err != nil {
			s.log.WithField("path", path).WithError(err).Warn("could not read disk usage")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"path":       path,
			"total_gb":   fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
			"used_gb":    fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
			"free_gb":    fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
			"used_ratio": fmt.Sprintf("%.2f", usage.UsedPercent/100),
		}).Info("storage volume usage")
	}
}
