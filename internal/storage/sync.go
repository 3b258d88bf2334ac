package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SyncModelDir pulls the model artifacts from the object store into modelDir.
// An existing local copy is replaced so restarts always pick up the latest
// published model.
func SyncModelDir(ctx context.Context, store ObjectStore, bucket, prefix, modelDir string) error {
	slog.Info("syncing model artifacts", "bucket", bucket, "prefix", prefix, "dest", modelDir)

	if err := store.DownloadDir(ctx, bucket, prefix, modelDir, true); err != nil {
		return fmt.Errorf("failed to sync model from %s/%s: %w", bucket, prefix, err)
	}
	return nil
}

// ArchiveRunOutput uploads the run's JSONL snapshot under a date-stamped key
// and returns that key.
func ArchiveRunOutput(ctx context.Context, store ObjectStore, bucket, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open run output %s: %w", path, err)
	}
	defer file.Close()

	key := filepath.Join(time.Now().UTC().Format("2006-01-02"), filepath.Base(path))
	if err := store.PutObject(ctx, bucket, key, file); err != nil {
		return "", err
	}

	slog.Info("run output archived", "bucket", bucket, "key", key)
	return key, nil
}
