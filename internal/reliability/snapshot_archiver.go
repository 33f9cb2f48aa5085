package reliability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const (
	archiveNamePrefix = "cryptofolio-snapshots-"
	archiveNameSuffix = ".msgpack"
	archiveTimeLayout = "2006-01-02-150405"

	// Keep at least this many archives regardless of age
	minArchivesToKeep = 3
)

// ObjectStore is the bucket surface the archiver needs
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Delete(ctx context.Context, key string) error
}

// ArchiveInfo describes one archive stored in the bucket
type ArchiveInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// SnapshotArchiver uploads snapshot batches and rotates old ones
type SnapshotArchiver struct {
	store  ObjectStore
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NewSnapshotArchiver creates an archiver writing under prefix
func NewSnapshotArchiver(store ObjectStore, prefix string, log zerolog.Logger) *SnapshotArchiver {
	return &SnapshotArchiver{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		log:    log.With().Str("service", "snapshot_archive").Logger(),
		now:    time.Now,
	}
}

// Archive uploads one encoded snapshot batch
func (a *SnapshotArchiver) Archive(ctx context.Context, takenAt time.Time, data []byte) error {
	key := a.key(takenAt)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return err
	}

	a.log.Info().
		Str("key", key).
		Int("size_bytes", len(data)).
		Msg("Snapshot archive uploaded")
	return nil
}

// ListArchives returns stored archives, newest first. Unrelated objects are ignored.
func (a *SnapshotArchiver) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := a.store.List(ctx, a.keyPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot archives: %w", err)
	}

	now := a.now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		ts, ok := parseArchiveTimestamp(path.Base(*obj.Key))
		if !ok {
			a.log.Warn().Str("key", *obj.Key).Msg("Failed to parse timestamp from archive key")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}

		archives = append(archives, ArchiveInfo{
			Key:       *obj.Key,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})

	return archives, nil
}

// RotateOldArchives deletes archives older than retentionDays, always keeping the newest
// few. retentionDays 0 keeps everything. Returns the number deleted.
func (a *SnapshotArchiver) RotateOldArchives(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	archives, err := a.ListArchives(ctx)
	if err != nil {
		return 0, err
	}
	if len(archives) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := a.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, archive := range archives[minArchivesToKeep:] {
		if !archive.Timestamp.Before(cutoff) {
			continue
		}
		if err := a.store.Delete(ctx, archive.Key); err != nil {
			a.log.Error().Err(err).Str("key", archive.Key).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	a.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Snapshot archive rotation completed")

	return deleted, nil
}

func (a *SnapshotArchiver) keyPrefix() string {
	if a.prefix == "" {
		return archiveNamePrefix
	}
	return a.prefix + "/" + archiveNamePrefix
}

func (a *SnapshotArchiver) key(takenAt time.Time) string {
	return a.keyPrefix() + takenAt.UTC().Format(archiveTimeLayout) + archiveNameSuffix
}

func parseArchiveTimestamp(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, archiveNamePrefix) || !strings.HasSuffix(name, archiveNameSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, archiveNamePrefix), archiveNameSuffix)
	ts, err := time.Parse(archiveTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
