// Package archive copies successful outputs into the object store so
// they outlive the gateway's scratch directory.
package archive

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/minio/minio-go/v7"

	"github.com/lensworks/mediagate/internal/domain"
	"github.com/lensworks/mediagate/internal/platform/requestid"
)

// Writer uploads one object per succeeded job. Uploads are advisory:
// a failed upload is logged and never fails the job that produced the
// output. It satisfies the dispatch archiver contract; a nil receiver
// or client archives nothing.
type Writer struct {
	Client *minio.Client
	Bucket string
	Logger *slog.Logger
}

func (w *Writer) Archive(ctx context.Context, out domain.JobOutcome) {
	if w == nil || w.Client == nil {
		return
	}
	if out.Failure != nil || len(out.Output) == 0 {
		return
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	key := ObjectKey(out)
	opts := minio.PutObjectOptions{ContentType: out.MediaType}
	_, err := w.Client.PutObject(ctx, w.Bucket, key, bytes.NewReader(out.Output), int64(len(out.Output)), opts)
	if err != nil {
		logger.Warn("output archive failed",
			"job_id", requestid.Short(out.JobID),
			"bucket", w.Bucket,
			"key", key,
			"error", err)
		return
	}
	logger.Debug("output archived",
		"job_id", requestid.Short(out.JobID),
		"bucket", w.Bucket,
		"key", key,
		"bytes", len(out.Output))
}

// ObjectKey derives the archive key for an outcome from its job id and
// media type.
func ObjectKey(out domain.JobOutcome) string {
	return "outputs/" + out.JobID + extensionFor(out.MediaType)
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
