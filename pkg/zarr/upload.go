package zarr

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dandi/zarr-path-conflicts/pkg/dandi"
)

// Uploader runs write batches against one Zarr through the archive API.
type Uploader struct {
	client *dandi.Client
}

func NewUploader(client *dandi.Client) *Uploader {
	return &Uploader{client: client}
}

// Upload performs one write batch: request one pre-signed destination per
// entry, PUT each entry's bytes to its destination, then finalize the batch.
// A failed PUT is logged and skipped so the remaining entries still get
// their attempt, and the batch is finalized regardless of per-entry
// outcomes. Only the batch-level calls can fail the upload.
func (u *Uploader) Upload(ctx context.Context, zarrID string, entries []Entry) error {
	log.Info().Msgf("Uploading to Zarr: %s", strings.Join(Paths(entries), ", "))
	reqs := make([]dandi.UploadRequest, len(entries))
	for i, e := range entries {
		reqs[i] = dandi.UploadRequest{Path: e.Path, Base64MD5: e.Base64MD5}
	}
	urls, err := u.client.RequestUploadTargets(ctx, zarrID, reqs)
	if err != nil {
		return err
	}
	for i, e := range entries {
		log.Info().Msgf("Uploading %s to S3 backend ...", e.Path)
		if err := u.client.UploadBlob(ctx, urls[i], e.Blob, e.Base64MD5); err != nil {
			log.Error().Msgf("ERROR UPLOADING %s: %v", e.Path, err)
		}
	}
	return u.client.Finalize(ctx, zarrID)
}

// DeleteAll removes every given entry from the Zarr by path.
func (u *Uploader) DeleteAll(ctx context.Context, zarrID string, entries []Entry) error {
	log.Info().Msg("Deleting all entries from Zarr")
	return u.client.DeleteFiles(ctx, zarrID, Paths(entries))
}

// ListAndPrint logs the archive's current listing next to the expected set.
// There is no programmatic assertion, the printed comparison is the artifact.
func (u *Uploader) ListAndPrint(ctx context.Context, zarrID string, expected []Entry) ([]dandi.ZarrFile, error) {
	files, err := u.client.ListFiles(ctx, zarrID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.Key
	}
	log.Info().Msgf("Files in Zarr, per Archive: %v", keys)
	log.Info().Msgf("  Expected files: %v", Paths(expected))
	return files, nil
}
