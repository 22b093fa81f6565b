// Package scenario drives the Zarr path-conflict reproduction against a
// provisioned archive: create a dataset and a Zarr asset, upload a file set,
// list, delete everything, upload a conflicting set, list again. The printed
// listings are the test artifact, there is no programmatic verdict.
package scenario

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dandi/zarr-path-conflicts/pkg/dandi"
	"github.com/dandi/zarr-path-conflicts/pkg/storage"
	"github.com/dandi/zarr-path-conflicts/pkg/utils"
	"github.com/dandi/zarr-path-conflicts/pkg/zarr"
)

const (
	dandisetName    = "Test Dandiset"
	zarrName        = "conflicted.zarr"
	zarrDescription = "A Zarr with path conflicts"
)

// StorageVerifier lists what the storage backend actually holds below a
// prefix. Optional, the scenario works without it.
type StorageVerifier interface {
	WalkPrefix(ctx context.Context, prefix string, process func(ctx context.Context, obj storage.RemoteObject) error) error
}

func dandisetMetadata() map[string]interface{} {
	return map[string]interface{}{
		"schemaKey":   "Dandiset",
		"name":        dandisetName,
		"description": "A test Dandiset",
		"contributor": []map[string]interface{}{
			{
				"schemaKey": "Person",
				"name":      "Doe, Jane",
				"roleName":  []string{"dcite:Author", "dcite:ContactPerson"},
			},
		},
		"license": []string{"spdx:CC0-1.0"},
	}
}

// Run executes the full path-conflict scenario.
func Run(ctx context.Context, client *dandi.Client, verifier StorageVerifier) error {
	start := time.Now()
	entriesOne := []zarr.Entry{
		zarr.NewEntry("foo", []byte("This is foo.\n")),
	}
	entriesTwo := []zarr.Entry{
		zarr.NewEntry("foo/bar", []byte("This is foo/bar.\n")),
	}

	log.Info().Msg("Creating Dandiset ...")
	d, err := client.CreateDandiset(ctx, dandisetName, dandisetMetadata())
	if err != nil {
		return err
	}

	log.Info().Msg("Creating Zarr ...")
	zarrID, err := client.CreateZarr(ctx, zarrName, d.Identifier)
	if err != nil {
		return err
	}
	if err := client.RegisterAsset(ctx, d.Identifier, d.Version(), zarrName, zarrDescription, zarrID); err != nil {
		return err
	}

	uploader := zarr.NewUploader(client)
	if err := uploader.Upload(ctx, zarrID, entriesOne); err != nil {
		return err
	}
	if err := listAndVerify(ctx, uploader, verifier, zarrID, entriesOne); err != nil {
		return err
	}
	if err := uploader.DeleteAll(ctx, zarrID, entriesOne); err != nil {
		return err
	}
	if err := uploader.Upload(ctx, zarrID, entriesTwo); err != nil {
		return err
	}
	if err := listAndVerify(ctx, uploader, verifier, zarrID, entriesTwo); err != nil {
		return err
	}
	log.Info().Msgf("scenario finished in %s", utils.HumanizeDuration(time.Since(start)))
	return nil
}

func listAndVerify(ctx context.Context, uploader *zarr.Uploader, verifier StorageVerifier, zarrID string, expected []zarr.Entry) error {
	if _, err := uploader.ListAndPrint(ctx, zarrID, expected); err != nil {
		return err
	}
	if verifier == nil {
		return nil
	}
	prefix := "zarr/" + zarrID + "/"
	var keys []string
	if err := verifier.WalkPrefix(ctx, prefix, func(_ context.Context, obj storage.RemoteObject) error {
		keys = append(keys, obj.Key)
		return nil
	}); err != nil {
		// the bucket peek is a diagnostic extra, its failure shall not kill the run
		log.Warn().Msgf("can't list storage backend under %s: %v", prefix, err)
		return nil
	}
	log.Info().Msgf("  Objects in bucket under %s: %v", prefix, keys)
	return nil
}
