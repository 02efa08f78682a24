// Package assets copies a built site into its bucket.
package assets

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/alitto/pond"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/savaki/gox/slicex"
)

const (
	DefaultConcurrency = 8

	// DeleteObjects accepts at most 1000 keys per request.
	deleteBatchSize = 1000
)

// S3API is the subset of the S3 client the uploader uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// File is one asset to upload.
type File struct {
	Key  string
	Path string
}

type SyncResult struct {
	Uploaded int `json:"uploaded"`
	Deleted  int `json:"deleted"`
}

type Uploader struct {
	client      S3API
	concurrency int
	prune       bool
}

func New(client S3API) *Uploader {
	return &Uploader{
		client:      client,
		concurrency: DefaultConcurrency,
		prune:       true,
	}
}

// WithConcurrency returns a copy of the uploader running n parallel uploads.
func (u *Uploader) WithConcurrency(n int) *Uploader {
	clone := *u
	if n > 0 {
		clone.concurrency = n
	}
	return &clone
}

// WithPrune returns a copy of the uploader that does, or does not, remove
// objects with no matching local file after a sync.
func (u *Uploader) WithPrune(prune bool) *Uploader {
	clone := *u
	clone.prune = prune
	return &clone
}

// Sync uploads every file below dir to bucket, keyed by its slash-separated
// path relative to dir, then prunes stale objects.
func (u *Uploader) Sync(ctx context.Context, bucket, dir string) (result *SyncResult, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		event := logger.Info().
			Err(err).
			Str("bucket", bucket).
			Str("dir", dir).
			Dur("duration", time.Since(begin))
		if result != nil {
			event = event.Int("uploaded", result.Uploaded).Int("deleted", result.Deleted)
		}
		event.Msg("Synced assets")
	}(time.Now())

	files, err := Walk(dir)
	if err != nil {
		return nil, err
	}

	pool := pond.New(u.concurrency, len(files)+1)
	defer pool.StopAndWait()

	group, groupCtx := pool.GroupContext(ctx)
	for _, file := range files {
		group.Submit(func() error {
			return u.put(groupCtx, bucket, file)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result = &SyncResult{Uploaded: len(files)}
	if !u.prune {
		return result, nil
	}

	keep := make(map[string]struct{}, len(files))
	for _, file := range files {
		keep[file.Key] = struct{}{}
	}
	deleted, err := u.deleteWhere(ctx, bucket, func(key string) bool {
		_, ok := keep[key]
		return !ok
	})
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	return result, nil
}

// Empty deletes every object in bucket so the stack can delete it.
func (u *Uploader) Empty(ctx context.Context, bucket string) (int, error) {
	logger := zerolog.Ctx(ctx)

	deleted, err := u.deleteWhere(ctx, bucket, func(string) bool { return true })
	if err != nil {
		return 0, err
	}

	logger.Info().Str("bucket", bucket).Int("deleted", deleted).Msg("Emptied bucket")
	return deleted, nil
}

func (u *Uploader) put(ctx context.Context, bucket string, file File) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	contentType, err := ContentType(file.Path)
	if err != nil {
		return err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(file.Key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", file.Key, bucket, err)
	}

	zerolog.Ctx(ctx).Debug().Str("key", file.Key).Str("content_type", contentType).Msg("Uploaded asset")
	return nil
}

func (u *Uploader) deleteWhere(ctx context.Context, bucket string, match func(key string) bool) (int, error) {
	var stale []string

	paginator := s3.NewListObjectsV2Paginator(u.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
		}
		for _, object := range page.Contents {
			if key := aws.ToString(object.Key); match(key) {
				stale = append(stale, key)
			}
		}
	}

	for batch := range slices.Chunk(stale, deleteBatchSize) {
		out, err := u.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: slicex.Map(batch, objectIdentifier),
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to delete objects from bucket %s: %w", bucket, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return 0, fmt.Errorf("failed to delete %s from bucket %s: %s", aws.ToString(e.Key), bucket, aws.ToString(e.Message))
		}
	}

	return len(stale), nil
}

func objectIdentifier(key string) types.ObjectIdentifier {
	return types.ObjectIdentifier{Key: aws.String(key)}
}

// Walk lists the regular files below dir in lexical order.
func Walk(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, File{Key: filepath.ToSlash(rel), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return files, nil
}

// ContentType picks the type from the extension and sniffs the content when
// the extension is unknown.
func ContentType(path string) (string, error) {
	if contentType := mime.TypeByExtension(filepath.Ext(path)); contentType != "" {
		return contentType, nil
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type of %s: %w", path, err)
	}
	return detected.String(), nil
}
