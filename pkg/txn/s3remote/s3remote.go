// Package s3remote implements txn.RemoteFilesystem backed by an
// S3-compatible object store, grounded on the teacher pack's S3 storage
// driver (aws-sdk-go's session/S3 client usage) rather than on any
// filesystem path arithmetic: keys are staged under a transaction prefix
// and promoted by copying them to their final key at commit, since S3 has
// no atomic directory rename.
package s3remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/HRDAG/dsg-sub001/pkg/errkind"
	"github.com/HRDAG/dsg-sub001/pkg/txn"
)

// RemoteFilesystem stores objects under bucket, keyed by a prefix plus the
// repository-relative path.
type RemoteFilesystem struct {
	Client *s3.S3
	Bucket string
	Prefix string

	mu      sync.Mutex
	staged  map[txn.ID]map[string]bool
	deleted map[txn.ID]map[string]bool
}

// New creates an S3-backed RemoteFilesystem using the default credential
// chain and region resolution of the aws-sdk-go session package.
func New(bucket, prefix, region string) (*RemoteFilesystem, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "creating aws session")
	}
	return &RemoteFilesystem{
		Client:  s3.New(sess),
		Bucket:  bucket,
		Prefix:  prefix,
		staged:  make(map[txn.ID]map[string]bool),
		deleted: make(map[txn.ID]map[string]bool),
	}, nil
}

func (r *RemoteFilesystem) liveKey(relPath string) string {
	return path.Join(r.Prefix, relPath)
}

func (r *RemoteFilesystem) stagingKey(tx txn.ID, relPath string) string {
	return path.Join(r.Prefix, ".staging-"+string(tx), relPath)
}

// Begin implements txn.RemoteFilesystem.
func (r *RemoteFilesystem) Begin(tx txn.ID) error {
	r.mu.Lock()
	r.staged[tx] = make(map[string]bool)
	r.deleted[tx] = make(map[string]bool)
	r.mu.Unlock()
	return nil
}

// Stage implements txn.RemoteFilesystem, uploading content to a
// transaction-scoped key.
func (r *RemoteFilesystem) Stage(tx txn.ID, relPath string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "reading content to stage to s3")
	}
	_, err = r.Client.PutObjectWithContext(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.stagingKey(tx, relPath)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "uploading staged object: "+relPath)
	}
	r.mu.Lock()
	r.staged[tx][relPath] = true
	r.mu.Unlock()
	return nil
}

// StageDelete implements txn.RemoteFilesystem.
func (r *RemoteFilesystem) StageDelete(tx txn.ID, relPath string) error {
	r.mu.Lock()
	r.deleted[tx][relPath] = true
	r.mu.Unlock()
	return nil
}

// StageManifest implements txn.RemoteFilesystem.
func (r *RemoteFilesystem) StageManifest(tx txn.ID, manifestData []byte) error {
	_, err := r.Client.PutObjectWithContext(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.stagingKey(tx, "last-sync.json")),
		Body:   bytes.NewReader(manifestData),
	})
	if err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "uploading staged manifest")
	}
	return nil
}

// Commit implements txn.RemoteFilesystem. S3 has no atomic rename, so
// promotion is a server-side copy from each staging key to its live key
// followed by deletion of the staging object; this is the window in which
// a crash could leave a staged object promoted without its siblings, which
// Recover-on-next-sync resolves by re-running the plan.
func (r *RemoteFilesystem) Commit(tx txn.ID) error {
	r.mu.Lock()
	staged := make([]string, 0, len(r.staged[tx]))
	for p := range r.staged[tx] {
		staged = append(staged, p)
	}
	deleted := make([]string, 0, len(r.deleted[tx]))
	for p := range r.deleted[tx] {
		deleted = append(deleted, p)
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, relPath := range staged {
		source := fmt.Sprintf("%s/%s", r.Bucket, r.stagingKey(tx, relPath))
		if _, err := r.Client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(r.Bucket),
			CopySource: aws.String(source),
			Key:        aws.String(r.liveKey(relPath)),
		}); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "promoting staged object: "+relPath)
		}
		if _, err := r.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.stagingKey(tx, relPath)),
		}); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "removing staged object after promote: "+relPath)
		}
	}
	for _, relPath := range deleted {
		if _, err := r.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.liveKey(relPath)),
		}); err != nil {
			return errkind.Wrap(errkind.RemoteCommit, err, "applying remote deletion: "+relPath)
		}
	}

	manifestStaging := r.stagingKey(tx, "last-sync.json")
	source := fmt.Sprintf("%s/%s", r.Bucket, manifestStaging)
	if _, err := r.Client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(r.Bucket),
		CopySource: aws.String(source),
		Key:        aws.String(r.liveKey("last-sync.json")),
	}); err != nil {
		return errkind.Wrap(errkind.RemoteCommit, err, "promoting staged manifest")
	}
	_, _ = r.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(manifestStaging),
	})

	r.mu.Lock()
	delete(r.staged, tx)
	delete(r.deleted, tx)
	r.mu.Unlock()
	return nil
}

// Rollback implements txn.RemoteFilesystem, removing any staged objects.
func (r *RemoteFilesystem) Rollback(tx txn.ID) error {
	r.mu.Lock()
	staged := make([]string, 0, len(r.staged[tx]))
	for p := range r.staged[tx] {
		staged = append(staged, p)
	}
	delete(r.staged, tx)
	delete(r.deleted, tx)
	r.mu.Unlock()

	ctx := context.Background()
	for _, relPath := range staged {
		_, _ = r.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.stagingKey(tx, relPath)),
		})
	}
	_, _ = r.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.stagingKey(tx, "last-sync.json")),
	})
	return nil
}

// Read implements txn.RemoteFilesystem.
func (r *RemoteFilesystem) Read(relPath string) (io.ReadCloser, error) {
	resp, err := r.Client.GetObjectWithContext(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.liveKey(relPath)),
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.RemoteCommit, err, "reading object: "+relPath)
	}
	return resp.Body, nil
}
