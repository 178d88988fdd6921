package s3store

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// Destination stores split outputs as objects in one bucket. Names are keys.
type Destination struct {
	client *Client
	bucket string
}

// Destination returns a split destination for bucket.
func (c *Client) Destination(bucket string) *Destination {
	return &Destination{client: c, bucket: bucket}
}

// Exists implements sink.Destination.
func (d *Destination) Exists(ctx context.Context, name string) (bool, error) {
	return d.client.Exists(ctx, d.bucket, name)
}

// Create implements sink.Destination. Bytes written to the returned writer
// are streamed to a multipart upload; Close completes the object and
// CloseWithError abandons it. Without overwrite the put is conditional on the
// key not existing.
func (d *Destination) Create(ctx context.Context, name string, overwrite bool) (io.WriteCloser, error) {
	if !overwrite {
		exists, err := d.Exists(ctx, name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("s3://%s/%s: %w", d.bucket, name, fs.ErrExist)
		}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(name),
	}
	if !overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	pr, pw := io.Pipe()
	input.Body = pr

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := d.client.uploader.Upload(gctx, input)
		switch {
		case err == nil:
		case isPreconditionFailed(err):
			// Another writer created the key after the existence check.
			err = fmt.Errorf("upload s3://%s/%s: %w", d.bucket, name, fs.ErrExist)
		default:
			err = fmt.Errorf("upload s3://%s/%s: %w", d.bucket, name, err)
		}
		// Unblock the writer if the upload stopped reading early.
		pr.CloseWithError(err)
		return err
	})

	return &uploadWriter{pw: pw, g: g}, nil
}

// uploadWriter feeds an in-flight upload.
type uploadWriter struct {
	pw *io.PipeWriter
	g  *errgroup.Group
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close ends the body and waits for the upload to complete.
func (w *uploadWriter) Close() error {
	w.pw.Close()
	return w.g.Wait()
}

// CloseWithError fails the body so the upload is aborted, then waits for it.
func (w *uploadWriter) CloseWithError(cause error) error {
	w.pw.CloseWithError(cause)
	return w.g.Wait()
}
