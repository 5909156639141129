// Package objectstore implements the alias-builder pipeline's bucket
// layout (§6): uploads/<user>/<file>, raw/<user>/<base>.txt,
// raw/<user>/<base>_terms.json, raw/<user>/<base>_metadata.json, and
// aliases/<user>/<base>_aliases.json.
//
// The original pipeline keeps documents in S3 throughout
// (_examples/original_source/iac/lambda/*); this module carries no AWS SDK,
// so buckets are rooted at a configured local directory instead, with the
// same bucket/key addressing scheme.
package objectstore

import "context"

// Store is a content-addressable-by-key blob store over the pipeline's
// bucket layout. Keys are always "<bucket>/<path>" as used throughout §6.
type Store interface {
	// Put writes body under bucket/key, overwriting any existing object.
	Put(ctx context.Context, bucket, key string, body []byte) (etag string, err error)

	// Get reads the object at bucket/key.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Head returns the size and etag of the object at bucket/key without
	// reading its body, mirroring kb-submit's S3 HeadObject call.
	Head(ctx context.Context, bucket, key string) (size int64, etag string, err error)
}

// ErrNotFound is returned by Get/Head when bucket/key does not exist.
var ErrNotFound = objectNotFoundError{}

type objectNotFoundError struct{}

func (objectNotFoundError) Error() string { return "objectstore: object not found" }
