package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vytor/gazetest/internal/logger"
)

// FSStore keeps blobs under root/<bucket>/<path> on the local disk.
type FSStore struct {
	root    string
	key     []byte
	baseURL string
	now     func() time.Time
}

type FSOption func(*FSStore)

// WithBaseURL prefixes signed URLs, e.g. "http://localhost:8080".
func WithBaseURL(u string) FSOption {
	return func(s *FSStore) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

func WithNow(now func() time.Time) FSOption {
	return func(s *FSStore) {
		s.now = now
	}
}

func NewFSStore(root string, signingKey []byte, opts ...FSOption) (*FSStore, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("storage: empty signing key")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	s := &FSStore{root: root, key: signingKey, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// cleanKey rejects absolute paths and anything escaping the bucket.
func cleanKey(bucket, p string) (string, string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return bucket, clean, nil
}

func (s *FSStore) filename(bucket, p string) (string, error) {
	bucket, clean, err := cleanKey(bucket, p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

// Put writes through a temp file and rename so readers never see a partial blob.
func (s *FSStore) Put(ctx context.Context, bucket, p string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.filename(bucket, p)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx).WithPrefix("storage")

	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		log.Error("failed to create blob dir: %v", err)
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		log.Error("failed to store blob %s/%s: %v", bucket, p, err)
		return err
	}
	log.Debug("stored blob: %s/%s bytes=%d", bucket, p, len(content))
	return nil
}

func (s *FSStore) Get(ctx context.Context, bucket, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := s.filename(bucket, p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, p)
	}
	return data, err
}

func (s *FSStore) sign(bucket, p string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(bucket + "/" + p + "|" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns /files/<bucket>/<path>?expires=<unix>&sig=<hmac>.
func (s *FSStore) SignedURL(bucket, p string, ttl time.Duration) (string, error) {
	bucket, clean, err := cleanKey(bucket, p)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("storage: non-positive ttl %s", ttl)
	}
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(bucket, clean, expires))

	escaped := make([]string, 0, strings.Count(clean, "/")+1)
	for _, seg := range strings.Split(clean, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return fmt.Sprintf("%s/files/%s/%s?%s", s.baseURL, url.PathEscape(bucket), strings.Join(escaped, "/"), q.Encode()), nil
}

func (s *FSStore) Verify(bucket, p string, expires int64, signature string) error {
	bucket, clean, err := cleanKey(bucket, p)
	if err != nil {
		return err
	}
	want := s.sign(bucket, clean, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	if s.now().Unix() > expires {
		return ErrExpired
	}
	return nil
}
