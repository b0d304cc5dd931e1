package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const defaultMaxBytes = 8 << 20

// FileStore keeps uploaded profile images on local disk until the wizard
// forwards them to the learning platform.
type FileStore struct {
	root     string
	maxBytes int64
	newID    func() string
}

func NewFileStore(root string, maxBytes int64) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &FileStore{root: abs, maxBytes: maxBytes, newID: uuid.NewString}, nil
}

func (s *FileStore) Save(ctx context.Context, userID string, upload usecase.ImageUpload) (onboarding.ImageRef, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return onboarding.ImageRef{}, fmt.Errorf("%w: invalid user id", usecase.ErrInvalidInput)
	}
	if upload.Body == nil {
		return onboarding.ImageRef{}, fmt.Errorf("%w: image body is required", usecase.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return onboarding.ImageRef{}, err
	}

	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return onboarding.ImageRef{}, fmt.Errorf("create user media dir: %w", err)
	}

	name := filepath.Base(strings.TrimSpace(upload.Filename))
	if name == "." || name == string(filepath.Separator) {
		name = "profile"
	}
	path := filepath.Join(dir, s.newID()+strings.ToLower(filepath.Ext(name)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return onboarding.ImageRef{}, fmt.Errorf("create media file: %w", err)
	}
	written, copyErr := io.Copy(f, io.LimitReader(upload.Body, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && written > s.maxBytes {
		copyErr = fmt.Errorf("%w: image exceeds %d bytes", usecase.ErrInvalidInput, s.maxBytes)
	}
	if copyErr == nil && written == 0 {
		copyErr = fmt.Errorf("%w: image is empty", usecase.ErrInvalidInput)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return onboarding.ImageRef{}, copyErr
	}

	return onboarding.ImageRef{
		URI:  path,
		Type: strings.TrimSpace(upload.ContentType),
		Name: name,
	}, nil
}

// Remove deletes a stored image. Refs outside the store root and files
// already gone are ignored.
func (s *FileStore) Remove(ctx context.Context, ref onboarding.ImageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uri := strings.TrimSpace(ref.URI)
	if uri == "" {
		return nil
	}
	path := filepath.Clean(uri)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}
