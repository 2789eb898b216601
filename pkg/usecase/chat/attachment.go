package chat

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

// AttachmentStore holds pending attachments until the next send operation
// snapshots them into the outgoing user message.
type AttachmentStore struct {
	mu    sync.Mutex
	items []*model.Attachment
}

func NewAttachmentStore() *AttachmentStore {
	return &AttachmentStore{}
}

// Add stages an attachment. The payload must be non-empty image data.
func (s *AttachmentStore) Add(sourceRef, mimeType string, data []byte) (*model.Attachment, error) {
	if len(data) == 0 {
		return nil, goerr.New("attachment payload is empty", goerr.V("source", sourceRef))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, goerr.New("unsupported attachment type", goerr.V("source", sourceRef), goerr.V("mime_type", mimeType))
	}

	att := &model.Attachment{
		ID:        model.NewAttachmentID(),
		MimeType:  mimeType,
		Data:      data,
		SourceRef: sourceRef,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, att)

	return att, nil
}

// AddFile stages a local image file, inferring the mime type from content.
func (s *AttachmentStore) AddFile(path string) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read attachment file", goerr.V("path", path))
	}
	return s.Add(filepath.Base(path), http.DetectContentType(data), data)
}

// AddFiles stages multiple files. A failing file does not prevent the
// others from being staged; the per-file errors are joined and returned.
func (s *AttachmentStore) AddFiles(paths []string) ([]*model.Attachment, error) {
	var (
		added []*model.Attachment
		errs  []error
	)
	for _, path := range paths {
		att, err := s.AddFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		added = append(added, att)
	}
	return added, errors.Join(errs...)
}

func (s *AttachmentStore) Remove(id model.AttachmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, att := range s.items {
		if att.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return goerr.Wrap(model.ErrAttachmentNotFound, "cannot remove attachment", goerr.V("attachment_id", id))
}

func (s *AttachmentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// List returns the staged attachments in insertion order.
func (s *AttachmentStore) List() []*model.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*model.Attachment, len(s.items))
	copy(items, s.items)
	return items
}

func (s *AttachmentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
