package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"felicity/models"
	"felicity/storage"
)

type UploadedFile struct {
	storage.FileInfo
	URL string `json:"url"`
}

func (s *Service) fileURL(id string) string {
	return strings.TrimRight(s.publicURL, "/") + "/uploads/" + id
}

// UploadFile sniffs, size-checks and stores a file owned by the caller.
func (s *Service) UploadFile(ctx context.Context, p Principal, filename string, r io.Reader) (UploadedFile, error) {
	if p.Anonymous() {
		return UploadedFile{}, Unauthenticated("authentication required")
	}
	ct, body, err := s.policy.Inspect(r)
	if errors.Is(err, storage.ErrFileType) {
		return UploadedFile{}, Invalid("file type not allowed", field("file", "must be an image or PDF"))
	}
	if err != nil {
		return UploadedFile{}, Internal("read upload", err)
	}
	info, err := s.files.Put(ctx, storage.FileInfo{
		Name:        filepath.Base(filename),
		ContentType: ct,
		Owner:       p.UserID,
	}, body)
	if errors.Is(err, storage.ErrTooLarge) {
		return UploadedFile{}, Invalid("file too large", field("file", "exceeds the upload size limit"))
	}
	if err != nil {
		return UploadedFile{}, Internal("store upload", err)
	}
	return UploadedFile{FileInfo: info, URL: s.fileURL(info.ID)}, nil
}

// OpenFile serves a file to its uploader, to admins, and to the organizer
// of the event whose ticket references it as payment proof.
func (s *Service) OpenFile(ctx context.Context, p Principal, id string) (io.ReadCloser, storage.FileInfo, error) {
	if p.Anonymous() {
		return nil, storage.FileInfo{}, Unauthenticated("authentication required")
	}
	info, err := s.files.Stat(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.FileInfo{}, NotFound("file not found")
	}
	if err != nil {
		return nil, storage.FileInfo{}, Internal("stat file", err)
	}
	if info.Owner != p.UserID && !p.IsAdmin() {
		allowed, err := s.organizerSeesFile(ctx, p, id)
		if err != nil {
			return nil, storage.FileInfo{}, Internal("file access", err)
		}
		if !allowed {
			return nil, storage.FileInfo{}, Forbidden("not allowed to view this file")
		}
	}
	rc, info, err := s.files.Open(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.FileInfo{}, NotFound("file not found")
	}
	if err != nil {
		return nil, storage.FileInfo{}, Internal("open file", err)
	}
	return rc, info, nil
}

func (s *Service) organizerSeesFile(ctx context.Context, p Principal, id string) (bool, error) {
	if !p.IsOrganizer() {
		return false, nil
	}
	reg, err := s.regs.FindByProof(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e, err := s.events.GetByID(ctx, reg.EventID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.owns(e), nil
}
