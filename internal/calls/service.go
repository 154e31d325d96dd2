package calls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"callbrief/pkg/logger"
)

// BlobStore is the slice of object storage the call service needs.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	SignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// PipelineStarter kicks off processing for a freshly uploaded or reset call.
type PipelineStarter interface {
	StartTranscription(ctx context.Context, callID, language string) error
}

// SettingsSource resolves a user's preferred summary language. Implementations
// return an empty string when the user has no explicit preference.
type SettingsSource interface {
	SummaryLanguage(ctx context.Context, userID string) (string, error)
}

// Service owns the call lifecycle: upload intake, processing status,
// reprocess and delete.
type Service struct {
	store    Store
	blobs    BlobStore
	starter  PipelineStarter
	settings SettingsSource

	maxUploadBytes int64
	allowedFormats map[string]struct{}

	now func() time.Time
}

func NewService(store Store, blobs BlobStore, starter PipelineStarter, settings SettingsSource, maxUploadBytes int64, allowedFormats []string) *Service {
	allowed := make(map[string]struct{}, len(allowedFormats))
	for _, f := range allowedFormats {
		allowed[strings.ToLower(f)] = struct{}{}
	}
	return &Service{
		store:          store,
		blobs:          blobs,
		starter:        starter,
		settings:       settings,
		maxUploadBytes: maxUploadBytes,
		allowedFormats: allowed,
		now:            time.Now,
	}
}

// UploadInput is a direct (multipart) upload through the API.
type UploadInput struct {
	UserID           string
	OriginalFilename string
	ContentType      string
	Size             int64
	Body             io.Reader
	Language         string
	Source           UploadSource
}

// Upload stores the audio object and creates the call row, then starts
// transcription. The call is persisted before the pipeline is kicked so a
// failed enqueue leaves a visible UPLOADED row rather than a lost file.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Call, error) {
	if err := s.validateUpload(in.OriginalFilename, in.ContentType, in.Size); err != nil {
		return Call{}, err
	}

	key := objectKey(in.OriginalFilename)
	if err := s.blobs.Upload(ctx, key, in.ContentType, in.Body, in.Size); err != nil {
		return Call{}, fmt.Errorf("upload audio: %w", err)
	}

	source := in.Source
	if source == "" {
		source = UploadSourceManual
	}
	call, err := s.createCall(ctx, key, in.OriginalFilename, in.ContentType, in.Size, in.UserID, source)
	if err != nil {
		return Call{}, err
	}

	s.startPipeline(ctx, call, in.Language)
	return call, nil
}

// RegisterInput registers an object that already exists in storage, typically
// written through a presigned URL by the desktop agent.
type RegisterInput struct {
	StorageKey       string
	OriginalFilename string
	ContentType      string
	Size             int64
	UserID           string
	Language         string
	Source           UploadSource
}

// RegisterUpload creates the call row for an object uploaded out of band.
// Registration is idempotent on the storage key: a repeated webhook for the
// same object returns the existing call and does not restart processing.
func (s *Service) RegisterUpload(ctx context.Context, in RegisterInput) (Call, bool, error) {
	if in.StorageKey == "" {
		return Call{}, false, fmt.Errorf("%w: storage key is required", ErrInvalidArgument)
	}
	if existing, err := s.store.GetCallByStorageKey(ctx, in.StorageKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Call{}, false, err
	}

	source := in.Source
	if source == "" {
		source = UploadSourcePresignedClient
	}
	call, err := s.createCall(ctx, in.StorageKey, in.OriginalFilename, in.ContentType, in.Size, in.UserID, source)
	if errors.Is(err, ErrDuplicateKey) {
		// Lost the race with a concurrent registration for the same key.
		existing, getErr := s.store.GetCallByStorageKey(ctx, in.StorageKey)
		if getErr != nil {
			return Call{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return Call{}, false, err
	}

	s.startPipeline(ctx, call, in.Language)
	return call, true, nil
}

// PresignedUpload is a signed PUT the client can use to write audio directly
// to object storage.
type PresignedUpload struct {
	URL        string        `json:"url"`
	StorageKey string        `json:"storage_key"`
	Bucket     string        `json:"bucket"`
	ExpiresIn  time.Duration `json:"expires_in"`
}

const presignPutTTL = 15 * time.Minute

// PresignUpload validates the intended object and returns a signed PUT URL.
// The caller must register the upload once the PUT completes.
func (s *Service) PresignUpload(ctx context.Context, filename, contentType string, size int64) (PresignedUpload, error) {
	if err := s.validateUpload(filename, contentType, size); err != nil {
		return PresignedUpload{}, err
	}
	key := objectKey(filename)
	url, err := s.blobs.SignedPutURL(ctx, key, contentType, presignPutTTL)
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("presign upload: %w", err)
	}
	return PresignedUpload{
		URL:        url,
		StorageKey: key,
		Bucket:     s.blobs.Bucket(),
		ExpiresIn:  presignPutTTL,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Call, error) {
	return s.store.GetCall(ctx, id)
}

func (s *Service) List(ctx context.Context, userID string, page, pageSize int) ([]Call, int, error) {
	return s.store.ListCallsByUser(ctx, userID, page, pageSize)
}

// ProcessingStatus is the per-stage view of a call's progress.
type ProcessingStatus struct {
	CallID              string     `json:"call_id"`
	Status              CallStatus `json:"status"`
	TranscriptionStatus *JobStatus `json:"transcription_status,omitempty"`
	SummaryStatus       *JobStatus `json:"summary_status,omitempty"`
	LanguageDetected    string     `json:"language_detected,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
}

// Status reports the call status together with the stage artifacts that exist
// so far. Missing artifacts yield nil stage statuses, not errors.
func (s *Service) Status(ctx context.Context, id string) (ProcessingStatus, error) {
	call, err := s.store.GetCall(ctx, id)
	if err != nil {
		return ProcessingStatus{}, err
	}
	st := ProcessingStatus{
		CallID:           call.ID,
		Status:           call.Status,
		LanguageDetected: call.LanguageDetected,
		ErrorMessage:     call.ErrorMessage,
	}
	if tr, err := s.store.GetTranscriptionByCall(ctx, id); err == nil {
		st.TranscriptionStatus = &tr.Status
	} else if !errors.Is(err, ErrNotFound) {
		return ProcessingStatus{}, err
	}
	if sum, err := s.store.LatestSummaryByCall(ctx, id); err == nil {
		st.SummaryStatus = &sum.Status
	} else if !errors.Is(err, ErrNotFound) {
		return ProcessingStatus{}, err
	}
	return st, nil
}

// Reprocess restarts the pipeline for a failed call. Child artifacts are
// removed, the call returns to UPLOADED and transcription is enqueued again.
// Only failed calls qualify.
func (s *Service) Reprocess(ctx context.Context, id, language string) (Call, error) {
	call, err := s.store.GetCall(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if call.Status != CallStatusFailed {
		return Call{}, fmt.Errorf("%w: call is %s", ErrNotFailed, call.Status)
	}
	if err := s.store.ResetForReprocess(ctx, id); err != nil {
		return Call{}, err
	}
	call, err = s.store.GetCall(ctx, id)
	if err != nil {
		return Call{}, err
	}
	s.startPipeline(ctx, call, language)
	return call, nil
}

// Delete removes the call and every derived artifact, then deletes the audio
// object. Storage cleanup is best effort: the database rows are already gone
// and an orphaned object is preferable to a half-deleted record.
func (s *Service) Delete(ctx context.Context, id string) error {
	call, err := s.store.GetCall(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCallTree(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, call.StorageKey); err != nil {
		logger.From(ctx).Warn("audio object delete failed",
			"call_id", id, "storage_key", call.StorageKey, "error", err)
	}
	return nil
}

// CallsThisMonth counts the user's calls in the current UTC calendar month.
func (s *Service) CallsThisMonth(ctx context.Context, userID string) (int, error) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	return s.store.CountCallsCreatedBetween(ctx, userID, from, to)
}

func (s *Service) createCall(ctx context.Context, key, originalFilename, contentType string, size int64, userID string, source UploadSource) (Call, error) {
	now := s.now().UTC()
	call := Call{
		ID:               uuid.NewString(),
		Filename:         filepath.Base(key),
		OriginalFilename: originalFilename,
		StorageKey:       key,
		StorageBucket:    s.blobs.Bucket(),
		ContentType:      contentType,
		FileSizeBytes:    size,
		UploadSource:     source,
		UserID:           userID,
		Status:           CallStatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateCall(ctx, call); err != nil {
		return Call{}, err
	}
	return call, nil
}

// startPipeline resolves the transcription language and enqueues the first
// stage. Enqueue failure is logged, not returned: the call row exists and a
// reprocess can pick it up.
func (s *Service) startPipeline(ctx context.Context, call Call, language string) {
	if language == "" && call.UserID != "" && s.settings != nil {
		pref, err := s.settings.SummaryLanguage(ctx, call.UserID)
		if err == nil {
			language = pref
		}
	}
	if err := s.starter.StartTranscription(ctx, call.ID, language); err != nil {
		logger.From(ctx).Error("start transcription failed",
			"call_id", call.ID, "error", err)
	}
}

func (s *Service) validateUpload(filename, contentType string, size int64) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidArgument)
	}
	if _, ok := s.allowedFormats[strings.ToLower(contentType)]; !ok {
		return fmt.Errorf("%w: unsupported content type %q", ErrInvalidArgument, contentType)
	}
	if size <= 0 {
		return fmt.Errorf("%w: file size must be positive", ErrInvalidArgument)
	}
	if size > s.maxUploadBytes {
		return fmt.Errorf("%w: file exceeds %d byte limit", ErrInvalidArgument, s.maxUploadBytes)
	}
	return nil
}

// objectKey builds the storage key for a new upload, keeping the original
// extension so downstream tooling can infer the container format.
func objectKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return "calls/" + uuid.NewString() + ext
}
