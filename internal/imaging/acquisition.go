// Package imaging resolves an image source for a new image element: a remote URL typed by the
// user or an uploaded file, with a data URL fallback when the blob store is unavailable.
package imaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"go.uber.org/zap"
)

// MaxFileSize caps uploaded images.
const MaxFileSize = 5 << 20

const (
	opOpen       = "imaging.open"
	opSubmitURL  = "imaging.submit_url"
	opSubmitFile = "imaging.submit_file"
	opResolve    = "imaging.resolve"
)

const (
	WarningNotPersisted  = "Image embedded locally; sign in to keep it across sessions and documents."
	WarningUploadFailed  = "Upload failed; the image was embedded locally instead."
	messageMalformedURL  = "Enter a valid http or https image URL."
	messageNotImage      = "Choose an image file."
	messageFileTooLarge  = "Images must be 5 MB or smaller."
	messageEmptyFile     = "The selected file is empty."
	messageConfirmNeeded = "This URL does not look like an image. Confirm to use it anyway."
)

var (
	errWrongPhase          = errors.New("operation not allowed in the current phase")
	errUnknownMethod       = errors.New("unknown acquisition method")
	errMalformedURL        = errors.New("malformed image url")
	errNotImage            = errors.New("file is not an image")
	errFileTooLarge        = errors.New("file exceeds 5 MB")
	errEmptyFile           = errors.New("file is empty")
	errConfirmationNeeded  = errors.New("url needs explicit confirmation")
	errAcquisitionCanceled = errors.New("acquisition canceled")
	errUploadInProgress    = errors.New("upload in progress")
	noOpLogger             = zap.NewNop()
)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".bmp": {}, ".avif": {},
}

// Method selects how the image is supplied.
type Method string

const (
	MethodURL  Method = "url"
	MethodFile Method = "file"
)

// Phase is the acquisition state.
type Phase string

const (
	PhaseClosed        Phase = "closed"
	PhaseAwaitingInput Phase = "awaiting_input"
	PhasePreviewing    Phase = "previewing"
	PhaseResolved      Phase = "resolved"
	PhaseFailed        Phase = "failed"
)

// BlobStore uploads bytes and returns a download URL. progress receives 0 to 100.
type BlobStore interface {
	Put(ctx context.Context, objectPath, contentType string, data []byte, progress func(percent float64)) (string, error)
}

// File is an uploaded image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is the resolved image source.
type Result struct {
	ImageURL  string `json:"imageUrl"`
	Persisted bool   `json:"persisted"`
	Warning   string `json:"warning,omitempty"`
}

// Snapshot is a read-only view of the acquisition for the host UI.
type Snapshot struct {
	Phase             Phase   `json:"phase"`
	Method            Method  `json:"method,omitempty"`
	PreviewURL        string  `json:"previewUrl,omitempty"`
	NeedsConfirmation bool    `json:"needsConfirmation"`
	Progress          float64 `json:"progress"`
	Message           string  `json:"message,omitempty"`
	Result            *Result `json:"result,omitempty"`
}

type AcquisitionConfig struct {
	Principal auth.Principal
	Blobs     BlobStore
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Acquisition walks Closed, AwaitingInput, Previewing and then Resolved or Failed. Validation
// failures land in Failed with a user-facing message; Failed accepts a new submission for the
// same method, which puts the flow back on its AwaitingInput path.
type Acquisition struct {
	principal auth.Principal
	blobs     BlobStore
	clock     func() time.Time
	logger    *zap.Logger

	mu                sync.Mutex
	phase             Phase
	method            Method
	previewURL        string
	file              *File
	needsConfirmation bool
	progress          float64
	message           string
	result            *Result
	generation        uint64
	cancelUpload      context.CancelFunc
}

func NewAcquisition(cfg AcquisitionConfig) *Acquisition {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Acquisition{
		principal: cfg.Principal,
		blobs:     cfg.Blobs,
		clock:     clock,
		logger:    logger,
		phase:     PhaseClosed,
	}
}

// Snapshot returns the current state.
func (a *Acquisition) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := Snapshot{
		Phase:             a.phase,
		Method:            a.method,
		PreviewURL:        a.previewURL,
		NeedsConfirmation: a.needsConfirmation,
		Progress:          a.progress,
		Message:           a.message,
	}
	if a.result != nil {
		result := *a.result
		snapshot.Result = &result
	}
	return snapshot
}

// Open starts or restarts the flow for a method. Any partial state is discarded.
func (a *Acquisition) Open(method Method) error {
	if method != MethodURL && method != MethodFile {
		return apperr.New(opOpen, "unknown_method", apperr.ErrValidation, fmt.Errorf("%w: %q", errUnknownMethod, method))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
	a.phase = PhaseAwaitingInput
	a.method = method
	return nil
}

// Cancel closes the flow and discards everything, aborting an upload in flight.
func (a *Acquisition) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

// SubmitURL validates a typed URL and moves to Previewing. Submissions are refused while an upload
// is in flight; Cancel or Open abort it first.
func (a *Acquisition) SubmitURL(raw string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploadingLocked() {
		return apperr.New(opSubmitURL, "upload_in_progress", apperr.ErrValidation, errUploadInProgress)
	}
	if !a.acceptsInputLocked(MethodURL) {
		return apperr.New(opSubmitURL, "wrong_phase", apperr.ErrValidation, errWrongPhase)
	}
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		a.failLocked(messageMalformedURL)
		return apperr.New(opSubmitURL, "malformed_url", apperr.ErrValidation, errMalformedURL)
	}
	a.phase = PhasePreviewing
	a.previewURL = trimmed
	a.needsConfirmation = !HasImageExtension(parsed.Path)
	a.message = ""
	if a.needsConfirmation {
		a.message = messageConfirmNeeded
	}
	return nil
}

// SubmitFile validates an uploaded file and moves to Previewing with a data URL preview.
func (a *Acquisition) SubmitFile(file File) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploadingLocked() {
		return apperr.New(opSubmitFile, "upload_in_progress", apperr.ErrValidation, errUploadInProgress)
	}
	if !a.acceptsInputLocked(MethodFile) {
		return apperr.New(opSubmitFile, "wrong_phase", apperr.ErrValidation, errWrongPhase)
	}
	contentType := strings.ToLower(strings.TrimSpace(file.ContentType))
	if contentType == "" && len(file.Data) > 0 {
		contentType = http.DetectContentType(file.Data)
	}
	switch {
	case len(file.Data) == 0:
		a.failLocked(messageEmptyFile)
		return apperr.New(opSubmitFile, "empty_file", apperr.ErrValidation, errEmptyFile)
	case !strings.HasPrefix(contentType, "image/"):
		a.failLocked(messageNotImage)
		return apperr.New(opSubmitFile, "not_image", apperr.ErrValidation, errNotImage)
	case len(file.Data) > MaxFileSize:
		a.failLocked(messageFileTooLarge)
		return apperr.New(opSubmitFile, "file_too_large", apperr.ErrValidation, errFileTooLarge)
	}
	accepted := File{Name: file.Name, ContentType: contentType, Data: file.Data}
	a.phase = PhasePreviewing
	a.file = &accepted
	a.previewURL = DataURL(contentType, file.Data)
	a.needsConfirmation = false
	a.message = ""
	return nil
}

// Resolve finishes a previewed source. URLs without an image extension must be confirmed. Files
// are uploaded for authenticated users and embedded as data URLs otherwise or when the upload
// fails. Canceling ctx or calling Cancel during the upload closes the flow.
func (a *Acquisition) Resolve(ctx context.Context, confirmed bool) (Result, error) {
	a.mu.Lock()
	if a.phase != PhasePreviewing {
		a.mu.Unlock()
		return Result{}, apperr.New(opResolve, "wrong_phase", apperr.ErrValidation, errWrongPhase)
	}
	if a.uploadingLocked() {
		a.mu.Unlock()
		return Result{}, apperr.New(opResolve, "upload_in_progress", apperr.ErrValidation, errUploadInProgress)
	}

	if a.method == MethodURL {
		defer a.mu.Unlock()
		if a.needsConfirmation && !confirmed {
			return Result{}, apperr.New(opResolve, "confirmation_required", apperr.ErrValidation, errConfirmationNeeded)
		}
		return a.resolveLocked(Result{ImageURL: a.previewURL, Persisted: true}), nil
	}

	file := *a.file
	if !a.principal.Authenticated() || a.blobs == nil {
		defer a.mu.Unlock()
		return a.resolveLocked(Result{ImageURL: a.previewURL, Warning: WarningNotPersisted}), nil
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	a.generation++
	generation := a.generation
	a.cancelUpload = cancel
	a.progress = 0
	objectPath := UploadPath(a.principal.UID, a.clock(), file)
	a.mu.Unlock()

	downloadURL, err := a.blobs.Put(uploadCtx, objectPath, file.ContentType, file.Data, func(percent float64) {
		a.reportProgress(generation, percent)
	})
	cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation || a.phase != PhasePreviewing {
		return Result{}, apperr.New(opResolve, "canceled", apperr.ErrValidation, errAcquisitionCanceled)
	}
	a.cancelUpload = nil
	if ctx.Err() != nil {
		a.resetLocked()
		return Result{}, apperr.New(opResolve, "canceled", apperr.ErrValidation, ctx.Err())
	}
	if err != nil {
		a.logger.Warn("image upload failed; embedding data url",
			zap.String("operation", opResolve),
			zap.String("reason", "upload_failed"),
			zap.String("path", objectPath),
			zap.Error(apperr.New(opResolve, "upload_failed", apperr.ErrUploadFailure, err)))
		return a.resolveLocked(Result{ImageURL: a.previewURL, Warning: WarningUploadFailed}), nil
	}
	a.progress = 100
	return a.resolveLocked(Result{ImageURL: downloadURL, Persisted: true}), nil
}

func (a *Acquisition) reportProgress(generation uint64, percent float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation {
		return
	}
	a.progress = min(max(percent, 0), 100)
}

func (a *Acquisition) uploadingLocked() bool {
	return a.cancelUpload != nil
}

func (a *Acquisition) acceptsInputLocked(method Method) bool {
	if a.method != method {
		return false
	}
	return a.phase == PhaseAwaitingInput || a.phase == PhaseFailed || a.phase == PhasePreviewing
}

func (a *Acquisition) failLocked(message string) {
	a.phase = PhaseFailed
	a.message = message
	a.previewURL = ""
	a.file = nil
	a.needsConfirmation = false
}

func (a *Acquisition) resolveLocked(result Result) Result {
	a.phase = PhaseResolved
	a.result = &result
	a.file = nil
	a.message = result.Warning
	return result
}

func (a *Acquisition) resetLocked() {
	if a.cancelUpload != nil {
		a.cancelUpload()
		a.cancelUpload = nil
	}
	a.generation++
	a.phase = PhaseClosed
	a.method = ""
	a.previewURL = ""
	a.file = nil
	a.needsConfirmation = false
	a.progress = 0
	a.message = ""
	a.result = nil
}

// HasImageExtension reports whether a URL path ends in a common image extension.
func HasImageExtension(urlPath string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(urlPath))]
	return ok
}

// DataURL embeds data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// UploadPath returns images/{uid}/{unix millis}.{ext}.
func UploadPath(uid string, at time.Time, file File) string {
	return fmt.Sprintf("images/%s/%d.%s", uid, at.UnixMilli(), extensionFor(file))
}

func extensionFor(file File) string {
	switch file.ContentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	}
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(file.Name)), "."); ext != "" {
		return ext
	}
	return "img"
}
