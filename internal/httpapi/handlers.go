// Package httpapi exposes the REST surface of the service.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"callbrief/internal/auth"
	"callbrief/internal/calls"
	"callbrief/internal/notify"
	"callbrief/internal/settings"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    *calls.Service
	Store    calls.Store
	Settings settings.Store
	Notify   *notify.Dispatcher
}

// errStatus maps service sentinels to HTTP codes.
func errStatus(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, settings.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, settings.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFailed):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrDuplicateKey):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ownedCall loads a call and enforces that it belongs to the caller.
// Foreign calls read as 404 so ids do not leak.
func (h Handlers) ownedCall(c *gin.Context) (calls.Call, bool) {
	call, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		errStatus(c, err)
		return calls.Call{}, false
	}
	if call.UserID != "" && call.UserID != auth.GinUserID(c) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return calls.Call{}, false
	}
	return call, true
}

/* ===================== auth ===================== */

type tokenRequest struct {
	UserID string `json:"user_id"`
}

// IssueToken issues an access token.
//
// NOTE: credential validation is out of scope; deployments front this with an
// identity provider and disable the endpoint outside development.
func (h Handlers) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

/* ===================== calls ===================== */

// UploadCall accepts a multipart audio file and starts processing.
func (h Handlers) UploadCall(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer src.Close()

	call, err := h.Calls.Upload(c.Request.Context(), calls.UploadInput{
		UserID:           auth.GinUserID(c),
		OriginalFilename: file.Filename,
		ContentType:      file.Header.Get("Content-Type"),
		Size:             file.Size,
		Body:             src,
		Language:         c.PostForm("language"),
		Source:           calls.UploadSourceManual,
	})
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) ListCalls(c *gin.Context) {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 20)

	items, total, err := h.Calls.List(c.Request.Context(), auth.GinUserID(c), page, pageSize)
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": items, "total": total, "page": page, "page_size": pageSize})
}

func (h Handlers) GetCall(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) CallStatus(c *gin.Context) {
	if _, ok := h.ownedCall(c); !ok {
		return
	}
	st, err := h.Calls.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) CallTranscription(c *gin.Context) {
	if _, ok := h.ownedCall(c); !ok {
		return
	}
	tr, err := h.Store.GetTranscriptionByCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (h Handlers) CallSummary(c *gin.Context) {
	if _, ok := h.ownedCall(c); !ok {
		return
	}
	sum, err := h.Store.LatestSummaryByCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryResponse{
		Summary:            sum,
		ParticipantsLegacy: calls.LegacyParticipants(sum.Participants),
	})
}

// summaryResponse adds the flat participant strings older clients read.
type summaryResponse struct {
	calls.Summary
	ParticipantsLegacy []string `json:"participants_legacy"`
}

type reprocessRequest struct {
	Language string `json:"language"`
}

func (h Handlers) ReprocessCall(c *gin.Context) {
	if _, ok := h.ownedCall(c); !ok {
		return
	}
	var req reprocessRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	call, err := h.Calls.Reprocess(c.Request.Context(), c.Param("id"), req.Language)
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) DeleteCall(c *gin.Context) {
	if _, ok := h.ownedCall(c); !ok {
		return
	}
	if err := h.Calls.Delete(c.Request.Context(), c.Param("id")); err != nil {
		errStatus(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) Stats(c *gin.Context) {
	n, err := h.Calls.CallsThisMonth(c.Request.Context(), auth.GinUserID(c))
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls_this_month": n})
}

/* ===================== uploads ===================== */

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func (h Handlers) PresignUpload(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Calls.PresignUpload(c.Request.Context(), req.Filename, req.ContentType, req.Size)
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type registerUploadRequest struct {
	StorageKey       string `json:"storage_key"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	Size             int64  `json:"size"`
	Language         string `json:"language"`
	Source           string `json:"source"`
}

// RegisterUpload records an object written through a presigned URL and starts
// processing. Repeating the request for the same key returns the existing
// call with 200 instead of 201.
func (h Handlers) RegisterUpload(c *gin.Context) {
	var req registerUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	source := calls.UploadSource(req.Source)
	if source == "" {
		source = calls.UploadSourcePresignedClient
	}
	call, created, err := h.Calls.RegisterUpload(c.Request.Context(), calls.RegisterInput{
		StorageKey:       req.StorageKey,
		OriginalFilename: req.OriginalFilename,
		ContentType:      req.ContentType,
		Size:             req.Size,
		UserID:           auth.GinUserID(c),
		Language:         req.Language,
		Source:           source,
	})
	if err != nil {
		errStatus(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, call)
}

/* ===================== notifications ===================== */

func (h Handlers) ListNotifications(c *gin.Context) {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 20)

	items, total, err := h.Store.ListNotificationsByUser(c.Request.Context(), auth.GinUserID(c), page, pageSize)
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "total": total, "page": page, "page_size": pageSize})
}

func (h Handlers) RetryNotification(c *gin.Context) {
	n, err := h.Notify.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

/* ===================== settings ===================== */

func (h Handlers) GetSettings(c *gin.Context) {
	s, err := settings.Resolve(c.Request.Context(), h.Settings, auth.GinUserID(c))
	if err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) UpdateSettings(c *gin.Context) {
	var s settings.UserSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s.UserID = auth.GinUserID(c)
	if err := h.Settings.Upsert(c.Request.Context(), s); err != nil {
		errStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
