// Package httpapi exposes the object store over HTTP.
//
// Every response body is a tagged result: {"success":true,"data":...} or
// {"success":false,"error":{"code":...,"message":...}}. Callers identify
// themselves with a bearer JWT whose sub claim is the user id.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bitfsorg/ledgerfs-go/logging"
	"github.com/bitfsorg/ledgerfs-go/metrics"
	"github.com/bitfsorg/ledgerfs-go/objectstore"
	"github.com/bitfsorg/ledgerfs-go/verify"
)

// CorrelationHeader carries the request correlation id.
const CorrelationHeader = "X-Correlation-Id"

// DefaultMaxUploadBytes bounds request bodies carrying file content.
const DefaultMaxUploadBytes = 32 << 20

const (
	ctxUserID        = "ledgerfs.user_id"
	ctxCorrelationID = "ledgerfs.correlation_id"
)

// Config wires a Server.
type Config struct {
	Manager  *objectstore.Manager
	Verifier *verify.Verifier
	// JWTSecret, when set, is the HMAC key bearer tokens must be signed with.
	JWTSecret      string
	MaxUploadBytes int64
	Logger         log.FieldLogger
	Metrics        *metrics.Metrics
}

// Server is the HTTP boundary of the object store.
type Server struct {
	Engine *gin.Engine

	mgr       *objectstore.Manager
	verifier  *verify.Verifier
	secret    string
	maxUpload int64
	log       log.FieldLogger
	metrics   *metrics.Metrics
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil || cfg.Verifier == nil {
		return nil, errors.New("httpapi: manager and verifier are required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		Engine:    gin.New(),
		mgr:       cfg.Manager,
		verifier:  cfg.Verifier,
		secret:    cfg.JWTSecret,
		maxUpload: cfg.MaxUploadBytes,
		log:       logging.OrDiscard(cfg.Logger),
		metrics:   cfg.Metrics,
	}
	s.Engine.Use(s.correlate, s.recoverPanic)
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.Engine.GET("/health", s.health)
	s.Engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.Engine.Group("/", s.authenticate)
	api.POST("/folders", s.createFolder)
	api.GET("/folders", s.listRoot)
	api.GET("/folders/:id", s.listFolder)
	api.PUT("/folders/:id", s.updateFolder)
	api.DELETE("/folders/:id", s.deleteFolder)
	api.POST("/files/upload", s.limitBody, s.uploadFile)
	api.GET("/files/:id", s.readFile)
	api.PUT("/files/:id", s.limitBody, s.updateFile)
	api.DELETE("/files/:id", s.deleteFile)
	api.GET("/metadata/:id", s.readMetadata)
	api.GET("/verify/:id", s.verify)

	s.Engine.NoRoute(func(c *gin.Context) {
		s.fail(c, http.StatusNotFound, "not_found", "route not found")
	})
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.Engine }

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpapi: shutdown: %w", err)
		}
		return nil
	}
}

// correlate assigns a correlation id, logs the request and counts it.
func (s *Server) correlate(c *gin.Context) {
	id := c.GetHeader(CorrelationHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ctxCorrelationID, id)
	c.Header(CorrelationHeader, id)

	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	s.metrics.Request(route, strconv.Itoa(status))
	entry := s.log.WithFields(log.Fields{
		"correlation_id": id,
		"method":         c.Request.Method,
		"route":          route,
		"status":         status,
		"duration":       time.Since(start),
	})
	if user, ok := c.Get(ctxUserID); ok {
		entry = entry.WithField("user_id", user)
	}
	entry.Debug("request")
}

func (s *Server) recoverPanic(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(log.Fields{
				"correlation_id": c.GetString(ctxCorrelationID),
				"panic":          r,
			}).Error("handler panicked")
			s.fail(c, http.StatusInternalServerError, "internal", "internal error")
		}
	}()
	c.Next()
}

func (s *Server) authenticate(c *gin.Context) {
	user, err := subject(c.GetHeader("Authorization"), s.secret)
	if err != nil {
		s.fail(c, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	c.Set(ctxUserID, user)
	c.Next()
}

func (s *Server) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	c.Next()
}

func (s *Server) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, response{Success: true, Data: data})
}

func (s *Server) fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, response{Error: &errorBody{Code: code, Message: message}})
}

// failErr maps err onto a tagged error response.
func (s *Server) failErr(c *gin.Context, err error) {
	status, code := statusOf(err)
	message := err.Error()
	entry := s.log.WithError(err).WithFields(log.Fields{
		"correlation_id": c.GetString(ctxCorrelationID),
		"code":           code,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	} else {
		entry.Debug("request rejected")
	}
	s.fail(c, status, code, message)
}

func (s *Server) user(c *gin.Context) string { return c.GetString(ctxUserID) }

func (s *Server) health(c *gin.Context) {
	s.ok(c, http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.failErr(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	folder, err := s.mgr.CreateFolder(c.Request.Context(), req.Name, s.user(c), req.ParentFolderID)
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusCreated, newFolderDTO(folder))
}

func (s *Server) listRoot(c *gin.Context) {
	s.list(c, "")
}

func (s *Server) listFolder(c *gin.Context) {
	s.list(c, c.Param("id"))
}

func (s *Server) list(c *gin.Context, parentID string) {
	records, err := s.mgr.ListChildren(c.Request.Context(), parentID, s.user(c))
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusOK, newChildDTOs(records))
}

func (s *Server) updateFolder(c *gin.Context) {
	var req updateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.failErr(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	folder, err := s.mgr.UpdateFolder(c.Request.Context(), c.Param("id"), s.user(c), req.Name)
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusOK, newFolderDTO(folder))
}

func (s *Server) deleteFolder(c *gin.Context) {
	s.delete(c, true)
}

func (s *Server) deleteFile(c *gin.Context) {
	s.delete(c, false)
}

// delete removes an object after checking it is of the kind the route names.
func (s *Server) delete(c *gin.Context, folder bool) {
	ctx := c.Request.Context()
	id := c.Param("id")
	obj, err := s.mgr.ReadMetadata(ctx, id)
	if err != nil {
		s.failErr(c, err)
		return
	}
	switch {
	case folder && !obj.IsFolder():
		s.failErr(c, fmt.Errorf("%w: %s", objectstore.ErrNotFolder, id))
		return
	case !folder && obj.IsFolder():
		s.failErr(c, fmt.Errorf("%w: %s", objectstore.ErrNotFile, id))
		return
	}
	if err := s.mgr.DeleteObject(ctx, id, s.user(c)); err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusOK, gin.H{"objectId": id, "deleted": true})
}

// readContent reads the "file" part of a multipart request.
func (s *Server) readContent(c *gin.Context) ([]byte, string, string, error) {
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", "", fmt.Errorf("%w: upload exceeds %d bytes", errBadRequest, s.maxUpload)
		}
		return nil, "", "", fmt.Errorf("%w: missing file part: %v", errBadRequest, err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", "", fmt.Errorf("httpapi: open upload: %w", err)
	}
	defer func() { _ = f.Close() }()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", fmt.Errorf("httpapi: read upload: %w", err)
	}
	return content, header.Filename, header.Header.Get("Content-Type"), nil
}

func (s *Server) uploadFile(c *gin.Context) {
	content, filename, partType, err := s.readContent(c)
	if err != nil {
		s.failErr(c, err)
		return
	}
	name := c.PostForm("name")
	if name == "" {
		name = filename
	}
	opts := objectstore.FileOptions{
		ContentType:     c.PostForm("contentType"),
		ContentEncoding: c.PostForm("contentEncoding"),
		Version:         c.PostForm("version"),
	}
	if opts.ContentType == "" {
		opts.ContentType = partType
	}

	file, err := s.mgr.CreateFile(c.Request.Context(), name, content, s.user(c), c.PostForm("parentFolderId"), opts)
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusCreated, newFileDTO(file))
}

func (s *Server) updateFile(c *gin.Context) {
	content, _, _, err := s.readContent(c)
	if err != nil {
		s.failErr(c, err)
		return
	}
	version := c.PostForm("version")
	if version == "" {
		s.failErr(c, fmt.Errorf("%w: version is required", errBadRequest))
		return
	}
	file, err := s.mgr.UpdateFile(c.Request.Context(), c.Param("id"), s.user(c), content, version)
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusOK, newFileDTO(file))
}

// readFile returns the file with its content. With ?download=1 the raw
// bytes are written instead of the tagged result.
func (s *Server) readFile(c *gin.Context) {
	obj, err := s.mgr.ReadObject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	if obj.IsFolder() {
		s.failErr(c, fmt.Errorf("%w: %s", objectstore.ErrNotFile, obj.ObjectID))
		return
	}
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		contentType := obj.Metadata.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("X-Content-Sha256", obj.ContentHash)
		c.Data(http.StatusOK, contentType, obj.Content)
		return
	}
	dto := fileContentDTO{fileDTO: newFileDTO(obj.File()), Content: obj.Content}
	if dto.Content == nil {
		dto.Content = []byte{}
	}
	s.ok(c, http.StatusOK, dto)
}

func (s *Server) readMetadata(c *gin.Context) {
	obj, err := s.mgr.ReadMetadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusOK, metadataDTO{
		ObjectID:    obj.ObjectID,
		Metadata:    obj.Metadata,
		ContentHash: obj.ContentHash,
		Storage:     obj.Storage,
		Timestamp:   obj.Timestamp,
	})
}

func (s *Server) verify(c *gin.Context) {
	res, err := s.verifier.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.ok(c, http.StatusOK, res)
}
