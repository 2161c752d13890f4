package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"memochain/internal/domain"
	"memochain/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	defaultBlockPage = 50
	maxBlockPage     = 500
	formSlackBytes   = 1 << 20
)

var errPayloadTooLarge = errors.New("payload too large")

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// documentForm carries the metadata accepted by both the record and verify
// endpoints, as multipart form fields or as JSON.
type documentForm struct {
	Hash        string `json:"hash" form:"hash"`
	StudentID   string `json:"student_id" form:"student_id"`
	StudentName string `json:"student_name" form:"student_name"`
	College     string `json:"college" form:"college"`
	Uploader    string `json:"uploader" form:"uploader"`
	Filename    string `json:"filename" form:"filename"`
}

type uploadedFile struct {
	Content   []byte
	Filename  string
	MediaType string
}

type blockPageResponse struct {
	Blocks []domain.Block `json:"blocks"`
	From   int64          `json:"from"`
	Limit  int            `json:"limit"`
	Total  int64          `json:"total"`
}

type rebuildResponse struct {
	Items int64             `json:"items"`
	Index domain.IndexStats `json:"index"`
}

func (s *Server) handleRecordMemo(c *gin.Context) {
	if !s.enforceRateLimit(c, routeMemosRecord) {
		return
	}
	if s.recordUC == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "recording not configured")
		return
	}
	form, file, err := s.readDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}

	req := usecase.UploadRequest{
		Filename:    form.Filename,
		StudentID:   form.StudentID,
		StudentName: form.StudentName,
		College:     form.College,
		Uploader:    form.Uploader,
	}
	switch {
	case file != nil:
		req.Document = usecase.ByFile{Content: file.Content}
		req.MediaType = file.MediaType
		if req.Filename == "" {
			req.Filename = file.Filename
		}
	case strings.TrimSpace(form.Hash) != "":
		req.Document = usecase.ByHash{Hash: form.Hash}
	default:
		writeError(c, fmt.Errorf("%w: a file or hash is required", domain.ErrValidation))
		return
	}

	result, err := s.recordUC.Execute(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if result.Status == usecase.UploadStatusExists {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (s *Server) handleVerifyHash(c *gin.Context) {
	if !s.enforceRateLimit(c, routeVerify) {
		return
	}
	if s.reconciler == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "verification not configured")
		return
	}
	verdict, err := s.reconciler.Verify(c.Request.Context(), usecase.HashQuery{Hash: c.Param("hash")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.enforceRateLimit(c, routeVerify) {
		return
	}
	if s.reconciler == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "verification not configured")
		return
	}
	form, file, err := s.readDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}
	query, err := buildQuery(form, file)
	if err != nil {
		writeError(c, err)
		return
	}
	verdict, err := s.reconciler.Verify(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

func (s *Server) handleStudent(c *gin.Context) {
	if !s.enforceRateLimit(c, routeStudentsRead) {
		return
	}
	if s.studentUC == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "student lookup not configured")
		return
	}
	result, err := s.studentUC.Execute(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLedgerStats(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLedgerRead) {
		return
	}
	if s.statsUC == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger not configured")
		return
	}
	result, err := s.statsUC.Execute(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListBlocks(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLedgerRead) {
		return
	}
	if s.ledger == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger not configured")
		return
	}
	from, err := parseNonNegative(c.Query("from"), 0)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid from")
		return
	}
	limit, err := parseNonNegative(c.Query("limit"), defaultBlockPage)
	if err != nil || limit == 0 {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid limit")
		return
	}
	if limit > maxBlockPage {
		limit = maxBlockPage
	}
	blocks, total, err := s.ledger.Range(c.Request.Context(), from, int(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, blockPageResponse{
		Blocks: blocks,
		From:   from,
		Limit:  int(limit),
		Total:  total,
	})
}

func (s *Server) handleGetBlock(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLedgerRead) {
		return
	}
	if s.ledger == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger not configured")
		return
	}
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil || index < 0 {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid block index")
		return
	}
	block, err := s.ledger.GetBlock(c.Request.Context(), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}

func (s *Server) handleInclusionProof(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLedgerRead) {
		return
	}
	if s.ledger == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger not configured")
		return
	}
	proof, err := s.ledger.InclusionProof(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proof)
}

func (s *Server) handleAdminValidate(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.ledger == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger not configured")
		return
	}
	report, err := s.ledger.Validate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleAdminExport(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.exportUC == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "export not configured")
		return
	}
	export, err := s.exportUC.Execute(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, export)
}

func (s *Server) handleAdminRebuildIndex(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.ledger == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger not configured")
		return
	}
	items, err := s.ledger.RebuildIndex(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := rebuildResponse{Items: items}
	if s.statsUC != nil && s.statsUC.Ledger != nil {
		resp.Index = s.statsUC.Ledger.IndexStats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/v1/ledger/index:rebuild" {
		s.handleAdminRebuildIndex(c)
		return
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

// readDocument decodes either a multipart form with an optional "file" part
// or a JSON body. The file is nil when none was sent.
func (s *Server) readDocument(c *gin.Context) (documentForm, *uploadedFile, error) {
	var form documentForm
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+formSlackBytes)

	if c.ContentType() != binding.MIMEMultipartPOSTForm {
		if err := c.ShouldBindJSON(&form); err != nil {
			if isTooLarge(err) {
				return form, nil, errPayloadTooLarge
			}
			return form, nil, fmt.Errorf("%w: invalid JSON body", domain.ErrValidation)
		}
		return form, nil, nil
	}

	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		if isTooLarge(err) {
			return form, nil, errPayloadTooLarge
		}
		return form, nil, fmt.Errorf("%w: invalid form: %v", domain.ErrValidation, err)
	}
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil, nil
	}
	if err != nil {
		if isTooLarge(err) {
			return form, nil, errPayloadTooLarge
		}
		return form, nil, fmt.Errorf("%w: invalid file part: %v", domain.ErrValidation, err)
	}
	file, err := s.readFilePart(header)
	if err != nil {
		return form, nil, err
	}
	return form, file, nil
}

func (s *Server) readFilePart(header *multipart.FileHeader) (*uploadedFile, error) {
	if header.Size > s.maxUploadBytes {
		return nil, errPayloadTooLarge
	}
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > s.maxUploadBytes {
		return nil, errPayloadTooLarge
	}
	return &uploadedFile{
		Content:   content,
		Filename:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
	}, nil
}

// buildQuery picks the reconciliation shape from what the caller sent: a
// document, a claim, or both.
func buildQuery(form documentForm, file *uploadedFile) (usecase.Query, error) {
	var doc usecase.DocumentRef
	switch {
	case file != nil:
		doc = usecase.ByFile{Content: file.Content}
	case strings.TrimSpace(form.Hash) != "":
		doc = usecase.ByHash{Hash: form.Hash}
	}
	claim := usecase.Claim{
		StudentID: form.StudentID,
		Name:      form.StudentName,
		College:   form.College,
	}
	hasClaim := strings.TrimSpace(claim.StudentID) != "" ||
		strings.TrimSpace(claim.Name) != "" ||
		strings.TrimSpace(claim.College) != ""

	switch {
	case doc != nil && hasClaim:
		return usecase.DocumentClaimQuery{Document: doc, Claim: claim}, nil
	case file != nil:
		return usecase.FileQuery{Content: file.Content}, nil
	case doc != nil:
		return usecase.HashQuery{Hash: form.Hash}, nil
	case hasClaim:
		return usecase.StudentQuery{Claim: claim}, nil
	default:
		return nil, fmt.Errorf("%w: a file, hash or student_id is required", domain.ErrValidation)
	}
}

func parseNonNegative(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid value")
	}
	return v, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, errPayloadTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	case errors.Is(err, domain.ErrInvalidHash):
		status, code = http.StatusBadRequest, "INVALID_HASH"
	case errors.Is(err, domain.ErrPolicyDenied):
		status, code = http.StatusBadRequest, "POLICY_DENIED"
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyRecorded):
		status, code = http.StatusConflict, "ALREADY_RECORDED"
	case errors.Is(err, domain.ErrMiningTimeout):
		status, code = http.StatusServiceUnavailable, "MINING_TIMEOUT"
		c.Header("Retry-After", "1")
	case errors.Is(err, domain.ErrIntegrity):
		status, code = http.StatusInternalServerError, "INTEGRITY_FAILURE"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	}
	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Server-side detail stays in the access log.
		_ = c.Error(err)
		message = serverErrorMessages[code]
	}
	writeErrorCode(c, status, code, message)
}

var serverErrorMessages = map[string]string{
	"INTERNAL":          "internal error",
	"INTEGRITY_FAILURE": "ledger integrity check failed",
	"MINING_TIMEOUT":    "block mining timed out, retry later",
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
