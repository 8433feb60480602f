package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// ScopeMiddleware binds a database connection to the request context.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ============================================================================
// Request/Response Types
// ============================================================================

// UpdateItemRequest for PUT /api/documents/{did}/items/{iid}
type UpdateItemRequest struct {
	Content             string `json:"content"`
	EditorID            int64  `json:"editor_id"`
	ExpectedLockVersion int64  `json:"expected_lock_version"`
}

// UpdateStatusRequest for PUT /api/documents/{did}/status
type UpdateStatusRequest struct {
	Status              models.DocumentStatus `json:"status"`
	ExpectedLockVersion int64                 `json:"expected_lock_version"`
}

// AddSectionRequest for POST /api/documents/{did}/sections
type AddSectionRequest struct {
	StructureSectionID  int64 `json:"structure_section_id"`
	ExpectedLockVersion int64 `json:"expected_lock_version"`
}

// SectionResponse is returned after adding a section instance.
type SectionResponse struct {
	Section     *models.DocumentSection `json:"section"`
	LockVersion int64                   `json:"lock_version"`
}

// LockVersionResponse is returned after removing a section instance.
type LockVersionResponse struct {
	LockVersion int64 `json:"lock_version"`
}

// CreateVersionRequest for POST /api/documents/{did}/versions
type CreateVersionRequest struct {
	CreatedBy int64  `json:"created_by"`
	IsMajor   bool   `json:"is_major"`
	Summary   string `json:"summary"`
}

// ChangeListResponse for GET /api/documents/{did}/changes
type ChangeListResponse struct {
	Changes []models.DocumentChange `json:"changes"`
	Total   int                     `json:"total"`
}

// VersionListResponse for GET /api/documents/{did}/versions
type VersionListResponse struct {
	Versions []models.DocumentVersion `json:"versions"`
	Total    int                      `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// DocumentHandler handles document authoring and completion requests.
type DocumentHandler struct {
	documentService   services.DocumentService
	completionService services.CompletionService
	logger            *zap.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(
	documentService services.DocumentService,
	completionService services.CompletionService,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documentService:   documentService,
		completionService: completionService,
		logger:            logger.Named("document-handler"),
	}
}

// RegisterRoutes registers the document handler's routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/documents"

	mux.HandleFunc("POST "+base, scope(h.Create))
	mux.HandleFunc("GET "+base+"/{did}", scope(h.Get))
	mux.HandleFunc("PUT "+base+"/{did}/status", scope(h.UpdateStatus))
	mux.HandleFunc("PUT "+base+"/{did}/items/{iid}", scope(h.UpdateItem))
	mux.HandleFunc("POST "+base+"/{did}/sections", scope(h.AddSection))
	mux.HandleFunc("DELETE "+base+"/{did}/sections/{sid}", scope(h.RemoveSection))
	mux.HandleFunc("GET "+base+"/{did}/changes", scope(h.ListChanges))
	mux.HandleFunc("GET "+base+"/{did}/versions", scope(h.ListVersions))
	mux.HandleFunc("POST "+base+"/{did}/versions", scope(h.CreateVersion))
	mux.HandleFunc("GET "+base+"/{did}/completion", scope(h.GetCompletion))
	mux.HandleFunc("POST "+base+"/{did}/completion", scope(h.EvaluateCompletion))
}

// Create handles POST /api/documents
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.NewDocument
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	tree, err := h.documentService.CreateDocument(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create document", err,
			zap.Int64("structure_id", req.StructureID),
			zap.Int64("category_id", req.CategoryID),
			zap.Int64("owner_id", req.OwnerID))
		return
	}

	writeData(w, h.logger, http.StatusCreated, tree)
}

// Get handles GET /api/documents/{did}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	tree, err := h.documentService.GetDocument(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get document", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusOK, tree)
}

// UpdateStatus handles PUT /api/documents/{did}/status
func (h *DocumentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	doc, err := h.documentService.TransitionStatus(r.Context(), models.StatusChange{
		DocumentID:          documentID,
		Status:              req.Status,
		ExpectedLockVersion: req.ExpectedLockVersion,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to change document status", err,
			zap.Int64("document_id", documentID),
			zap.String("status", string(req.Status)))
		return
	}

	writeData(w, h.logger, http.StatusOK, doc)
}

// UpdateItem handles PUT /api/documents/{did}/items/{iid}
func (h *DocumentHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}
	itemID, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateItemRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.documentService.UpdateItem(r.Context(), models.ItemEdit{
		DocumentID:          documentID,
		ItemID:              itemID,
		EditorID:            req.EditorID,
		Content:             req.Content,
		ExpectedLockVersion: req.ExpectedLockVersion,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update item", err,
			zap.Int64("document_id", documentID),
			zap.Int64("item_id", itemID))
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// AddSection handles POST /api/documents/{did}/sections
func (h *DocumentHandler) AddSection(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	var req AddSectionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	section, lockVersion, err := h.documentService.AddSectionInstance(r.Context(), documentID, req.StructureSectionID, req.ExpectedLockVersion)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add section instance", err,
			zap.Int64("document_id", documentID),
			zap.Int64("structure_section_id", req.StructureSectionID))
		return
	}

	writeData(w, h.logger, http.StatusCreated, SectionResponse{Section: section, LockVersion: lockVersion})
}

// RemoveSection handles DELETE /api/documents/{did}/sections/{sid}?lock_version=N
func (h *DocumentHandler) RemoveSection(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}
	sectionID, ok := ParseSectionID(w, r, h.logger)
	if !ok {
		return
	}
	expected, ok := parseLockVersion(w, r, h.logger)
	if !ok {
		return
	}

	lockVersion, err := h.documentService.RemoveSectionInstance(r.Context(), documentID, sectionID, expected)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to remove section instance", err,
			zap.Int64("document_id", documentID),
			zap.Int64("section_id", sectionID))
		return
	}

	writeData(w, h.logger, http.StatusOK, LockVersionResponse{LockVersion: lockVersion})
}

// ListChanges handles GET /api/documents/{did}/changes
func (h *DocumentHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}

	changes, err := h.documentService.ListChanges(r.Context(), documentID, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list changes", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusOK, ChangeListResponse{Changes: changes, Total: len(changes)})
}

// ListVersions handles GET /api/documents/{did}/versions
func (h *DocumentHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.documentService.ListVersions(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list versions", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusOK, VersionListResponse{Versions: versions, Total: len(versions)})
}

// CreateVersion handles POST /api/documents/{did}/versions
func (h *DocumentHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateVersionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	version, err := h.documentService.CreateVersion(r.Context(), models.NewVersion{
		DocumentID: documentID,
		CreatedBy:  req.CreatedBy,
		IsMajor:    req.IsMajor,
		Summary:    req.Summary,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create version", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusCreated, version)
}

// GetCompletion handles GET /api/documents/{did}/completion
func (h *DocumentHandler) GetCompletion(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	status, err := h.completionService.GetCompletionStatus(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get completion status", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusOK, status)
}

// EvaluateCompletion handles POST /api/documents/{did}/completion
func (h *DocumentHandler) EvaluateCompletion(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.completionService.EvaluateCompletion(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to evaluate completion", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}
