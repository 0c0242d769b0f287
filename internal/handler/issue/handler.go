package issue

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	sessionModel "github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
	"github.com/accordlabs/accord/backend/internal/store"
	"github.com/accordlabs/accord/backend/pkg/utils"
)

// Handler 议题追踪的HTTP处理器
type Handler struct {
	mediationSvc *mediation.Service
}

// New 创建议题处理器
func New(mediationSvc *mediation.Service) *Handler {
	return &Handler{mediationSvc: mediationSvc}
}

// RegisterRoutes 注册议题相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/issues", h.handleListIssues)
	r.Post("/sessions/{sessionID}/issues", h.handleRaiseIssue)
	r.Patch("/issues/{issueID}", h.handleReGrade)
}

// handleListIssues 列出会话议题
func (h *Handler) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.mediationSvc.ListIssues(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, issues)
}

// handleRaiseIssue 手动提出议题
func (h *Handler) handleRaiseIssue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Label       string `json:"label"`
		Description string `json:"description"`
		RaisedBy    string `json:"raisedBy"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.Label == "" {
		utils.RespondError(w, http.StatusBadRequest, "label is required")
		return
	}
	raisedBy := sessionModel.Sender(payload.RaisedBy)
	if raisedBy == "" {
		raisedBy = sessionModel.SenderMediator
	}
	if !sessionModel.ValidSender(raisedBy) {
		utils.RespondError(w, http.StatusBadRequest, "unknown raisedBy")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.mediationSvc.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	issue, err := h.mediationSvc.RaiseIssue(r.Context(), sessionID, payload.Label, payload.Description, raisedBy)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, issue)
}

// handleReGrade 重新评估议题状态
func (h *Handler) handleReGrade(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status    string `json:"status"`
		Rationale string `json:"rationale"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}
	status := sessionModel.IssueStatus(payload.Status)
	if !sessionModel.ValidIssueStatus(status) {
		utils.RespondError(w, http.StatusBadRequest, "unknown issue status")
		return
	}

	issue, err := h.mediationSvc.ReGradeIssue(r.Context(), chi.URLParam(r, "issueID"), status, payload.Rationale)
	if err != nil {
		if errors.Is(err, store.ErrIssueNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, issue)
}
