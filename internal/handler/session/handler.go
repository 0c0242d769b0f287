package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accordlabs/accord/backend/internal/conductor"
	"github.com/accordlabs/accord/backend/internal/lens"
	sessionModel "github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/service/analyzer"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
	"github.com/accordlabs/accord/backend/internal/store"
	"github.com/accordlabs/accord/backend/pkg/utils"
)

// Handler 会话服务的HTTP处理器
type Handler struct {
	mediationSvc *mediation.Service
	conductorSvc *conductor.Service
	analyzerSvc  *analyzer.Service
}

// New 创建会话处理器
func New(mediationSvc *mediation.Service, conductorSvc *conductor.Service, analyzerSvc *analyzer.Service) *Handler {
	return &Handler{
		mediationSvc: mediationSvc,
		conductorSvc: conductorSvc,
		analyzerSvc:  analyzerSvc,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleEndSession)
	r.Get("/sessions/{sessionID}/timer", h.handleTimer)
	r.Post("/sessions/{sessionID}/messages", h.handleSaveMessage)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Post("/sessions/{sessionID}/triggers", h.handleTrigger)
	r.Get("/messages/{messageID}", h.handleGetMessage)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mode           string `json:"mode"`
		ContextMode    string `json:"contextMode"`
		ParticipantA   string `json:"participantA"`
		ParticipantB   string `json:"participantB"`
		TurnDurationMs int64  `json:"turnDurationMs"`
	}

	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	mode := sessionModel.Mode(payload.Mode)
	if mode == "" {
		mode = sessionModel.ModeRemote
	}
	if mode != sessionModel.ModeRemote && mode != sessionModel.ModeInPerson {
		utils.RespondError(w, http.StatusBadRequest, "mode must be remote or in_person")
		return
	}

	ctxMode, err := lens.ParseContextMode(payload.ContextMode)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.mediationSvc.CreateSession(r.Context(), mode, ctxMode,
		payload.ParticipantA, payload.ParticipantB,
		time.Duration(payload.TurnDurationMs)*time.Millisecond)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sess)
}

// handleGetSession 获取会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.mediationSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// handleEndSession 结束会话并停止计时
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.mediationSvc.EndSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	if h.conductorSvc != nil {
		h.conductorSvc.StopTimers(sessionID)
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// handleTimer 查询当前回合的剩余时间
func (h *Handler) handleTimer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.mediationSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	if h.conductorSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "conductor unavailable")
		return
	}
	remaining, progress, ok := h.conductorSvc.TimerSnapshot(sessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"running":     ok,
		"remainingMs": remaining.Milliseconds(),
		"progress":    progress,
	})
}

// handleSaveMessage 保存参与者消息；分析与指挥流程异步推进
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Sender  string `json:"sender"`
		Content string `json:"content"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	msg, err := h.mediationSvc.SaveMessage(r.Context(), sessionID,
		sessionModel.Sender(payload.Sender), payload.Content)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	sess, err := h.mediationSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	var decision *conductor.Decision
	if h.conductorSvc != nil && msg.Sender != sessionModel.SenderMediator {
		decision, err = h.conductorSvc.HandleTrigger(r.Context(), conductor.Trigger{
			Type:      conductor.TriggerMessageSent,
			SessionID: sessionID,
			MessageID: msg.ID,
		})
		// A raced transition or an out-of-phase message keeps the saved
		// message; the conductor just declines to advance.
		if err != nil && !errors.Is(err, mediation.ErrTransitionBlocked) && !errors.Is(err, conductor.ErrWrongPhase) {
			utils.RespondError(w, statusFor(err), err.Error())
			return
		}
	}

	if h.analyzerSvc != nil && h.analyzerSvc.Enabled() && msg.Sender != sessionModel.SenderMediator {
		h.analyzerSvc.AnalyzeAsync(sess, msg)
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]any{
		"message":  msg,
		"decision": decision,
	})
}

// handleListMessages 返回会话的完整记录
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.mediationSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}

// handleGetMessage 按ID获取单条消息（含分析结果）
func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.mediationSvc.GetMessage(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":          msg,
		"analysisInFlight": h.analyzerSvc != nil && h.analyzerSvc.InFlight(msg.ID),
	})
}

// handleTrigger 向指挥器提交一次生命周期触发
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Type      string `json:"type"`
		MessageID string `json:"messageId"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	trigType := conductor.TriggerType(payload.Type)
	if !conductor.ValidTriggerType(trigType) {
		utils.RespondError(w, http.StatusBadRequest, "unknown trigger type")
		return
	}
	if h.conductorSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "conductor unavailable")
		return
	}

	decision, err := h.conductorSvc.HandleTrigger(r.Context(), conductor.Trigger{
		Type:      trigType,
		SessionID: sessionID,
		MessageID: payload.MessageID,
	})
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, decision)
}

// statusFor 将服务层错误映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, store.ErrIssueNotFound):
		return http.StatusNotFound
	case errors.Is(err, mediation.ErrInvalidSender),
		errors.Is(err, mediation.ErrEmptyContent),
		errors.Is(err, conductor.ErrUnknownTrigger):
		return http.StatusBadRequest
	case errors.Is(err, mediation.ErrSessionEnded),
		errors.Is(err, mediation.ErrGoalsAlreadySet),
		errors.Is(err, mediation.ErrTransitionBlocked),
		errors.Is(err, conductor.ErrWrongPhase):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
