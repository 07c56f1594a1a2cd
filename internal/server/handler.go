package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"radiochat/internal/auth"
	"radiochat/internal/chat"
	"radiochat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	msgSvc  *service.MessageService
	chat    *chat.Service
}

func NewHandler(userSvc *service.UserService, msgSvc *service.MessageService, chatSvc *chat.Service) *Handler {
	return &Handler{userSvc: userSvc, msgSvc: msgSvc, chat: chatSvc}
}

// authStatus 把认证相关错误映射为 HTTP 状态码，未知错误为 500。
func authStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrMissingCredential),
		errors.Is(err, service.ErrInvalidKey),
		errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrChallengeExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) authFailed(c *gin.Context, op string, err error) {
	code := authStatus(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("auth request failed")
		c.JSON(code, gin.H{"error": op + " failed"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	result, err := h.userSvc.Register(c.Request.Context(), req)
	if err != nil {
		h.authFailed(c, "register", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Challenge 为公钥用户生成一次性挑战。
func (h *Handler) Challenge(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	challenge, err := h.userSvc.Challenge(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		h.authFailed(c, "challenge", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": challenge})
}

// Verify 校验挑战签名并签发 token。
func (h *Handler) Verify(c *gin.Context) {
	var req struct {
		Username  string `json:"username"`
		Signature string `json:"signature"`
		PublicKey string `json:"publicKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Verify(c.Request.Context(), strings.TrimSpace(req.Username), req.Signature, req.PublicKey)
	if err != nil {
		h.authFailed(c, "verify", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login 处理密码登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.authFailed(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListRooms 返回与 websocket roomsList 相同结构的房间列表。
func (h *Handler) ListRooms(c *gin.Context) {
	list, err := h.chat.RoomsFor(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListMessages 按 before 游标分页返回房间消息。
func (h *Handler) ListMessages(c *gin.Context) {
	roomID := c.Param("id")
	limit := 0
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = v
	}
	var beforeID uint64
	if s := c.Query("before"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		beforeID = v
	}
	page, err := h.msgSvc.ListByRoom(c.Request.Context(), auth.GetUserID(c), roomID, beforeID, limit)
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("room_id", roomID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
	default:
		c.JSON(http.StatusOK, page)
	}
}
