package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v5"

	"Gena/ai"
	"Gena/chat"
	"Gena/session"
	"Gena/storage"
)

var allowedAudioTypes = map[string]bool{
	"audio/wav":  true,
	"audio/mpeg": true,
	"audio/ogg":  true,
	"audio/webm": true,
}

type createConversationRequest struct {
	UserID string `json:"user_id" form:"user_id"`
}

type cacheInfoResponse struct {
	Name        string `json:"name"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
	CreateTime  string `json:"create_time"`
	UpdateTime  string `json:"update_time"`
	ExpireTime  string `json:"expire_time"`
}

func (s *Server) health(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Health check successful!",
	})
}

func (s *Server) createConversation(c *echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}

	conv, err := s.chat.StartConversation(c.Request().Context(), req.UserID)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) sendMessage(c *echo.Context) error {
	conversationId := c.Param("id")
	userId := c.FormValue("user_id")
	if userId == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}

	ctx := c.Request().Context()

	if text := c.FormValue("message"); text != "" {
		msg, err := s.chat.SendText(ctx, conversationId, userId, text)
		if err != nil {
			return s.httpError(err)
		}
		return c.JSON(http.StatusOK, msg)
	}

	file, err := c.FormFile("message")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "message required (text field or audio file)")
	}
	mimeType := file.Header.Get("Content-Type")
	if !allowedAudioTypes[mimeType] {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid audio file type")
	}
	data, err := readUpload(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading audio upload")
	}

	msg, err := s.chat.SendAudio(ctx, conversationId, userId, data, mimeType, file.Filename)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) listConversations(c *echo.Context) error {
	conversations, err := s.store.ListByUser(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, conversations)
}

func (s *Server) conversationHistory(c *echo.Context) error {
	userId := c.QueryParam("user_id")
	if userId == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	conv, err := s.store.GetForUser(c.Request().Context(), c.Param("id"), userId)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, conv.Messages)
}

func (s *Server) conversationTokenStats(c *echo.Context) error {
	userId := c.QueryParam("user_id")
	if userId == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	stats, err := s.store.TokenStats(c.Request().Context(), c.Param("id"), userId)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) activeSessions(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.sessions.Active())
}

func (s *Server) cacheInfo(c *echo.Context) error {
	cc := s.gemini.Cache().Current()
	if cc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no cached content found")
	}
	return c.JSON(http.StatusOK, toCacheInfo(cc))
}

func (s *Server) cacheList(c *echo.Context) error {
	caches, err := s.gemini.ListCaches(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	if len(caches) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no cached contents found")
	}
	result := make([]cacheInfoResponse, 0, len(caches))
	for i := range caches {
		result = append(result, toCacheInfo(&caches[i]))
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) cacheDeleteAll(c *echo.Context) error {
	if err := s.gemini.DeleteAllCaches(c.Request().Context()); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// httpError maps internal failures to caller-visible rejections with a
// distinguishing status.
func (s *Server) httpError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrQuotaExceeded):
		return echo.NewHTTPError(http.StatusTooManyRequests, "daily request quota exceeded")
	case errors.Is(err, session.ErrSessionExists):
		return echo.NewHTTPError(http.StatusConflict, "user already has an active chat session")
	case errors.Is(err, ai.ErrCacheNotResolved):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "context cache is not initialized")
	case ai.IsRemote(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func toCacheInfo(cc *ai.CachedContent) cacheInfoResponse {
	return cacheInfoResponse{
		Name:        cc.Name,
		Model:       cc.Model,
		DisplayName: cc.DisplayName,
		CreateTime:  cc.CreateTime,
		UpdateTime:  cc.UpdateTime,
		ExpireTime:  cc.ExpireTime,
	}
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}
