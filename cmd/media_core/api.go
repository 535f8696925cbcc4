package main

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/arzzra/media_core/pkg/manager_media"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/gin-gonic/gin"
	"github.com/pion/sdp/v3"
)

type createSessionRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind" binding:"required"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	RTPPort   int    `json:"rtp_port"`
	RTCPPort  int    `json:"rtcp_port"`
	Codec     string `json:"codec,omitempty"`
	Fmtp      string `json:"fmtp,omitempty"`
	Ptime     int    `json:"ptime,omitempty"`
	Direction string `json:"direction,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	CreatedAt string `json:"created_at"`
}

// controlAPI - HTTP интерфейс управления сессиями
type controlAPI struct {
	svc     *service
	localIP string
}

func newRouter(svc *service, localIP string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := &controlAPI{svc: svc, localIP: localIP}

	engine.GET("/healthz/", api.healthCheck)

	v1 := engine.Group("/v1")
	v1.GET("/stats", api.stats)
	v1.GET("/codecs/:kind", api.codecs)
	v1.GET("/sessions", api.listSessions)
	v1.POST("/sessions", api.createSession)
	v1.POST("/sessions/accept", api.acceptOffer)
	v1.GET("/sessions/:id", api.getSession)
	v1.POST("/sessions/:id/answer", api.applyAnswer)
	v1.POST("/sessions/:id/rebind", api.rebind)
	v1.DELETE("/sessions/:id", api.closeSession)
	return engine
}

func (a *controlAPI) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *controlAPI) stats(c *gin.Context) {
	st := a.svc.manager.Stats()
	c.JSON(http.StatusOK, gin.H{
		"sessions":  st.Sessions,
		"active":    st.Active,
		"range":     st.Pool.Range.String(),
		"allocated": st.Pool.Allocated,
		"cursor":    st.Pool.Cursor,
	})
}

func (a *controlAPI) codecs(c *gin.Context) {
	kind, err := codec.ParseMediaKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, codecRows(a.svc.registry, kind))
}

func (a *controlAPI) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": a.svc.manager.ListSessions()})
}

func (a *controlAPI) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := codec.ParseMediaKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := a.svc.manager.CreateSession(c.Request.Context(), req.ID, kind)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.respond(c, http.StatusCreated, info)
}

// acceptOffer принимает SDP offer в теле запроса и возвращает SDP answer.
// Используется первая медиа строка offer.
func (a *controlAPI) acceptOffer(c *gin.Context) {
	md, ok := a.readMedia(c, "")
	if !ok {
		return
	}
	info, err := a.svc.manager.AcceptOffer(c.Request.Context(), c.Query("id"), md)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.respond(c, http.StatusCreated, info)
}

func (a *controlAPI) getSession(c *gin.Context) {
	info, err := a.svc.manager.GetSession(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.respond(c, http.StatusOK, info)
}

func (a *controlAPI) applyAnswer(c *gin.Context) {
	id := c.Param("id")
	current, err := a.svc.manager.GetSession(id)
	if err != nil {
		a.fail(c, err)
		return
	}
	md, ok := a.readMedia(c, string(current.Kind))
	if !ok {
		return
	}
	info, err := a.svc.manager.ApplyAnswer(c.Request.Context(), id, md)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.respond(c, http.StatusOK, info)
}

func (a *controlAPI) rebind(c *gin.Context) {
	info, err := a.svc.manager.Rebind(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.respond(c, http.StatusOK, info)
}

func (a *controlAPI) closeSession(c *gin.Context) {
	if err := a.svc.manager.CloseSession(c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// readMedia читает SDP из тела запроса. kind == "" - первая медиа строка.
func (a *controlAPI) readMedia(c *gin.Context, kind string) (*sdp.MediaDescription, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	desc, err := media_sdp.ParseSessionDescription(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if kind == "" {
		if len(desc.MediaDescriptions) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "SDP не содержит медиа строк"})
			return nil, false
		}
		return desc.MediaDescriptions[0], true
	}
	md, err := media_sdp.MediaOf(desc, kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return md, true
}

func (a *controlAPI) respond(c *gin.Context, status int, info *manager_media.SessionInfo) {
	resp := sessionResponse{
		ID:        info.SessionID,
		Kind:      string(info.Kind),
		State:     info.State.String(),
		RTPPort:   info.RTPPort,
		RTCPPort:  info.RTCPPort,
		CreatedAt: info.CreatedAt.Format(time.RFC3339),
	}
	if info.Result != nil {
		resp.Codec = info.Result.RTPMap()
		resp.Fmtp = info.Result.Fmtp
		resp.Ptime = info.Result.Ptime
		resp.Direction = string(info.Result.Direction)
	}
	if info.Offer != nil {
		desc, err := media_sdp.NewSessionDescription(media_sdp.SessionParams{Address: a.localIP}, info.Offer)
		if err == nil {
			raw, err := media_sdp.MarshalSessionDescription(desc)
			if err == nil {
				resp.SDP = string(raw)
			}
		}
	}
	c.JSON(status, resp)
}

// fail отображает ошибки менеджера в HTTP статусы
func (a *controlAPI) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, manager_media.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, manager_media.ErrSessionExists),
		errors.Is(err, media_sdp.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, port_pool.ErrPoolExhausted),
		errors.Is(err, manager_media.ErrManagerClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, media_sdp.ErrNoCommonCodec),
		errors.Is(err, media_sdp.ErrMediaRejected),
		errors.As(err, new(*media_sdp.SDPError)):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
