package roomhandler

import (
	"context"
	"errors"
	"net/http"

	"watchpartygo/internal/http/authmw"
	"watchpartygo/internal/livesync"
	"watchpartygo/internal/services/room"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// LiveReader serves the mirrored real-time state of a room.
type LiveReader interface {
	Get(ctx context.Context, roomID string) (*livesync.LiveRoom, error)
}

type Handler struct {
	svc  room.IRoomService
	live LiveReader
}

func New(svc room.IRoomService, live LiveReader) *Handler {
	return &Handler{svc: svc, live: live}
}

// Register expects r to already require authentication.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/rooms", h.create)
	r.GET("/rooms/active", h.active)
	r.GET("/rooms/recent", h.recent)
	r.GET("/rooms/:id", h.info)
	r.GET("/rooms/:id/live", h.liveState)
	r.POST("/rooms/:id/join", h.join)
	r.POST("/rooms/:id/leave", h.leave)
	r.PUT("/rooms/:id", h.update)
	r.POST("/rooms/:id/remove/:userId", h.remove)
	r.GET("/messages/:roomId", h.messages)
}

// @Summary		Create a room
// @Description	Creates a room with the caller as host and first member.
// @Tags			Rooms
// @Security		BearerAuth
// @Param			body	body		CreateRoomBody	true	"Room payload"
// @Success		201		{object}	room.RoomDTO
// @Failure		400		{object}	ErrorResponse
// @Router			/rooms [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateRoomBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	dto, err := h.svc.CreateRoom(ginCtx.Request.Context(), authmw.Identity(ginCtx),
		body.Name, body.VideoURL, body.IsLocked)
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, dto)
}

// @Summary		List public rooms
// @Description	Returns every unlocked room, newest first.
// @Tags			Rooms
// @Security		BearerAuth
// @Success		200	{array}	room.RoomDTO
// @Router			/rooms/active [get]
func (h *Handler) active(ginCtx *gin.Context) {
	out, err := h.svc.ListActive(ginCtx.Request.Context())
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		List recent rooms
// @Description	Returns up to 10 rooms the caller belongs to.
// @Tags			Rooms
// @Security		BearerAuth
// @Success		200	{array}	room.RoomDTO
// @Router			/rooms/recent [get]
func (h *Handler) recent(ginCtx *gin.Context) {
	out, err := h.svc.ListRecent(ginCtx.Request.Context(), authmw.Identity(ginCtx).UserID, 10)
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		Get room details
// @Tags			Rooms
// @Security		BearerAuth
// @Param			id	path		string	true	"Room ID"
// @Success		200	{object}	room.RoomDTO
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) info(ginCtx *gin.Context) {
	dto, err := h.svc.GetRoom(ginCtx.Request.Context(), ginCtx.Param("id"), authmw.Identity(ginCtx).UserID)
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, dto)
}

// @Summary		Get live playback state
// @Description	Returns the last mirrored real-time state. It may lag the live room.
// @Tags			Rooms
// @Security		BearerAuth
// @Param			id	path		string	true	"Room ID"
// @Success		200	{object}	livesync.LiveRoom
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/live [get]
func (h *Handler) liveState(ginCtx *gin.Context) {
	live, err := h.live.Get(ginCtx.Request.Context(), ginCtx.Param("id"))
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, live)
}

// @Summary		Join a room
// @Tags			Rooms
// @Security		BearerAuth
// @Param			id	path		string	true	"Room ID"
// @Success		200	{object}	MessageResponse
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/join [post]
func (h *Handler) join(ginCtx *gin.Context) {
	if err := h.svc.JoinRoom(ginCtx.Request.Context(), ginCtx.Param("id"), authmw.Identity(ginCtx)); err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, MessageResponse{Message: "Joined room successfully"})
}

// @Summary		Leave a room
// @Description	Deletes the room when the last member leaves; a leaving host hands over.
// @Tags			Rooms
// @Security		BearerAuth
// @Param			id	path		string	true	"Room ID"
// @Success		200	{object}	MessageResponse
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/leave [post]
func (h *Handler) leave(ginCtx *gin.Context) {
	deleted, err := h.svc.LeaveRoom(ginCtx.Request.Context(), ginCtx.Param("id"), authmw.Identity(ginCtx).UserID)
	if err != nil {
		fail(ginCtx, err)
		return
	}
	if deleted {
		ginCtx.JSON(http.StatusOK, MessageResponse{Message: "Room deleted"})
		return
	}
	ginCtx.JSON(http.StatusOK, MessageResponse{Message: "Left room successfully"})
}

// @Summary		Update a room
// @Description	Host only. Omitted or empty fields are left unchanged.
// @Tags			Rooms
// @Security		BearerAuth
// @Param			id		path		string			true	"Room ID"
// @Param			body	body		UpdateRoomBody	true	"Fields to change"
// @Success		200		{object}	room.RoomDTO
// @Failure		403		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Router			/rooms/{id} [put]
func (h *Handler) update(ginCtx *gin.Context) {
	var body UpdateRoomBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	patch := room.RoomPatch{
		Name:     nonEmpty(body.Name),
		VideoURL: nonEmpty(body.VideoURL),
		IsLocked: body.IsLocked,
	}
	if patch.VideoURL != nil {
		if err := validate.Var(*patch.VideoURL, "url"); err != nil {
			ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: "videoUrl must be a valid URL"})
			return
		}
	}
	dto, err := h.svc.UpdateRoom(ginCtx.Request.Context(), ginCtx.Param("id"), authmw.Identity(ginCtx).UserID, patch)
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, dto)
}

// @Summary		Remove a member
// @Tags			Rooms
// @Security		BearerAuth
// @Param			id		path		string	true	"Room ID"
// @Param			userId	path		string	true	"Member to remove"
// @Success		200		{object}	MessageResponse
// @Failure		403		{object}	ErrorResponse
// @Failure		409		{object}	ErrorResponse
// @Router			/rooms/{id}/remove/{userId} [post]
func (h *Handler) remove(ginCtx *gin.Context) {
	err := h.svc.RemoveMember(ginCtx.Request.Context(),
		ginCtx.Param("id"), authmw.Identity(ginCtx).UserID, ginCtx.Param("userId"))
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, MessageResponse{Message: "User removed from room"})
}

// @Summary		Chat history
// @Description	Newest persisted messages first. Live chat is not persisted.
// @Tags			Messages
// @Security		BearerAuth
// @Param			roomId	path	string	true	"Room ID"
// @Param			limit	query	int		false	"Max results (0‑100)"	minimum(0)	maximum(100)	default(100)
// @Success		200		{array}	room.MessageDTO
// @Router			/messages/{roomId} [get]
func (h *Handler) messages(ginCtx *gin.Context) {
	var q ListMessagesQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.svc.ListMessages(ginCtx.Request.Context(), ginCtx.Param("roomId"), q.Limit)
	if err != nil {
		fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

func fail(ginCtx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, livesync.ErrNotLive):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrRoomLocked), errors.Is(err, room.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, room.ErrRemoveHost):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("http.room_handler", zap.String("path", ginCtx.FullPath()), zap.Error(err))
		ginCtx.JSON(status, ErrorResponse{Error: "server error"})
		return
	}
	ginCtx.JSON(status, ErrorResponse{Error: err.Error()})
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
