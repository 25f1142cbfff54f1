package roomhandler

type CreateRoomBody struct {
	Name     string `json:"name"     binding:"required,max=100" example:"Friday movie"`
	VideoURL string `json:"videoUrl" binding:"required,url"     example:"https://www.youtube.com/watch?v=dQw4w9WgXcQ"`
	IsLocked bool   `json:"isLocked"                            example:"false"`
} // @name CreateRoomRequest

type UpdateRoomBody struct {
	Name     *string `json:"name"     binding:"omitempty,max=100"`
	VideoURL *string `json:"videoUrl"` // checked as a URL only when non-empty
	IsLocked *bool   `json:"isLocked"`
} // @name UpdateRoomRequest

type ListMessagesQuery struct {
	Limit int `form:"limit,default=100" binding:"gte=0,lte=100"`
} // @name ListMessagesQuery

type MessageResponse struct {
	Message string `json:"message"`
} // @name MessageResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
