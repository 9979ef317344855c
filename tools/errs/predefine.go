package errs

// 错误码分段：
// 1xxx 鉴权；2xxx 协议/帧；3xxx 限流；4xxx 存储
var (
	ErrTokenInvalid = NewCodeError(1001, "token invalid")
	ErrTokenExpired = NewCodeError(1002, "token expired")
	ErrAuthTimeout  = NewCodeError(1003, "auth handshake timeout")
	ErrNotMember    = NewCodeError(1004, "not a member of the room")

	ErrFrameMalformed   = NewCodeError(2001, "malformed frame")
	ErrUnknownFrameType = NewCodeError(2002, "unknown frame type")
	ErrContentEmpty     = NewCodeError(2003, "message content is empty")
	ErrContentTooLong   = NewCodeError(2004, "message content too long")

	ErrRateLimited = NewCodeError(3001, "rate limit exceeded")

	ErrRecordNotFound = NewCodeError(4001, "record not found")
)
