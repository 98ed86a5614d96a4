package transport

// CreateStreamRequest is the body of POST /streams. The name becomes the stream id.
type CreateStreamRequest struct {
	Name string `json:"name" binding:"required,streamid"`
}

type StreamURI struct {
	StreamID string `uri:"id" binding:"required,streamid"`
}

type JoinStreamRequest struct {
	UserID string `json:"userId" binding:"required,identity"`
}

type StreamIDResponse struct {
	StreamID string `json:"streamId"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
