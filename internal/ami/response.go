package ami

import "strings"

// Response answers an action.
type Response struct {
	msg *Message
}

// NewResponse wraps a parsed block.
func NewResponse(msg *Message) *Response {
	return &Response{msg: msg}
}

// ActionID returns the id of the action this response answers.
func (r *Response) ActionID() string {
	return r.msg.Get("ActionID")
}

// IsError reports whether the server rejected the action.
func (r *Response) IsError() bool {
	return strings.EqualFold(r.msg.Get("Response"), "Error")
}

// Text returns the human-readable message sent with the response.
func (r *Response) Text() string {
	return r.msg.Get("Message")
}

// Attr returns a response attribute.
func (r *Response) Attr(key string) string {
	return r.msg.Get(key)
}

// LookupAttr returns a response attribute and whether it was present.
func (r *Response) LookupAttr(key string) (string, bool) {
	return r.msg.Lookup(key)
}

// Message returns the underlying block.
func (r *Response) Message() *Message {
	return r.msg
}
