package wire

import (
	"encoding/json"
	"io"
)

// ReadRequest reads one frame and decodes it as a Request.
func ReadRequest(r io.Reader, maxSize uint32) (*Request, error) {
	payload, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteRequest encodes req and writes it as one frame, the client-side
// counterpart of ReadRequest.
func WriteRequest(w io.Writer, req *Request, maxSize uint32) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload, maxSize)
}

// ReadResponse reads one frame and decodes it as a Response, the
// client-side counterpart of WriteResponse.
func ReadResponse(r io.Reader, maxSize uint32) (*Response, error) {
	payload, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReadNotification reads one frame and decodes it as a Notification, used
// by a client listening for unsolicited deliveries on a subscribed socket.
func ReadNotification(r io.Reader, maxSize uint32) (*Notification, error) {
	payload, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// WriteResponse encodes resp and writes it as one frame.
func WriteResponse(w io.Writer, resp *Response, maxSize uint32) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload, maxSize)
}

// WriteNotification encodes n and writes it as one frame.
func WriteNotification(w io.Writer, n *Notification, maxSize uint32) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload, maxSize)
}
