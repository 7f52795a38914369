package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"hello":"world"}`)

	if err := WriteFrame(&buf, payload, DefaultMaxMsgSize); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	got, err := ReadFrame(&buf, DefaultMaxMsgSize)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame() = %q, want %q", got, payload)
	}
}

func TestReadFrameRejectsOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	// Hand-build a length prefix bigger than maxSize without ever
	// allocating that much payload.
	lenBuf := []byte{0x00, 0x01, 0x00, 0x00} // 65536
	buf.Write(lenBuf)

	if _, err := ReadFrame(&buf, 1024); err != ErrMessageTooLarge {
		t.Errorf("ReadFrame() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 2048)

	if err := WriteFrame(&buf, payload, 1024); err != ErrMessageTooLarge {
		t.Errorf("WriteFrame() error = %v, want ErrMessageTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("WriteFrame() wrote %d bytes before rejecting, want 0", buf.Len())
	}
}

func TestReadFrameSplitAcrossArbitraryChunkBoundaries(t *testing.T) {
	var whole bytes.Buffer
	payload := []byte(`{"a":1,"b":[2,3,4],"c":"some longer string value to pad the frame out"}`)
	if err := WriteFrame(&whole, payload, DefaultMaxMsgSize); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	encoded := whole.Bytes()

	// A reader that dribbles out one byte at a time exercises io.ReadFull's
	// retry behaviour the same way a slow, chunked socket read would.
	r := &oneByteReader{data: encoded}
	got, err := ReadFrame(r, DefaultMaxMsgSize)
	if err != nil {
		t.Fatalf("ReadFrame() over chunked reader error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame() over chunked reader = %q, want %q", got, payload)
	}
}

type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestReadWriteRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{
		ID:        1,
		SessionID: 7,
		Op:        OpSetItem,
		Path:      "/test-module:location/latitude",
		Value: &Value{
			Path: "/test-module:location/latitude",
			Type: TypeString,
			Data: "52.52",
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := WriteFrame(&buf, payload, DefaultMaxMsgSize); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	got, err := ReadRequest(&buf, DefaultMaxMsgSize)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if got.Op != OpSetItem || got.Path != req.Path || got.SessionID != req.SessionID {
		t.Errorf("ReadRequest() = %+v, want equivalent of %+v", got, req)
	}
	if got.Value == nil || got.Value.Data != req.Value.Data {
		t.Errorf("ReadRequest() value = %+v, want %+v", got.Value, req.Value)
	}
}

func TestWriteResponseEncodesErrors(t *testing.T) {
	var buf bytes.Buffer
	resp := &Response{
		ID:        1,
		SessionID: 7,
		Op:        OpCommit,
		Errors: []ErrorDetail{
			{Code: "VALIDATION_FAILED", Message: "mandatory leaf missing", Path: "/test-module:location/latitude"},
		},
	}
	if err := WriteResponse(&buf, resp, DefaultMaxMsgSize); err != nil {
		t.Fatalf("WriteResponse() error = %v", err)
	}

	payload, err := ReadFrame(&buf, DefaultMaxMsgSize)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	var got Response
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got.Errors) != 1 || got.Errors[0].Code != "VALIDATION_FAILED" {
		t.Errorf("Response.Errors = %+v, want one VALIDATION_FAILED entry", got.Errors)
	}
}
