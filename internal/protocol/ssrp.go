package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Browser protocol constants
const (
	// BrowserPort is the UDP port the SQL Server Browser service listens on
	BrowserPort = 1434

	// MsgClientUnicastEx asks a host to list all of its instances
	MsgClientUnicastEx = 0x02
	// MsgClientUnicastInst asks a host about one named instance
	MsgClientUnicastInst = 0x04
	// MsgServerResponse marks a browser reply
	MsgServerResponse = 0x05

	// ResponseHeaderSize is marker byte + 2-byte little-endian length
	ResponseHeaderSize = 3

	// MaxResponseSize is the largest datagram a browser reply can occupy
	MaxResponseSize = 65535

	// RecordDelimiter separates instance records inside a reply payload
	RecordDelimiter = ";;;"
	// FieldDelimiter separates key and value tokens inside a record
	FieldDelimiter = ";"
)

var (
	// ErrShortResponse is returned when a reply is too small to carry a header
	ErrShortResponse = errors.New("browser response too short")

	// ErrUnexpectedResponse is returned when a reply does not start with 0x05
	ErrUnexpectedResponse = errors.New("unexpected browser response marker")
)

// Response is a decoded browser reply.
type Response struct {
	Marker byte
	// DeclaredLength is the length field at offsets 1-2. It is reported but
	// never enforced; real servers are inconsistent about it.
	DeclaredLength uint16
	Payload        string
	Records        []InstanceRecord
	Raw            []byte
}

// LengthMismatch reports whether the declared length disagrees with the
// payload actually received.
func (r *Response) LengthMismatch() bool {
	return int(r.DeclaredLength) != len(r.Payload)
}

// String returns a debug representation of the response
func (r *Response) String() string {
	return fmt.Sprintf("Response{marker=0x%02x, declared_len=%d, payload_len=%d, records=%d}",
		r.Marker, r.DeclaredLength, len(r.Payload), len(r.Records))
}

// ParseResponse decodes a raw browser reply. A reply whose first byte is not
// 0x05 yields ErrUnexpectedResponse. Malformed records inside an otherwise
// valid reply are dropped, never reported as errors.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, ErrShortResponse
	}
	if data[0] != MsgServerResponse {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnexpectedResponse, data[0])
	}

	resp := &Response{
		Marker: data[0],
		Raw:    data,
	}

	if len(data) >= ResponseHeaderSize {
		resp.DeclaredLength = binary.LittleEndian.Uint16(data[1:3])
		resp.Payload = string(data[ResponseHeaderSize:])
	}

	resp.Records = ParseRecords(resp.Payload)
	return resp, nil
}
