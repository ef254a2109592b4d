package protocol

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// maxInstanceNameLen is the longest instance name SQL Server accepts
const maxInstanceNameLen = 32

// BrowseRequest builds the one-byte request that lists all instances on a host.
func BrowseRequest() []byte {
	return []byte{MsgClientUnicastEx}
}

// InstanceRequest builds the single-instance query: 0x04, the instance name,
// and a terminating zero byte. Names longer than 32 bytes are truncated.
func InstanceRequest(name string) []byte {
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	req := make([]byte, 0, len(name)+2)
	req = append(req, MsgClientUnicastInst)
	req = append(req, name...)
	req = append(req, 0x00)
	return req
}

// BuildResponse encodes records the way a browser service does. It is the
// inverse of ParseResponse and backs test responders.
func BuildResponse(records []InstanceRecord) []byte {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(KeyServerName + FieldDelimiter + r.ServerName + FieldDelimiter)
		b.WriteString(KeyInstanceName + FieldDelimiter + r.InstanceName + FieldDelimiter)
		for k, v := range r.Properties {
			b.WriteString(k + FieldDelimiter + v + FieldDelimiter)
		}
		b.WriteString(KeyTCP + FieldDelimiter)
		b.WriteString(strconv.Itoa(r.Port))
		b.WriteString(RecordDelimiter)
	}
	return EncodePayload(b.String())
}

// EncodePayload wraps a raw ASCII payload with the 0x05 marker and length.
func EncodePayload(payload string) []byte {
	out := make([]byte, ResponseHeaderSize, ResponseHeaderSize+len(payload))
	out[0] = MsgServerResponse
	binary.LittleEndian.PutUint16(out[1:3], uint16(len(payload)))
	return append(out, payload...)
}
