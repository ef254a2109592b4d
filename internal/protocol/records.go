package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Well-known record keys
const (
	KeyServerName   = "ServerName"
	KeyInstanceName = "InstanceName"
	KeyTCP          = "tcp"
	KeyVersion      = "Version"
	KeyIsClustered  = "IsClustered"
	KeyNamedPipe    = "np"
)

// InstanceRecord is one usable instance advertised by a browser reply.
type InstanceRecord struct {
	ServerName   string
	InstanceName string
	Port         int
	// Properties holds every other key/value pair of the record
	Properties map[string]string
}

// String returns "SERVER\INSTANCE:port"
func (r InstanceRecord) String() string {
	return fmt.Sprintf("%s\\%s:%d", r.ServerName, r.InstanceName, r.Port)
}

// Property returns a record property, or "" when absent.
func (r InstanceRecord) Property(key string) string {
	if r.Properties == nil {
		return ""
	}
	return r.Properties[key]
}

// ParseRecords splits a reply payload into instance records. Records missing
// ServerName, InstanceName or a valid tcp port are dropped.
func ParseRecords(payload string) []InstanceRecord {
	var out []InstanceRecord
	for _, chunk := range strings.Split(payload, RecordDelimiter) {
		if chunk == "" {
			continue
		}
		rec, ok := parseRecord(chunk)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// parseRecord decodes "k0;v0;k1;v1;..." positionally. The first occurrence of
// a key wins; a trailing key without a value is ignored.
func parseRecord(chunk string) (InstanceRecord, bool) {
	tokens := strings.Split(chunk, FieldDelimiter)
	fields := make(map[string]string, len(tokens)/2)
	for i := 0; i+1 < len(tokens); i += 2 {
		key := tokens[i]
		if key == "" {
			continue
		}
		if _, seen := fields[key]; !seen {
			fields[key] = tokens[i+1]
		}
	}

	server, ok := fields[KeyServerName]
	if !ok || server == "" {
		return InstanceRecord{}, false
	}
	instance, ok := fields[KeyInstanceName]
	if !ok || instance == "" {
		return InstanceRecord{}, false
	}
	rawPort, ok := fields[KeyTCP]
	if !ok {
		return InstanceRecord{}, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(rawPort))
	if err != nil || port < 1 || port > 65535 {
		return InstanceRecord{}, false
	}

	delete(fields, KeyServerName)
	delete(fields, KeyInstanceName)
	delete(fields, KeyTCP)

	return InstanceRecord{
		ServerName:   server,
		InstanceName: instance,
		Port:         port,
		Properties:   fields,
	}, true
}
