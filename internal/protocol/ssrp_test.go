package protocol

import (
	"errors"
	"testing"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		wantErr     error
		wantRecords int
		verify      func(t *testing.T, r *Response)
	}{
		{
			name:        "single instance",
			data:        EncodePayload("ServerName;HOST1;InstanceName;SQLEXPRESS;tcp;1533;;;"),
			wantRecords: 1,
			verify: func(t *testing.T, r *Response) {
				rec := r.Records[0]
				if rec.ServerName != "HOST1" || rec.InstanceName != "SQLEXPRESS" || rec.Port != 1533 {
					t.Errorf("record = %+v", rec)
				}
			},
		},
		{
			name:        "missing tcp key",
			data:        EncodePayload("ServerName;HOST1;InstanceName;SQLEXPRESS;;;"),
			wantRecords: 0,
		},
		{
			name:    "unexpected marker",
			data:    []byte{0x04, 0x00, 0x00, 'x'},
			wantErr: ErrUnexpectedResponse,
		},
		{
			name:    "empty datagram",
			data:    nil,
			wantErr: ErrShortResponse,
		},
		{
			name:        "marker only",
			data:        []byte{MsgServerResponse},
			wantRecords: 0,
		},
		{
			name: "declared length ignored",
			data: append([]byte{MsgServerResponse, 0xff, 0x00},
				"ServerName;H;InstanceName;I;tcp;1433;;;"...),
			wantRecords: 1,
			verify: func(t *testing.T, r *Response) {
				if !r.LengthMismatch() {
					t.Error("expected length mismatch to be reported")
				}
			},
		},
		{
			name: "two records",
			data: EncodePayload("ServerName;A;InstanceName;ONE;tcp;1500;;;" +
				"ServerName;A;InstanceName;TWO;Version;15.0.2000.5;tcp;1501;;;"),
			wantRecords: 2,
			verify: func(t *testing.T, r *Response) {
				if r.Records[1].Property(KeyVersion) != "15.0.2000.5" {
					t.Errorf("version = %q", r.Records[1].Property(KeyVersion))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseResponse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResponse() unexpected error: %v", err)
			}
			if len(resp.Records) != tt.wantRecords {
				t.Fatalf("records = %d, want %d", len(resp.Records), tt.wantRecords)
			}
			if tt.verify != nil {
				tt.verify(t, resp)
			}
		})
	}
}

func TestParseRecords(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"empty", "", nil},
		{"bad port", "ServerName;H;InstanceName;I;tcp;abc;;;", nil},
		{"port zero", "ServerName;H;InstanceName;I;tcp;0;;;", nil},
		{"port too large", "ServerName;H;InstanceName;I;tcp;70000;;;", nil},
		{"missing server", "InstanceName;I;tcp;1433;;;", nil},
		{"missing instance", "ServerName;H;tcp;1433;;;", nil},
		{"first occurrence wins", "ServerName;H;InstanceName;I;tcp;1450;tcp;1451;;;", []string{`H\I:1450`}},
		{"no trailing delimiter", "ServerName;H;InstanceName;I;tcp;1433", []string{`H\I:1433`}},
		{"one good one bad", "ServerName;H;InstanceName;I;;;ServerName;H;InstanceName;J;tcp;1434;;;", []string{`H\J:1434`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRecords(tt.payload)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseRecords() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("record[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInstanceRequest(t *testing.T) {
	got := InstanceRequest("SQLEXPRESS")
	if got[0] != MsgClientUnicastInst {
		t.Errorf("first byte = 0x%02x, want 0x%02x", got[0], MsgClientUnicastInst)
	}
	if got[len(got)-1] != 0x00 {
		t.Error("request should be zero terminated")
	}
	if string(got[1:len(got)-1]) != "SQLEXPRESS" {
		t.Errorf("name = %q", got[1:len(got)-1])
	}

	long := InstanceRequest("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	if len(long) != maxInstanceNameLen+2 {
		t.Errorf("len = %d, want %d", len(long), maxInstanceNameLen+2)
	}
}

func TestBuildResponseRoundTrip(t *testing.T) {
	in := []InstanceRecord{{ServerName: "DB01", InstanceName: "PROD", Port: 49152}}
	resp, err := ParseResponse(BuildResponse(in))
	if err != nil {
		t.Fatalf("ParseResponse() error: %v", err)
	}
	if resp.LengthMismatch() {
		t.Error("encoded length should match payload")
	}
	if len(resp.Records) != 1 || resp.Records[0].String() != `DB01\PROD:49152` {
		t.Errorf("records = %v", resp.Records)
	}
}
