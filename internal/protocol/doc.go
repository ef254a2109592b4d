// Package protocol implements the SQL Server Browser (SSRP) UDP protocol.
//
// The browser service listens on UDP 1434 and answers questions about the
// database instances installed on its host. dbscout uses it to find named
// instances that listen on dynamic ports.
//
// # Wire Format
//
// Requests:
//   - 0x02: list every instance on the host
//   - 0x04 + name + 0x00: describe one named instance
//
// Responses:
//   - Byte 0: 0x05 marker
//   - Bytes 1-2: payload length (little-endian, not enforced)
//   - Bytes 3..: ASCII payload
//
// The payload holds records separated by ";;;". Each record is a flat list of
// ";"-separated tokens read as key/value pairs:
//
//	ServerName;HOST1;InstanceName;SQLEXPRESS;IsClustered;No;Version;15.0.2000.5;tcp;1533;;;
//
// A record is usable only when it carries ServerName, InstanceName and a
// valid tcp port. Everything else is kept in InstanceRecord.Properties.
//
// # Usage Example
//
//	client := protocol.NewClient(500 * time.Millisecond)
//	resp, err := client.Query(ctx, "192.168.1.20")
//	if err != nil {
//	    return err
//	}
//	for _, rec := range resp.Records {
//	    fmt.Println(rec)
//	}
//
// # Error Handling
//
// A reply that does not start with 0x05 returns ErrUnexpectedResponse.
// Malformed records inside a valid reply are dropped silently. Network
// errors are wrapped with the target address.
//
// # Thread Safety
//
// Parsing and construction functions are stateless. A Client holds no
// connection state and may be shared between goroutines.
package protocol
