// Package sqlserver performs lightweight SQL Server login handshakes.
//
// A handshake opens one connection with go-mssqldb, runs SELECT @@VERSION and
// closes it. The result is either the first line of the version string or a
// *ProbeError whose Class tells callers what happened:
//
//	version, err := client.Handshake(ctx, sqlserver.Target{Host: ip, Port: 1433})
//	switch {
//	case err == nil:
//	    // accessible
//	case sqlserver.IsRecordable(err):
//	    // server present, login or database rejected
//	default:
//	    // nothing usable at this address
//	}
//
// Targets render as connection descriptors: "host:port",
// "host\instance,port" or "host\instance".
package sqlserver
