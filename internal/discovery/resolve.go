package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
	"github.com/muurk/dbscout/internal/protocol"
	"github.com/muurk/dbscout/internal/sqlserver"
)

// resolveDefault classifies an open port. Dedup keys on port alone.
func (r *run) resolveDefault(ctx context.Context, node Node, port int) (Instance, bool) {
	if r.set.hasPort(node.Address, port) {
		return Instance{}, false
	}

	target := sqlserver.Target{Host: node.Address, Port: port}
	inst, ok := r.handshake(ctx, target)
	if !ok {
		return Instance{}, false
	}
	inst.ServerName = node.Hostname
	inst.InstanceName = sqlserver.DefaultInstanceName
	inst.Port = port

	if !r.set.addDefault(node.Address, inst) {
		return Instance{}, false
	}
	logging.Info("SQL Server instance found",
		zap.String("run_id", r.id),
		zap.String("descriptor", inst.Descriptor),
		zap.Bool("accessible", inst.Accessible),
	)
	return inst, true
}

// resolveNamed classifies a browser candidate. Dedup keys on
// (InstanceName, Port); an advertised default instance keys on port alone
// like the port stage, since both name the same endpoint.
func (r *run) resolveNamed(ctx context.Context, node Node, rec protocol.InstanceRecord) (Instance, bool) {
	target := sqlserver.Target{Host: node.Address, Instance: rec.InstanceName, Port: rec.Port}
	if target.Named() {
		if r.set.hasInstance(node.Address, rec.InstanceName, rec.Port) {
			return Instance{}, false
		}
	} else if r.set.hasPort(node.Address, rec.Port) {
		return Instance{}, false
	}

	inst, ok := r.handshake(ctx, target)
	if !ok {
		return Instance{}, false
	}
	inst.ServerName = rec.ServerName
	inst.InstanceName = rec.InstanceName
	inst.Port = rec.Port
	inst.IsNamedInstance = target.Named()
	inst.DiscoveredViaBrowserProtocol = true
	inst.Properties = rec.Properties
	if inst.Version == "" {
		inst.Version = rec.Property(protocol.KeyVersion)
	}

	var added bool
	if target.Named() {
		added = r.set.addNamed(node.Address, inst)
	} else {
		added = r.set.addDefault(node.Address, inst)
	}
	if !added {
		return Instance{}, false
	}
	logging.Info("SQL Server instance found",
		zap.String("run_id", r.id),
		zap.String("descriptor", inst.Descriptor),
		zap.Bool("accessible", inst.Accessible),
		zap.Bool("browser", true),
	)
	return inst, true
}

// handshake runs to its own timeout regardless of cancellation. The bool is
// false when the failure means no database service is present.
func (r *run) handshake(ctx context.Context, target sqlserver.Target) (Instance, bool) {
	version, err := r.deps.Handshaker.Handshake(context.WithoutCancel(ctx), target)
	inst := Instance{Descriptor: target.Descriptor()}

	switch {
	case err == nil:
		inst.Accessible = true
		inst.Version = version
	case sqlserver.IsRecordable(err):
		inst.LastError = err.Error()
	default:
		logging.Debug("Not a usable SQL Server endpoint",
			zap.String("run_id", r.id),
			zap.String("descriptor", inst.Descriptor),
			zap.Error(err),
		)
		return Instance{}, false
	}
	return inst, true
}
