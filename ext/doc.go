// Package ext defines the extension system for SmartQueue.
//
// Extensions are notified of lifecycle events and react to them:
// streaming to clients, relaying to Kafka or MQTT, recording metrics,
// writing audit logs. Each hook is a separate interface.
//
// # Implementing an Extension
//
//	type Board struct{}
//
//	func (b *Board) Name() string { return "board" }
//
//	func (b *Board) OnTokenCalled(ctx context.Context, t *token.Token, server id.StaffID) error {
//	    return b.display.Show(t.Number, server)
//	}
//
// # Token Lifecycle Hooks
//
//   - [StatusChanged]: any transition, with the queue position snapshot
//   - [TokenAdmitted]: token joined a queue
//   - [TokenCalled]: a server called the token
//   - [ServiceStarted]: service began
//   - [ServiceCompleted]: service finished; carries the history record
//   - [TokenCancelled]: token withdrawn
//   - [TokenExpired]: called token never showed up
//
// # Other Hooks
//
//   - [QueueChanged]: queue created or reconfigured
//   - [ModelTrained]: wait estimator retrained
//   - [Shutdown]: graceful shutdown
//
// Hook errors are logged by the [Registry] and never propagated.
package ext
