// Package relayhook is a SmartQueue extension that relays token status
// changes, queue changes and estimator retrains to Kafka.
//
// Hooks append a JSON envelope (the same one the stream broker sends to
// WebSocket clients) to a pebble-backed [Outbox]. A [Dispatcher] drains
// the outbox in order through a [Publisher]: [KafkaWriter] on
// segmentio/kafka-go or [SaramaProducer] on IBM/sarama. Entries that keep
// failing are parked as failed and can be replayed.
//
//	ob, _ := relayhook.OpenOutbox("/var/lib/smartqueue/outbox")
//	relay := relayhook.New(ob, relayhook.NewKafkaWriter(brokers, "smartqueue.events"))
//	_ = relay.Start(ctx)
//	eng, _ := engine.Build(rt, engine.WithExtension(relay))
package relayhook
