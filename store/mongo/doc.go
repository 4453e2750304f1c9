// Package mongo stores the append-heavy half of SmartQueue persistence in
// MongoDB: completed service history, which is the wait estimator's training
// corpus, and the token status change journal.
//
// It implements store.Corpus and is paired with a primary backend through
// store.Split:
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	corpus := mongo.New(client.Database("smartqueue"))
//	s := &store.Split{Store: redisStore, Corpus: corpus}
//
// The caller owns the database handle; Close never disconnects it.
package mongo
