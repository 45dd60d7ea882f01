// Package mongo implements store.Store on the official MongoDB driver.
// Suitable for deployments that already run MongoDB and want entries and
// their state history next to the rest of their data.
//
// The caller owns the client lifecycle and mongo never disconnects it.
// Pass the database handle through the constructor:
//
//	import (
//	    "go.mongodb.org/mongo-driver/v2/mongo"
//	    "go.mongodb.org/mongo-driver/v2/mongo/options"
//	    mongostore "github.com/xraph/jobqueue/store/mongo"
//	)
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	store := mongostore.New(client.Database("jobqueue"))
//	store.Migrate(ctx)
//
// Entry ids come from a counter document incremented with
// findOneAndUpdate, so they increase monotonically across processes.
// Standalone servers have no multi-document transactions, so a state
// update and its state-change record are two writes.
package mongo
