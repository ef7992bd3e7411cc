// Package mongo implements store.Store using the official MongoDB driver.
// Suitable for distributed deployments that want flexible schema evolution.
//
// The store can wrap an existing client or dial its own:
//
//	import tempomongo "github.com/reverb-labs/tempo/store/mongo"
//
//	s, err := tempomongo.Connect(ctx, "mongodb://localhost:27017", "tempo")
//	if err != nil { ... }
//	defer s.Close()
//	s.Migrate(ctx)
package mongo
