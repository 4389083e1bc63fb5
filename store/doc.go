// Package store persists time-ordered documents in DynamoDB and reads back
// bounded ranges of them.
//
// Each document is one item. The partition key "pk" holds the entity, the
// binary sort key "sk" holds the full row key built by the rowkey package, and
// every data column becomes a "<family>:<qualifier>" string attribute. Items
// carry a TTL attribute of write time plus the configured retention, which
// DynamoDB uses to expire them. Reads filter out items whose TTL has passed but
// that DynamoDB has not deleted yet.
//
// # Provisioning
//
// A [Store] starts uninitialized. Callers check [Store.TableExists], call
// [Store.CreateTable] when the table is absent, then [Store.Initialize]:
//
//	st := store.New(client, store.Config{Table: "features", Retention: 90 * 24 * time.Hour})
//	exists, err := st.TableExists(ctx)
//	if err != nil {
//	    return err
//	}
//	if !exists {
//	    if err := st.CreateTable(ctx, st.Retention(), st.ColumnFamily()); err != nil {
//	        return err
//	    }
//	}
//	if err := st.Initialize(ctx); err != nil {
//	    return err
//	}
//
// # Reading and writing
//
// [Store.Put] never blocks on I/O; its channel receives the outcome.
// [Store.Scan] takes a [ScanRequest] over [start, end) and yields documents
// newest first. A [ScanSelector] fixes whether requests fetch every cell or
// only the data columns of a schema.
//
// # Errors
//
//   - [ErrProvisioning] - table describe, create or TTL update failed
//   - [ErrWrite] - a put failed; the [*WriteError] carries the store's cause
//   - [ErrNotInitialized] - I/O before Initialize
//   - [ErrInvalidRange] - scan bounds belong to different entities
//   - [ErrMalformedKey] - a row key is not "<entity>#<inverted millis>"
package store
