// Package store groups the AccountStore backends shipped with authcore.
//
// Every backend lives in its own subpackage so applications only link the
// drivers they use:
//
//   - memstore: in-process maps, for tests and single-node tools
//   - redisstore: one JSON record per account with index keys
//   - pgstore: PostgreSQL over pgx with embedded goose migrations
//   - sqlitestore: SQLite through the pure-Go modernc driver
//   - mongostore: one document per account in MongoDB
//
// storetest holds the conformance suite every backend runs.
package store
