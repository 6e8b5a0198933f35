// Package auditredis stores audit records in Redis with go-redis/v9.
//
// Record bodies are JSON values in a hash keyed by record id. Sorted sets
// scored by creation time in microseconds index the records by log, item,
// item type and actor. Writes go through a Lua script, so a batch is stored
// completely or not at all, and an id that already exists is rejected with
// audit.ErrDuplicateRecord.
//
// Every key starts with the hash tag {prefix}, which keeps all keys of one
// storage in the same cluster slot:
//
//	{audit}:records
//	{audit}:all
//	{audit}:log:<log>
//	{audit}:type:<item type>
//	{audit}:item:<item type>:<item id>
//	{audit}:actor:<whodunnit>
//
// Values inside object changes and metadata come back as JSON types, so
// numbers are float64 after a round trip.
package auditredis
