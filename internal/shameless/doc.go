// Package shameless shards the records of attached models across the tables of
// several independently connected partition databases.
//
// # Topology
//
// A configuration names the partitions and a total shard count, which must be
// a multiple of the partition count. Shards are assigned to partitions in
// contiguous blocks: with 4 shards over 2 partitions, shards 0 and 1 live on
// partition 0 and shards 2 and 3 on partition 1.
//
// A record's shard is CRC-32 (IEEE) of the canonical string form of its shard
// key, modulo the shard count. This function decides where existing rows are
// and must not change.
//
// # Tables
//
// For each model and shard there is one main table holding uuid, ref_key,
// created_at, the primary index fields and a serialized body of all other
// fields, plus one table per index:
//
//	store_rates_000001                 main table
//	store_rates_primary_index_000001   primary index
//	store_rates_foo_index_000001       secondary index "foo"
//
// Tables are created, if missing, the first time a partition is used.
//
// # Declaring models
//
//	rates, err := st.Attach(Rate{}, func(s *shameless.Schema) {
//	    s.Index(func(ix *shameless.IndexBuilder) {
//	        ix.Integer("hotel_id")
//	        ix.String("room_type")
//	        ix.ShardOn("hotel_id")
//	    })
//	})
//
// # Errors
//
// Failures wrap one of [ErrConfiguration], [ErrConnection], [ErrRouting] or
// [ErrStorage]; partition and table context is carried by [*OpError]. Nothing
// is retried.
package shameless
