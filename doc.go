// Package essync keeps an Elasticsearch index in step with the catalog held in
// Postgres. It repeatedly pulls the rows which changed since the last run,
// turns them into denormalized search documents, and bulk loads them,
// remembering per entity kind how far it got so that a restart resumes rather
// than rescanning everything.
//
// The pipeline is made of three stages and a cursor store. Interfaces and the
// basic implementation of each stage live in this package; the backends they
// talk to live in sub-packages.
//
// 1. Extractor
//
//    The Extractor runs one query per entity kind, parameterized only by the
//    kind's watermark, and streams the rows back in chunks. Rows come back in
//    ascending order of their change time so that the newest row of a chunk is
//    a safe point to resume from. Only one chunk is ever held in memory.
//
// 2. Transformer
//
//    The Transformer decodes every row of a chunk into the kind's typed source
//    shape, validates it, and maps it to the document stored in the index. A
//    row that does not fit fails the whole chunk, and nothing from that chunk
//    is written.
//
// 3. Loader
//
//    The Loader writes a chunk of documents with a single bulk request keyed
//    by the source primary key, so loading the same chunk twice is harmless.
//    Only once the bulk request succeeded does it advance the kind's cursor.
//
// 4. CursorStore
//
//    The CursorStore maps "<kind>_last_updated" to the newest change time
//    loaded for that kind. It survives restarts; bolt, leveldb, a JSON file,
//    a Postgres table and S3 are supported.
//
// The Driver ties the stages together for every configured kind, applying a
// RetryPolicy around the infrastructure calls, and runs a pass each time its
// Trigger fires.
package essync
