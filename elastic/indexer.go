// Package elastic writes documents to Elasticsearch.
package elastic

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cinemadb/essync"
	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ essync.Indexer = &Indexer{}

// Indexer is an essync.Indexer which writes each batch with one bulk request.
// Documents are indexed under their ID, replacing any previous version.
type Indexer struct {
	client  *elastic.Client
	refresh string
	log     logrus.FieldLogger
}

// Option configures an Indexer.
type Option func(*Indexer)

// OptRefresh sets the refresh parameter of every bulk request ("true",
// "wait_for" or "false").
func OptRefresh(refresh string) Option {
	return func(ix *Indexer) {
		ix.refresh = refresh
	}
}

// OptLogger sets the logger.
func OptLogger(log logrus.FieldLogger) Option {
	return func(ix *Indexer) {
		ix.log = log
	}
}

// NewClient connects to the cluster at urls without sniffing, so that nodes
// behind a proxy or in a container are reachable by the configured address.
func NewClient(urls ...string) (*elastic.Client, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(urls...),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating elasticsearch client")
	}
	return client, nil
}

// NewIndexer returns an Indexer using client.
func NewIndexer(client *elastic.Client, opts ...Option) *Indexer {
	ix := &Indexer{
		client: client,
		log:    essync.Log("elastic"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// BulkUpsert implements essync.Indexer. A request which is accepted but in
// which some documents are rejected returns an *essync.BulkError.
func (ix *Indexer) BulkUpsert(ctx context.Context, index string, docs []essync.Document) error {
	if len(docs) == 0 {
		return nil
	}
	bulk := ix.client.Bulk().Index(index)
	if ix.refresh != "" {
		bulk = bulk.Refresh(ix.refresh)
	}
	for _, d := range docs {
		bulk.Add(elastic.NewBulkIndexRequest().Index(index).Id(d.ID).Doc(d.Body))
	}
	resp, err := bulk.Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "bulk indexing %d documents into %s", len(docs), index)
	}
	if !resp.Errors {
		return nil
	}
	berr := &essync.BulkError{Index: index, Total: len(docs)}
	for _, item := range resp.Failed() {
		f := essync.BulkItemError{ID: item.Id, Status: item.Status}
		if item.Error != nil {
			f.Type, f.Reason = item.Error.Type, item.Error.Reason
		}
		berr.Failed = append(berr.Failed, f)
	}
	ix.log.WithFields(logrus.Fields{"index": index, "failed": len(berr.Failed)}).Warn("bulk request partially failed")
	return berr
}

// EnsureIndex creates index if it does not exist. If mappingDir holds
// <index>.json it is used as the body of the create request.
func (ix *Indexer) EnsureIndex(ctx context.Context, index, mappingDir string) error {
	exists, err := ix.client.IndexExists(index).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "checking for index %s", index)
	}
	if exists {
		return nil
	}
	create := ix.client.CreateIndex(index)
	if mappingDir != "" {
		body, err := os.ReadFile(filepath.Join(mappingDir, index+".json"))
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "reading mapping for %s", index)
		}
		if err == nil {
			create = create.BodyString(string(body))
		}
	}
	res, err := create.Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "creating index %s", index)
	}
	if !res.Acknowledged {
		ix.log.WithField("index", index).Warn("index creation not acknowledged")
	}
	ix.log.WithField("index", index).Info("created index")
	return nil
}
