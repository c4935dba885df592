package search

import (
	"context"
	"fmt"

	"github.com/olivere/elastic/v7"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/pkg/configuration"
)

// ElasticIndexer bulk-indexes unit and salary documents into
// <index>_units and <index>_salaries.
type ElasticIndexer struct {
	client   *elastic.Client
	index    string
	bulkSize int
	log      *logrus.Entry
}

func NewElasticIndexer(opts configuration.SearchOptions, log *logrus.Entry) (*ElasticIndexer, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(opts.ElasticURL),
		elastic.SetSniff(opts.Sniff),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	bulk := opts.BulkSize
	if bulk <= 0 {
		bulk = 500
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ElasticIndexer{client: client, index: opts.Index, bulkSize: bulk, log: log.WithField("component", "search")}, nil
}

// New returns the Elastic indexer when a URL is configured and the no-op one otherwise.
func New(opts configuration.SearchOptions, log *logrus.Entry) (Indexer, error) {
	if opts.ElasticURL == "" {
		return NewNopIndexer(log), nil
	}
	return NewElasticIndexer(opts, log)
}

func (es *ElasticIndexer) Index(ctx context.Context, req IndexRequest) (IndexResult, error) {
	units, err := UnitDocuments(ctx, req)
	if err != nil {
		return IndexResult{}, err
	}
	salaries, err := SalaryDocuments(ctx, req)
	if err != nil {
		return IndexResult{}, err
	}

	unitIndex := es.index + "_units"
	unitReqs := make([]elastic.BulkableRequest, 0, len(units))
	for _, u := range units {
		unitReqs = append(unitReqs, elastic.NewBulkIndexRequest().
			Index(unitIndex).
			Id(fmt.Sprintf("%d-%d", u.EmployerID, u.Year)).
			Doc(u))
	}
	if err := es.bulk(ctx, unitReqs); err != nil {
		return IndexResult{}, err
	}

	salaryIndex := es.index + "_salaries"
	salaryReqs := make([]elastic.BulkableRequest, 0, len(salaries))
	for _, s := range salaries {
		salaryReqs = append(salaryReqs, elastic.NewBulkIndexRequest().
			Index(salaryIndex).
			Id(fmt.Sprintf("%d", s.SalaryID)).
			Doc(s))
	}
	if err := es.bulk(ctx, salaryReqs); err != nil {
		return IndexResult{}, err
	}

	es.log.WithFields(logrus.Fields{
		"file_id":  req.FileID,
		"units":    len(units),
		"salaries": len(salaries),
	}).Info("search: indexed file")
	return IndexResult{Units: len(units), Salaries: len(salaries)}, nil
}

func (es *ElasticIndexer) bulk(ctx context.Context, reqs []elastic.BulkableRequest) error {
	for start := 0; start < len(reqs); start += es.bulkSize {
		end := min(start+es.bulkSize, len(reqs))
		svc := es.client.Bulk().Add(reqs[start:end]...)
		if svc.NumberOfActions() == 0 {
			continue
		}
		resp, err := svc.Refresh("true").Do(ctx)
		if err != nil {
			return fmt.Errorf("bulk index failed: %w", err)
		}
		if resp.Errors {
			for _, item := range resp.Failed() {
				if item.Error != nil {
					return fmt.Errorf("bulk item %s failed: %s", item.Id, item.Error.Reason)
				}
			}
		}
	}
	return nil
}
