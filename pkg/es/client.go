// Package es implements the vector index capability on Elasticsearch.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"patrasaar-go/internal/config"
	"patrasaar-go/internal/model"
	"patrasaar-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Store is the narrow vector-index capability consumed by the ingestion and
// query pipelines.
type Store interface {
	UpsertChunks(ctx context.Context, vectors []model.ChunkVector) error
	Search(ctx context.Context, vector []float32, topK int, chatID, userID string) ([]model.VectorMatch, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// Index talks to one Elasticsearch index holding chunk vectors.
type Index struct {
	client    *elasticsearch.Client
	indexName string
}

// NewIndex connects to Elasticsearch and creates the index if missing.
func NewIndex(esCfg config.ElasticsearchConfig, dims int) (*Index, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &Index{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *Index) createIndexIfNotExists(dims int) error {
	res, err := x.client.Indices.Exists([]string{x.indexName})
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("index '%s' already exists", x.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index existence: %d", res.StatusCode)
	}

	// The _id of every document is the chunk id, which keeps vector ids a
	// subset of chunk ids and makes delete-by-ids exact.
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chat_id": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"section": { "type": "keyword" },
				"page": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err = x.client.Indices.Create(
		x.indexName,
		x.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index '%s': %w", x.indexName, err)
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned an error creating index '%s': %s", x.indexName, res.String())
	}

	log.Infof("index '%s' created successfully", x.indexName)
	return nil
}

// UpsertChunks writes one vector document per chunk, keyed by chunk id.
// Re-indexing the same ids overwrites in place, so redelivery is safe.
func (x *Index) UpsertChunks(ctx context.Context, vectors []model.ChunkVector) error {
	for _, v := range vectors {
		docBytes, err := json.Marshal(v)
		if err != nil {
			return err
		}

		req := esapi.IndexRequest{
			Index:      x.indexName,
			DocumentID: v.ChunkID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, x.client)
		if err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", v.ChunkID, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("elasticsearch rejected chunk %s: %s", v.ChunkID, res.String())
		}
	}
	return nil
}

// Search runs a kNN query filtered to one chat and user, so retrieval never
// crosses session or tenant boundaries regardless of the caller's checks.
func (x *Index) Search(ctx context.Context, vector []float32, topK int, chatID, userID string) ([]model.VectorMatch, error) {
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter": map[string]interface{}{
				"bool": map[string]interface{}{
					"must": []map[string]interface{}{
						{"term": map[string]interface{}{"chat_id": chatID}},
						{"term": map[string]interface{}{"user_id": userID}},
					},
				},
			},
		},
		"size":    topK,
		"_source": false,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.indexName),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID    string  `json:"_id"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	matches := make([]model.VectorMatch, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		matches = append(matches, model.VectorMatch{ChunkID: hit.ID, Score: hit.Score})
	}
	return matches, nil
}

// DeleteByIDs removes the given vectors. Missing ids are not an error.
func (x *Index) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		req := esapi.DeleteRequest{
			Index:      x.indexName,
			DocumentID: id,
		}
		res, err := req.Do(ctx, x.client)
		if err != nil {
			return fmt.Errorf("failed to delete vector %s: %w", id, err)
		}
		res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return errors.New("failed to delete vector " + id)
		}
	}
	return nil
}

// DeleteByDocumentID clears all vectors for one document. The pipeline calls
// this before re-indexing so a redelivered job cannot accumulate duplicates.
func (x *Index) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":%q}}}`, documentID)
	res, err := x.client.DeleteByQuery(
		[]string{x.indexName},
		strings.NewReader(query),
		x.client.DeleteByQuery.WithContext(ctx),
		x.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("failed to delete vectors for document %s: %w", documentID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned an error deleting document vectors: %s", res.String())
	}
	return nil
}
