// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"wet-coach-go/internal/config"
	"wet-coach-go/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端并确保笔记索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(client, esCfg.IndexName)
}

// NewClient 根据配置创建客户端，多个地址用逗号分隔。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

const noteMapping = `{
	"mappings": {
		"properties": {
			"note_id": { "type": "long" },
			"conversation_id": { "type": "keyword" },
			"user_id": { "type": "long" },
			"title": { "type": "text" },
			"summary": { "type": "text" },
			"details": { "type": "text" },
			"priority": { "type": "keyword" },
			"created_at": { "type": "date" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := client.Indices.Create(indexName, client.Indices.Create.WithBody(strings.NewReader(noteMapping)))
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", indexName, err)
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, created.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// NoteDocument 是督导笔记在索引中的文档结构。
type NoteDocument struct {
	NoteID         uint      `json:"note_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Details        string    `json:"details"`
	Priority       string    `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
}

// NoteQuery 是笔记检索条件。UserID 为空时不按用户过滤（督导查看全部）。
type NoteQuery struct {
	UserID   *uint
	Text     string
	Priority string
	Size     int
}

// NoteIndex 封装笔记索引的写入与检索。
type NoteIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewNoteIndex 创建一个新的 NoteIndex。
func NewNoteIndex(client *elasticsearch.Client, index string) *NoteIndex {
	return &NoteIndex{client: client, index: index}
}

// IndexNote 以笔记 ID 作为文档 ID 写入索引，重复写入是幂等的。
func (n *NoteIndex) IndexNote(ctx context.Context, doc NoteDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      n.index,
		DocumentID: strconv.FormatUint(uint64(doc.NoteID), 10),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, n.client)
	if err != nil {
		return fmt.Errorf("failed to index note: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引笔记到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index note")
	}
	return nil
}

// BuildSearchQuery 构建 bool 查询：全文匹配 title/summary/details，按用户与优先级过滤。
func BuildSearchQuery(q NoteQuery) map[string]interface{} {
	size := q.Size
	if size <= 0 {
		size = 20
	}

	var filters []map[string]interface{}
	if q.UserID != nil {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"user_id": *q.UserID}})
	}
	if q.Priority != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"priority": q.Priority}})
	}

	boolQuery := map[string]interface{}{}
	if strings.TrimSpace(q.Text) != "" {
		boolQuery["must"] = []map[string]interface{}{{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"title^3", "summary^2", "details"},
			},
		}}
	} else {
		boolQuery["must"] = []map[string]interface{}{{"match_all": map[string]interface{}{}}}
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	return map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"created_at": map[string]string{"order": "desc"}},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64      `json:"_score"`
			Source NoteDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// NoteHit 是一条检索结果。
type NoteHit struct {
	NoteDocument
	Score float64 `json:"score"`
}

// Search 执行笔记检索。
func (n *NoteIndex) Search(ctx context.Context, q NoteQuery) ([]NoteHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildSearchQuery(q)); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := n.client.Search(
		n.client.Search.WithContext(ctx),
		n.client.Search.WithIndex(n.index),
		n.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]NoteHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, NoteHit{NoteDocument: h.Source, Score: h.Score})
	}
	return hits, nil
}
