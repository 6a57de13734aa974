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
	"strings"

	"monet-probing/internal/config"
	"monet-probing/internal/model"
	"monet-probing/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// responseMapping 是探询记录索引的结构，关键词和标识使用 keyword，文本字段支持全文检索。
const responseMapping = `{
	"mappings": {
		"properties": {
			"su_id": { "type": "keyword" },
			"qs_id": { "type": "keyword" },
			"mo_id": { "type": "keyword" },
			"question": { "type": "text" },
			"response": { "type": "text" },
			"follow_up": { "type": "text" },
			"reason": { "type": "text" },
			"keywords": { "type": "keyword" },
			"relevance": { "type": "integer" },
			"quality": { "type": "integer" },
			"detail": { "type": "integer" },
			"confusion": { "type": "integer" },
			"negativity": { "type": "integer" },
			"consistency": { "type": "integer" },
			"confidence": { "type": "integer" },
			"gibberish_score": { "type": "integer" },
			"ended": { "type": "boolean" },
			"session_no": { "type": "integer" },
			"qs_no": { "type": "integer" },
			"created_at": { "type": "date" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端，并确保探询记录索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(responseMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexResponse 将一条探询记录写入索引。同一回合重复写入会覆盖旧文档。
func IndexResponse(ctx context.Context, indexName string, resp *model.ProbeResponse) error {
	if ESClient == nil {
		return errors.New("elasticsearch client not initialised")
	}
	docBytes, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: resp.DocumentID(),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引探询记录到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index probe response")
	}
	return nil
}

// SearchQuery 描述一次探询记录检索。Text 为空时只按标识过滤。
type SearchQuery struct {
	Text       string
	SurveyID   string
	QuestionID string
	Size       int
}

func (q SearchQuery) body() map[string]interface{} {
	var must []interface{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"response^2", "follow_up", "reason", "keywords"},
			},
		})
	}
	var filter []interface{}
	if q.SurveyID != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"su_id": q.SurveyID}})
	}
	if q.QuestionID != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"qs_id": q.QuestionID}})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	size := q.Size
	if size <= 0 {
		size = 10
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

type searchResult struct {
	Hits struct {
		Hits []struct {
			Source model.ProbeResponse `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchResponses 在探询记录索引中检索回答。
func SearchResponses(ctx context.Context, indexName string, q SearchQuery) ([]model.ProbeResponse, error) {
	if ESClient == nil {
		return nil, errors.New("elasticsearch client not initialised")
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q.body()); err != nil {
		return nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("检索探询记录时 Elasticsearch 返回错误: %s", res.String())
		return nil, errors.New("failed to search probe responses")
	}

	var sr searchResult
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, err
	}
	out := make([]model.ProbeResponse, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

// ResponseIndex 把全局客户端和索引名绑定在一起，供持久化流程使用。
type ResponseIndex struct {
	Name string
}

func (i ResponseIndex) IndexResponse(ctx context.Context, resp *model.ProbeResponse) error {
	return IndexResponse(ctx, i.Name, resp)
}

func (i ResponseIndex) Search(ctx context.Context, q SearchQuery) ([]model.ProbeResponse, error) {
	return SearchResponses(ctx, i.Name, q)
}
