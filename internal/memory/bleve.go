// Package memory implements the vector-memory port over a Bleve
// full-text index. Crews store their observations here and the planner
// consults it as a semantic cache before expensive LLM calls.
package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/swarmlabs/hive/internal/ports"
)

// BleveMemory implements ports.VectorMemory on a Bleve index.
type BleveMemory struct {
	mu    sync.RWMutex
	index bleve.Index
}

// memoryDocument is a stored observation.
type memoryDocument struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Open opens or creates a Bleve-backed memory at path.
func Open(path string) (*BleveMemory, error) {
	var index bleve.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
	} else {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open memory index: %w", err)
		}
	}
	return &BleveMemory{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = true

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Store = true

	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("task_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("role", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Close closes the underlying index.
func (m *BleveMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index.Close()
}

// Store indexes one observation.
func (m *BleveMemory) Store(ctx context.Context, taskID, content, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := memoryDocument{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Content:   content,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := m.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("index observation: %w", err)
	}
	return nil
}

// Retrieve returns the most relevant stored observations for a query,
// concatenated for prompt inclusion. No matches yields an empty string.
func (m *BleveMemory) Retrieve(ctx context.Context, query string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = 3
	req.Fields = []string{"content", "role"}

	result, err := m.index.Search(req)
	if err != nil {
		return "", fmt.Errorf("memory search: %w", err)
	}

	var sb strings.Builder
	for _, hit := range result.Hits {
		content, _ := hit.Fields["content"].(string)
		role, _ := hit.Fields["role"].(string)
		if content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n---\n")
		}
		if role != "" {
			fmt.Fprintf(&sb, "[%s] ", role)
		}
		sb.WriteString(content)
	}
	return sb.String(), nil
}

// CheckCache returns the top-scoring observation for queries similar
// enough to an earlier one. BM25 scores above 1 are squashed into the
// 0-1 range before the threshold comparison.
func (m *BleveMemory) CheckCache(ctx context.Context, query string, threshold float64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = 1
	req.Fields = []string{"content"}

	result, err := m.index.Search(req)
	if err != nil || len(result.Hits) == 0 {
		return "", false
	}

	hit := result.Hits[0]
	score := hit.Score
	if score > 1 {
		score = 1 - (1 / (1 + score))
	}
	if score < threshold {
		return "", false
	}
	content, _ := hit.Fields["content"].(string)
	if content == "" {
		return "", false
	}
	return content, true
}

var _ ports.VectorMemory = (*BleveMemory)(nil)
