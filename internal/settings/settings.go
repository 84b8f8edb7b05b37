package settings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ixlab/aibox/internal/llm"
)

// ErrNotFound is returned when a model is not in the catalog.
var ErrNotFound = errors.New("model not found")

// Model is one catalog entry. Name is the key the UI selects by; ModelID is
// the vendor identifier sent on the wire.
type Model struct {
	Name        string  `json:"name" dynamodbav:"name"`
	ModelID     string  `json:"model_id" dynamodbav:"model_id"`
	APIProvider string  `json:"api_provider" dynamodbav:"api_provider"`
	ModelType   string  `json:"model_type" dynamodbav:"model_type"`
	Description string  `json:"description,omitempty" dynamodbav:"description,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" dynamodbav:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" dynamodbav:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty" dynamodbav:"top_p,omitempty"`
	Think       bool    `json:"think,omitempty" dynamodbav:"think,omitempty"`
}

// Model types the catalog distinguishes.
const (
	TypeText       = "text"
	TypeMultimodal = "multimodal"
	TypeImage      = "image"
	TypeEmbedding  = "embedding"
)

// Config maps a catalog entry onto the provider dispatch config.
func (m Model) Config() llm.ModelConfig {
	return llm.ModelConfig{
		APIProvider: llm.APIProvider(m.APIProvider),
		ModelID:     m.ModelID,
		Params: llm.Params{
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			TopP:        m.TopP,
			Think:       m.Think,
		},
	}
}

// Defaults seeds the catalog on first boot.
func Defaults() []Model {
	return []Model{
		{
			Name:        "claude3.5-sonnet-v2",
			ModelID:     "anthropic.claude-3-5-sonnet-20241022-v2:0",
			APIProvider: string(llm.BedrockConverse),
			ModelType:   TypeMultimodal,
			Description: "Claude 3.5 Sonnet v2 on Bedrock",
			MaxTokens:   4096,
		},
		{
			Name:        "gemini-pro",
			ModelID:     "gemini-1.5-pro",
			APIProvider: string(llm.Gemini),
			ModelType:   TypeMultimodal,
			Description: "Gemini 1.5 Pro via the Gemini API",
			MaxTokens:   8192,
		},
		{
			Name:        "stable-diffusion",
			ModelID:     "stability.sd3-large-v1:0",
			APIProvider: string(llm.BedrockInvoke),
			ModelType:   TypeImage,
			Description: "Stable Diffusion 3 Large on Bedrock",
		},
	}
}

// API is the slice of the DynamoDB client the catalog needs.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Catalog reads and writes the model list stored in the settings table under
// (setting_name "llm_models", type "global"). The list is cached briefly so
// every chat request does not hit the table.
type Catalog struct {
	client API
	table  string
	logger *log.Logger

	mu       sync.Mutex
	cached   []Model
	cachedAt time.Time
	cacheTTL time.Duration
}

func NewCatalog(client API, table string) *Catalog {
	return &Catalog{
		client:   client,
		table:    table,
		logger:   log.New(log.Writer(), "[SETTINGS] ", log.LstdFlags),
		cacheTTL: time.Minute,
	}
}

const (
	settingName = "llm_models"
	settingType = "global"
)

func settingKey() map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"setting_name": &ddbtypes.AttributeValueMemberS{Value: settingName},
		"type":         &ddbtypes.AttributeValueMemberS{Value: settingType},
	}
}

// settingItem is the stored row shape.
type settingItem struct {
	SettingName string  `dynamodbav:"setting_name"`
	Type        string  `dynamodbav:"type"`
	Models      []Model `dynamodbav:"models"`
}

// List returns the catalog, seeding defaults when the table has no entry yet.
func (c *Catalog) List(ctx context.Context) ([]Model, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cachedAt) < c.cacheTTL {
		models := append([]Model(nil), c.cached...)
		c.mu.Unlock()
		return models, nil
	}
	c.mu.Unlock()

	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key:       settingKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("settings get: %w", err)
	}
	if out.Item == nil {
		c.logger.Printf("no model catalog found, seeding defaults")
		models := Defaults()
		if err := c.write(ctx, models); err != nil {
			return nil, err
		}
		c.remember(models)
		return models, nil
	}

	var item settingItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("settings decode: %w", err)
	}
	c.remember(item.Models)
	return item.Models, nil
}

// Find resolves one model by its catalog name.
func (c *Catalog) Find(ctx context.Context, name string) (Model, error) {
	models, err := c.List(ctx)
	if err != nil {
		return Model{}, err
	}
	for _, m := range models {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Add inserts or replaces a catalog entry by name.
func (c *Catalog) Add(ctx context.Context, model Model) error {
	if model.Name == "" || model.APIProvider == "" || model.ModelID == "" {
		return fmt.Errorf("name, api_provider and model_id are required")
	}
	if model.ModelType == "" {
		model.ModelType = TypeText
	}
	models, err := c.List(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, m := range models {
		if m.Name == model.Name {
			models[i] = model
			replaced = true
			break
		}
	}
	if !replaced {
		models = append(models, model)
	}
	if err := c.write(ctx, models); err != nil {
		return err
	}
	c.remember(models)
	return nil
}

// Remove deletes a catalog entry by name.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	models, err := c.List(ctx)
	if err != nil {
		return err
	}
	kept := models[:0]
	for _, m := range models {
		if m.Name != name {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(models) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := c.write(ctx, kept); err != nil {
		return err
	}
	c.remember(kept)
	return nil
}

func (c *Catalog) write(ctx context.Context, models []Model) error {
	item, err := attributevalue.MarshalMap(settingItem{
		SettingName: settingName,
		Type:        settingType,
		Models:      models,
	})
	if err != nil {
		return fmt.Errorf("settings encode: %w", err)
	}
	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("settings put: %w", err)
	}
	return nil
}

func (c *Catalog) remember(models []Model) {
	c.mu.Lock()
	c.cached = append([]Model(nil), models...)
	c.cachedAt = time.Now()
	c.mu.Unlock()
}
