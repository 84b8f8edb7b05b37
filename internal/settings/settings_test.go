package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ixlab/aibox/internal/llm"
)

type fakeTable struct {
	item map[string]interface{}
	raw  *dynamodb.PutItemInput
	gets int
}

func (f *fakeTable) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets++
	if f.raw == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: f.raw.Item}, nil
}

func (f *fakeTable) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.raw = params
	return &dynamodb.PutItemOutput{}, nil
}

func TestListSeedsDefaults(t *testing.T) {
	fake := &fakeTable{}
	cat := NewCatalog(fake, "aibox-settings")

	models, err := cat.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 default models, got %d", len(models))
	}
	if fake.raw == nil {
		t.Fatal("defaults were not persisted")
	}

	names := map[string]bool{}
	for _, m := range models {
		names[m.Name] = true
	}
	for _, want := range []string{"claude3.5-sonnet-v2", "gemini-pro", "stable-diffusion"} {
		if !names[want] {
			t.Fatalf("default model %s missing", want)
		}
	}
}

func TestAddFindRemove(t *testing.T) {
	fake := &fakeTable{}
	cat := NewCatalog(fake, "aibox-settings")
	cat.cacheTTL = 0 // force table reads
	ctx := context.Background()

	if _, err := cat.List(ctx); err != nil {
		t.Fatal(err)
	}
	err := cat.Add(ctx, Model{
		Name:        "claude3-haiku",
		ModelID:     "anthropic.claude-3-haiku-20240307-v1:0",
		APIProvider: string(llm.BedrockConverse),
		ModelType:   TypeText,
		MaxTokens:   2048,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	m, err := cat.Find(ctx, "claude3-haiku")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	cfg := m.Config()
	if cfg.APIProvider != llm.BedrockConverse || cfg.ModelID != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if err := cat.Remove(ctx, "claude3-haiku"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := cat.Find(ctx, "claude3-haiku"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddValidates(t *testing.T) {
	cat := NewCatalog(&fakeTable{}, "aibox-settings")
	if err := cat.Add(context.Background(), Model{Name: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestListUsesCache(t *testing.T) {
	fake := &fakeTable{}
	cat := NewCatalog(fake, "aibox-settings")
	cat.cacheTTL = time.Minute
	ctx := context.Background()

	if _, err := cat.List(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.List(ctx); err != nil {
		t.Fatal(err)
	}
	if fake.gets != 1 {
		t.Fatalf("expected one table read, got %d", fake.gets)
	}
}

func TestRemoveMissing(t *testing.T) {
	fake := &fakeTable{}
	cat := NewCatalog(fake, "aibox-settings")
	if err := cat.Remove(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
