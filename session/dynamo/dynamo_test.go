package dynamo

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/session"
)

// fakeAPI keeps items in a map keyed by session_id; enough to exercise the
// marshalling and TTL behavior without a live table.
type fakeAPI struct {
	items map[string]map[string]ddbtypes.AttributeValue
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func itemID(item map[string]ddbtypes.AttributeValue) string {
	if v, ok := item["session_id"].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeAPI) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[itemID(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	uid := params.Key["user_id"].(*ddbtypes.AttributeValueMemberS).Value
	if item["user_id"].(*ddbtypes.AttributeValueMemberS).Value != uid {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[itemID(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	uid := params.ExpressionAttributeValues[":uid"].(*ddbtypes.AttributeValueMemberS).Value
	out := &dynamodb.QueryOutput{}
	for _, item := range f.items {
		if item["user_id"].(*ddbtypes.AttributeValueMemberS).Value == uid {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	id := itemID(params.Key)
	if _, ok := f.items[id]; !ok {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func expiry(t *testing.T, item map[string]ddbtypes.AttributeValue) int64 {
	t.Helper()
	n, ok := item["expiration_time"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		t.Fatalf("no expiration_time attribute: %v", item)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestPutRefreshesTTLMonotonically(t *testing.T) {
	fake := newFakeAPI()
	store := NewStore(fake, "aibox-sessions", 30*24*time.Hour)
	ctx := context.Background()

	sess := session.New("u1", "chat", "m", "")
	sess.AddTurn(session.Turn{Role: llm.RoleUser, Text: "hi"})
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first := expiry(t, fake.items[sess.SessionID])

	got, err := store.Get(ctx, "u1", sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.AddTurn(session.Turn{Role: llm.RoleAssistant, Text: "hello"})
	if err := store.Put(ctx, got); err != nil {
		t.Fatalf("Put again: %v", err)
	}
	second := expiry(t, fake.items[sess.SessionID])

	if second < first {
		t.Fatalf("TTL moved backwards: %d -> %d", first, second)
	}

	final, err := store.Get(ctx, "u1", sess.SessionID)
	if err != nil {
		t.Fatalf("Get final: %v", err)
	}
	if len(final.History) != 2 || final.History[1].Text != "hello" {
		t.Fatalf("history did not round-trip: %+v", final.History)
	}
}

func TestGetFiltersExpired(t *testing.T) {
	fake := newFakeAPI()
	store := NewStore(fake, "aibox-sessions", time.Hour)
	ctx := context.Background()

	sess := session.New("u1", "chat", "m", "")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	// Touch only moves the expiry forward, so a negative retention leaves the
	// pre-set expired timestamp in place.
	expired := NewStore(fake, "aibox-sessions", -2*time.Hour)
	if err := expired.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "u1", sess.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired session must read as not found, got %v", err)
	}
}

func TestListScopesAndSkipsExpired(t *testing.T) {
	fake := newFakeAPI()
	store := NewStore(fake, "aibox-sessions", time.Hour)
	ctx := context.Background()

	mine := session.New("u1", "chat", "m", "mine")
	other := session.New("u2", "chat", "m", "other")
	for _, s := range []*session.Session{mine, other} {
		if err := store.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].SessionName != "mine" {
		t.Fatalf("unexpected listing: %+v", got)
	}
}

func TestDeleteMissing(t *testing.T) {
	store := NewStore(newFakeAPI(), "aibox-sessions", time.Hour)
	err := store.Delete(context.Background(), "u1", "nope")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
