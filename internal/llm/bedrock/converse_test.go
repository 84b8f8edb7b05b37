package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ixlab/aibox/internal/llm"
)

// scriptedEvents replays a fixed event sequence.
type scriptedEvents struct {
	events []brtypes.ConverseStreamOutput
	err    error
}

func (s *scriptedEvents) Events() <-chan brtypes.ConverseStreamOutput {
	ch := make(chan brtypes.ConverseStreamOutput, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (s *scriptedEvents) Close() error { return nil }
func (s *scriptedEvents) Err() error   { return s.err }

func metadataEvent(in, out int32) brtypes.ConverseStreamOutput {
	return &brtypes.ConverseStreamOutputMemberMetadata{
		Value: brtypes.ConverseStreamMetadataEvent{
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(in),
				OutputTokens: aws.Int32(out),
				TotalTokens:  aws.Int32(in + out),
			},
		},
	}
}

func textEvent(text string) brtypes.ConverseStreamOutput {
	return &brtypes.ConverseStreamOutputMemberContentBlockDelta{
		Value: brtypes.ContentBlockDeltaEvent{
			Delta: &brtypes.ContentBlockDeltaMemberText{Value: text},
		},
	}
}

func toolUseEvents(id, name, input string) []brtypes.ConverseStreamOutput {
	return []brtypes.ConverseStreamOutput{
		&brtypes.ConverseStreamOutputMemberContentBlockStart{
			Value: brtypes.ContentBlockStartEvent{
				Start: &brtypes.ContentBlockStartMemberToolUse{
					Value: brtypes.ToolUseBlockStart{
						ToolUseId: aws.String(id),
						Name:      aws.String(name),
					},
				},
			},
		},
		&brtypes.ConverseStreamOutputMemberContentBlockDelta{
			Value: brtypes.ContentBlockDeltaEvent{
				Delta: &brtypes.ContentBlockDeltaMemberToolUse{
					Value: brtypes.ToolUseBlockDelta{Input: aws.String(input)},
				},
			},
		},
		&brtypes.ConverseStreamOutputMemberContentBlockStop{
			Value: brtypes.ContentBlockStopEvent{},
		},
	}
}

func drain(stream *llm.Stream) []llm.Fragment {
	var out []llm.Fragment
	for frag := range stream.Fragments() {
		out = append(out, frag)
	}
	return out
}

func TestPumpStreamUsageSpansToolRoundTrips(t *testing.T) {
	p := NewConverse(nil, llm.ModelConfig{ModelID: "anthropic.claude-3-5-sonnet"}, nil)
	stream := llm.NewStream(context.Background(), 32)
	var usage llm.Usage

	// First pass ends in a tool call and burns 10 in, 5 out.
	first := &scriptedEvents{events: append(
		toolUseEvents("t1", "current_time", `{"timezone":"UTC"}`),
		metadataEvent(10, 5),
	)}
	turn, err := p.pumpStream(first, stream, &usage)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if turn.toolUse == nil || turn.toolUse.Name != "current_time" {
		t.Fatalf("tool use not detected: %+v", turn)
	}

	// Continuation pass finishes the turn with 7 in, 3 out.
	second := &scriptedEvents{events: []brtypes.ConverseStreamOutput{
		textEvent("it is noon"),
		&brtypes.ConverseStreamOutputMemberMessageStop{
			Value: brtypes.MessageStopEvent{StopReason: brtypes.StopReasonEndTurn},
		},
		metadataEvent(7, 3),
	}}
	turn, err = p.pumpStream(second, stream, &usage)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if turn.toolUse != nil {
		t.Fatalf("unexpected tool use on final pass: %+v", turn.toolUse)
	}
	_ = stream.Close()

	var finish *llm.Fragment
	for _, frag := range drain(stream) {
		if frag.Type == llm.FragmentFinish {
			f := frag
			finish = &f
		}
	}
	if finish == nil {
		t.Fatal("finish fragment missing")
	}
	if finish.Usage.InputTokens != 17 || finish.Usage.OutputTokens != 8 {
		t.Fatalf("usage = %+v, want 17 in / 8 out across both passes", finish.Usage)
	}
	if finish.StopReason != string(brtypes.StopReasonEndTurn) {
		t.Fatalf("stop reason = %q", finish.StopReason)
	}
}

func TestPumpStreamStopsWhenConsumerCancels(t *testing.T) {
	p := NewConverse(nil, llm.ModelConfig{ModelID: "anthropic.claude-3-5-sonnet"}, nil)
	stream := llm.NewStream(context.Background(), 1)
	stream.Cancel()

	events := &scriptedEvents{events: []brtypes.ConverseStreamOutput{
		textEvent("never delivered"),
	}}
	var usage llm.Usage
	if _, err := p.pumpStream(events, stream, &usage); err == nil {
		t.Fatal("expected cancellation error")
	}
}
