package receiver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/tabflow/chunkint"
)

func postChunk(t *testing.T, h http.HandlerFunc, body any) ackResponse {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h(rec, req)

	var ack ackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return ack
}

func TestHandler_AcksFirstChunk(t *testing.T) {
	rv := New(nil)
	records := []map[string]any{{"id": 1}}
	sum, err := chunkint.New().Checksum(records)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}

	ack := postChunk(t, rv.Handler(), chunkPayload{
		IngestionID: "ing_1", ChunkNumber: 0, ChunkID: "ing_1:0", Checksum: sum, Records: records,
	})
	if !ack.Ack {
		t.Fatalf("got %+v, want ack", ack)
	}
}

func TestHandler_NacksEmptyChunk(t *testing.T) {
	rv := New(nil)
	ack := postChunk(t, rv.Handler(), chunkPayload{IngestionID: "ing_1", ChunkNumber: 0, ChunkID: "ing_1:0"})
	if ack.Ack || ack.Error != "EMPTY_CHUNK" {
		t.Fatalf("got %+v, want NACK EMPTY_CHUNK", ack)
	}
}

func TestHandler_NacksOutOfOrder(t *testing.T) {
	rv := New(nil)
	records := []map[string]any{{"id": 1}}
	sum, _ := chunkint.New().Checksum(records)

	ack := postChunk(t, rv.Handler(), chunkPayload{
		IngestionID: "ing_1", ChunkNumber: 5, ChunkID: "ing_1:5", Checksum: sum, Records: records,
	})
	if ack.Ack || ack.Error != "OUT_OF_ORDER_CHUNK" {
		t.Fatalf("got %+v, want NACK OUT_OF_ORDER_CHUNK", ack)
	}
}

func TestHandler_AcksCompletionNotification(t *testing.T) {
	rv := New(nil)
	ack := postChunk(t, rv.Handler(), completionPayload{
		IngestionID: "ing_1", Status: "COMPLETED", ChunkNumber: 1, TotalRecords: 1,
	})
	if !ack.Ack {
		t.Fatalf("got %+v, want ack", ack)
	}
}
