package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestLogClient_GetLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("module") != "logs" || q.Get("action") != "getLogs" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("address") != testContractAddr {
			t.Errorf("expected contract address, got %s", q.Get("address"))
		}
		if q.Get("fromBlock") != "13755675" {
			t.Errorf("expected fromBlock 13755675, got %s", q.Get("fromBlock"))
		}
		if q.Get("toBlock") != "latest" {
			t.Errorf("expected toBlock latest, got %s", q.Get("toBlock"))
		}
		if q.Get("topic0") != MassUpdateTopic {
			t.Errorf("expected MassUpdate topic, got %s", q.Get("topic0"))
		}
		if q.Get("offset") != "1000" {
			t.Errorf("expected offset 1000, got %s", q.Get("offset"))
		}
		if q.Get("apikey") != "test-key" {
			t.Errorf("expected apikey test-key, got %s", q.Get("apikey"))
		}

		resp := map[string]interface{}{
			"status":  "1",
			"message": "OK",
			"result": []map[string]interface{}{
				{
					"address": testContractAddr,
					"topics": []string{
						MassUpdateTopic,
						"0x0000000000000000000000000000000000000000000000000000000000000539",
						"0x00000000000000000000000000000000000000000000000000000000000004d2",
					},
					"data":        "0x000000000000000000000000000000000000000000000000000000000000000c",
					"blockNumber": "0xd1e51c",
					"timeStamp":   "0x61b1b0c0",
					"logIndex":    "0x2f",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewLogClient(server.URL, "test-key")

	logs, err := client.GetLogs(context.Background(), LogQuery{
		Address:   testContractAddr,
		FromBlock: 13755675,
		Topic0:    MassUpdateTopic,
	})
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}

	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].BlockNumber != "0xd1e51c" {
		t.Errorf("expected blockNumber 0xd1e51c, got %s", logs[0].BlockNumber)
	}
	if len(logs[0].Topics) != 3 {
		t.Errorf("expected 3 topics, got %d", len(logs[0].Topics))
	}
}

func TestLogClient_GetLogs_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"status":  "0",
			"message": "No records found",
			"result":  []interface{}{},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewLogClient(server.URL, "test-key")

	logs, err := client.GetLogs(context.Background(), LogQuery{
		Address:   testContractAddr,
		FromBlock: 99999999,
	})
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("expected empty page, got %d logs", len(logs))
	}
}

func TestLogClient_GetLogs_TopicOperators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("topic0_2_opr") != "and" {
			t.Errorf("expected topic0_2_opr=and, got %q", q.Get("topic0_2_opr"))
		}
		if q.Get("topic2") == "" {
			t.Error("expected topic2 filter")
		}

		resp := map[string]interface{}{
			"status":  "1",
			"message": "OK",
			"result":  []map[string]interface{}{},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewLogClient(server.URL, "test-key")

	_, err := client.GetLogs(context.Background(), LogQuery{
		Address:   testContractAddr,
		FromBlock: 13755675,
		Topic0:    TransferTopic,
		Topic2:    PadTopic("0xe052113bd7d7700d623414a0a4585bcae754e9d5"),
	})
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
}

func TestLogClient_Retries(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		resp := map[string]interface{}{
			"status":  "1",
			"message": "OK",
			"result":  []map[string]interface{}{},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewLogClient(server.URL, "test-key",
		WithLogRetries(3, 10*time.Millisecond))

	_, err := client.GetLogs(context.Background(), LogQuery{
		Address:   testContractAddr,
		FromBlock: 1,
	})
	if err != nil {
		t.Fatalf("GetLogs after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}
