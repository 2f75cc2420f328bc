// File path: internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmcasey/codeloom/internal/classifier"
	ctxbuilder "github.com/jmcasey/codeloom/internal/context"
	"github.com/jmcasey/codeloom/internal/data/orchestrator"
	"github.com/jmcasey/codeloom/internal/generator"
	"github.com/jmcasey/codeloom/internal/llm"
	"github.com/jmcasey/codeloom/internal/pipeline"
)

type mockProvider struct {
	chatResponse string
	chatCalls    int
}

func (m *mockProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	m.chatCalls++
	return m.chatResponse, nil
}

func (m *mockProvider) ChatStream(ctx context.Context, messages []llm.Message, onDelta func(string)) (string, error) {
	m.chatCalls++
	if onDelta != nil {
		onDelta(m.chatResponse)
	}
	return m.chatResponse, nil
}

func (m *mockProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i := range input {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (m *mockProvider) Name() string { return "mock" }

func newTestServer(t *testing.T, provider llm.Provider) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	dir := t.TempDir()
	cfg := orchestrator.Config{
		MemoryPath:   filepath.Join(dir, "conversations"),
		VersionsPath: filepath.Join(dir, "versions.db"),
	}
	orch, err := orchestrator.New(context.Background(), cfg, orchestrator.WithProvider(provider))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	t.Cleanup(func() { orch.Close() })

	builder, err := ctxbuilder.NewBuilder(ctxbuilder.DefaultConfig(), orch.Memory(), orch.Snapshots(), orch.Vector())
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	gen := generator.New(provider)
	pipe, err := pipeline.New(classifier.New(classifier.WithEscalator(gen)), builder, gen, orch.Versions(),
		pipeline.WithConversation(orch.Memory()))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	server, err := NewServer(orch, pipe)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return server, orch
}

func postIteration(t *testing.T, server *Server, projectID string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/v1/projects/%s/iterations", projectID), bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestIterationEndpointCommitsVersion(t *testing.T) {
	changes := map[string]interface{}{
		"newFiles":    map[string]string{"widget.tsx": "export const Widget = () => null;"},
		"description": "added widget",
	}
	encoded, _ := json.Marshal(changes)
	provider := &mockProvider{chatResponse: string(encoded)}
	server, orch := newTestServer(t, provider)

	rec := postIteration(t, server, "demo", map[string]interface{}{
		"prompt": "create a new file called widget.tsx",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp iterationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.VersionID == "" || resp.VersionNumber != 1 {
		t.Fatalf("expected committed version 1, got %+v", resp)
	}
	if _, ok := resp.NewFiles["widget.tsx"]; !ok {
		t.Fatalf("expected widget.tsx in new files, got %v", resp.NewFiles)
	}

	stored, err := orch.Versions().GetVersion(context.Background(), resp.VersionID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if stored.Files["widget.tsx"] == "" {
		t.Fatal("snapshot missing committed file")
	}
}

func TestIterationRejectsBlankPrompt(t *testing.T) {
	server, _ := newTestServer(t, &mockProvider{chatResponse: "{}"})
	rec := postIteration(t, server, "demo", map[string]interface{}{"prompt": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVersionReadRoutes(t *testing.T) {
	changes := map[string]interface{}{
		"newFiles":    map[string]string{"a.ts": "one"},
		"description": "first",
	}
	encoded, _ := json.Marshal(changes)
	server, _ := newTestServer(t, &mockProvider{chatResponse: string(encoded)})

	rec := postIteration(t, server, "demo", map[string]interface{}{
		"prompt": "create a new file called a.ts",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("iteration failed: %d %s", rec.Code, rec.Body.String())
	}
	var created iterationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	listRec := httptest.NewRecorder()
	server.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/v1/projects/demo/versions", nil))
	if listRec.Code != http.StatusOK {
		t.Fatalf("list versions: %d", listRec.Code)
	}
	var listing struct {
		Versions []versionSummary `json:"versions"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Versions) != 1 || listing.Versions[0].ID != created.VersionID {
		t.Fatalf("unexpected listing: %+v", listing.Versions)
	}
	if listing.Versions[0].FileCount != 1 {
		t.Fatalf("expected file count 1, got %d", listing.Versions[0].FileCount)
	}

	latestRec := httptest.NewRecorder()
	server.ServeHTTP(latestRec, httptest.NewRequest(http.MethodGet, "/v1/projects/demo/versions/latest", nil))
	if latestRec.Code != http.StatusOK {
		t.Fatalf("latest version: %d", latestRec.Code)
	}

	missingRec := httptest.NewRecorder()
	server.ServeHTTP(missingRec, httptest.NewRequest(http.MethodGet, "/v1/projects/empty/versions/latest", nil))
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for project without versions, got %d", missingRec.Code)
	}

	historyRec := httptest.NewRecorder()
	server.ServeHTTP(historyRec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/v1/versions/%s/history", created.VersionID), nil))
	if historyRec.Code != http.StatusOK {
		t.Fatalf("history: %d", historyRec.Code)
	}

	unknownRec := httptest.NewRecorder()
	server.ServeHTTP(unknownRec, httptest.NewRequest(http.MethodGet, "/v1/versions/does-not-exist", nil))
	if unknownRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown version, got %d", unknownRec.Code)
	}
}

func TestCompareRoute(t *testing.T) {
	first, _ := json.Marshal(map[string]interface{}{
		"newFiles":    map[string]string{"a.ts": "one"},
		"description": "first",
	})
	provider := &mockProvider{chatResponse: string(first)}
	server, _ := newTestServer(t, provider)

	firstRec := postIteration(t, server, "demo", map[string]interface{}{
		"prompt": "create a new file called a.ts",
	})
	var v1 iterationResponse
	if err := json.Unmarshal(firstRec.Body.Bytes(), &v1); err != nil {
		t.Fatalf("decode first: %v", err)
	}

	second, _ := json.Marshal(map[string]interface{}{
		"modifiedFiles": map[string]string{"a.ts": "two"},
		"description":   "second",
	})
	provider.chatResponse = string(second)
	secondRec := postIteration(t, server, "demo", map[string]interface{}{
		"prompt": "change a.ts to print two",
	})
	var v2 iterationResponse
	if err := json.Unmarshal(secondRec.Body.Bytes(), &v2); err != nil {
		t.Fatalf("decode second: %v", err)
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/v1/versions/%s/compare/%s", v1.VersionID, v2.VersionID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("compare: %d %s", rec.Code, rec.Body.String())
	}
	var compared struct {
		Changes map[string]string `json:"changes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &compared); err != nil {
		t.Fatalf("decode compare: %v", err)
	}
	if compared.Changes["a.ts"] != "modified" {
		t.Fatalf("expected a.ts modified, got %v", compared.Changes)
	}
}

func TestConversationAndLogsRoutes(t *testing.T) {
	encoded, _ := json.Marshal(map[string]interface{}{
		"newFiles":    map[string]string{"b.ts": "x"},
		"description": "add b",
	})
	server, _ := newTestServer(t, &mockProvider{chatResponse: string(encoded)})

	rec := postIteration(t, server, "demo", map[string]interface{}{
		"prompt": "create a new file called b.ts",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("iteration failed: %d", rec.Code)
	}

	convRec := httptest.NewRecorder()
	server.ServeHTTP(convRec, httptest.NewRequest(http.MethodGet, "/v1/projects/demo/conversation", nil))
	if convRec.Code != http.StatusOK {
		t.Fatalf("conversation: %d", convRec.Code)
	}
	if !strings.Contains(convRec.Body.String(), "create a new file called b.ts") {
		t.Fatalf("conversation missing recorded prompt: %s", convRec.Body.String())
	}

	logsRec := httptest.NewRecorder()
	server.ServeHTTP(logsRec, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))
	if logsRec.Code != http.StatusOK {
		t.Fatalf("logs: %d", logsRec.Code)
	}

	healthRec := httptest.NewRecorder()
	server.ServeHTTP(healthRec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if healthRec.Code != http.StatusOK || healthRec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", healthRec.Code, healthRec.Body.String())
	}
}
