package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

const customersCSV = "id,name,email\n1,Alice,alice@good.com\n2,Bob,bob@good.com\n3,Carol,carol@dead.net\n"
const ordersCSV = "id,amount\n1,100\n2,250\n"

func uploadFile(t *testing.T, ta *testApp, filename, content string) string {
	t.Helper()
	resp, err := doUpload(t, ta.app, "/api/merge/upload", filename, content, nil)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	fileID, _ := body["fileId"].(string)
	if fileID == "" {
		t.Fatalf("expected fileId in upload response, got %v", body)
	}
	return fileID
}

func TestMergeUpload_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "/api/merge/upload", "customers.csv", customersCSV, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	cols, ok := body["columns"].([]interface{})
	if !ok || len(cols) != 3 {
		t.Errorf("expected 3 columns, got %v", body["columns"])
	}
	if body["rowCount"] != float64(3) {
		t.Errorf("expected rowCount 3, got %v", body["rowCount"])
	}
	dtypes, ok := body["dtypes"].(map[string]interface{})
	if !ok || dtypes["id"] != "int64" {
		t.Errorf("expected id column inferred as int64, got %v", body["dtypes"])
	}
}

func TestMergeUpload_BadExtension(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "/api/merge/upload", "notes.txt", "hello", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	if body["error"] == nil {
		t.Error("expected 'error' field in response")
	}
}

func TestMergePreviewMatch(t *testing.T) {
	ta := setupApp(t)

	fileA := uploadFile(t, ta, "customers.csv", customersCSV)
	fileB := uploadFile(t, ta, "orders.csv", ordersCSV)

	body := fmt.Sprintf(`{"fileAId":"%s","fileBId":"%s","keyA":"id","keyB":"id"}`, fileA, fileB)
	resp, err := doRequest(ta.app, http.MethodPost, "/api/merge/preview-match", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["uniqueA"] != float64(3) {
		t.Errorf("expected uniqueA 3, got %v", result["uniqueA"])
	}
	if result["uniqueB"] != float64(2) {
		t.Errorf("expected uniqueB 2, got %v", result["uniqueB"])
	}
	if result["matchCount"] != float64(2) {
		t.Errorf("expected matchCount 2, got %v", result["matchCount"])
	}
}

func TestMergePreviewMatch_MissingFile(t *testing.T) {
	ta := setupApp(t)

	body := `{"fileAId":"00000000-0000-0000-0000-000000000000","fileBId":"00000000-0000-0000-0000-000000000001","keyA":"id","keyB":"id"}`
	resp, err := doRequest(ta.app, http.MethodPost, "/api/merge/preview-match", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestMergePreviewMatch_MissingFields(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/merge/preview-match", `{"fileAId":"abc"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestMergeJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/merge/jobs/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestMergeResult_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/merge/results/00000000-0000-0000-0000-000000000000", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestMergeR2Routes_StorageUnavailable(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/merge/r2/preview", `{"key":"uploads/a.csv"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusServiceUnavailable)

	body := `{"keyA":"a.csv","keyB":"b.csv","leftKey":"id","rightKey":"id"}`
	resp, err = doRequest(ta.app, http.MethodPost, "/api/merge/r2/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusServiceUnavailable)

	resp, err = doRequest(ta.app, http.MethodGet, "/api/merge/r2/results/merge/results/x.csv", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusServiceUnavailable)
}
