package server

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestReplyWithFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "srv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	fn := filepath.Join(dir, "WFSdata.txt")
	if err = ioutil.WriteFile(fn, []byte("{'Beam Center X': 0};\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	ReplyWithFile(w, httptest.NewRequest(http.MethodGet, "/records", nil), fn)
	if w.Code != http.StatusOK || w.Body.String() != "{'Beam Center X': 0};\n" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct == "" {
		t.Error("no content type set")
	}

	w = httptest.NewRecorder()
	ReplyWithFile(w, httptest.NewRequest(http.MethodGet, "/records", nil), filepath.Join(dir, "missing.txt"))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file gave %d, want 404", w.Code)
	}
}
