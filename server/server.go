// Package server contains misc server utilities.
package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// ReplyWithFile replies to the client request by serving the file at path.
// A file that does not exist yet is a 404.
func ReplyWithFile(w http.ResponseWriter, r *http.Request, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s", path, err)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", abs)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		fstr := fmt.Sprintf("error retrieving source file stats %s", err)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}
	// ServeContent sets the headers from the name and time
	http.ServeContent(w, r, filepath.Base(abs), stat.ModTime(), f)
}
