// Package imgrec contains a recorder used to automatically save wavefronts to disk as FITS files.
package imgrec

import (
	"encoding/json"
	"fmt"
	"go/types"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"

	"github.com/labctl/wfslab/generichttp"
)

// WriteFITS streams a single float32 image of width x height to w.
// data is row-major, len(data) must be width*height.
func WriteFITS(w io.Writer, cards []fitsio.Card, data []float32, width, height int) error {
	if len(data) != width*height {
		return fmt.Errorf("image data has %d elements, expected %d x %d", len(data), width, height)
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-32, []int{width, height})
	defer im.Close()
	if err = im.Header().Append(cards...); err != nil {
		return err
	}
	if err = im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}

// Recorder records wavefront sequences with incrementing filenames in yyyy-mm-dd subfolders.
// It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	// counter is the number of the next file
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool

	// now is time.Now, swapped in tests
	now func() time.Time
}

// NewRecorder returns an enabled recorder writing to root
func NewRecorder(root, prefix string) *Recorder {
	return &Recorder{Root: root, Prefix: prefix, Enabled: root != ""}
}

// dir returns the folder for today's date
func (r *Recorder) dir() string {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	return filepath.Join(r.Root, now().Format("2006-01-02"))
}

// scan returns one past the largest counter present in the folder
func (r *Recorder) scan(dn string) (int, error) {
	files, err := ioutil.ReadDir(dn)
	if err != nil {
		return 0, err
	}
	count := -1
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits"))
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	return count + 1, nil
}

// Next reserves and returns the path of the next file, creating the date folder.
// Files already on disk are never overwritten.
func (r *Recorder) Next() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Root == "" {
		return "", errors.New("recorder has no root folder")
	}
	dn := r.dir()
	if err := os.MkdirAll(dn, 0777); err != nil {
		return "", err
	}
	n, err := r.scan(dn)
	if err != nil {
		return "", err
	}
	if n < r.counter {
		n = r.counter
	}
	r.counter = n + 1
	return filepath.Join(dn, fmt.Sprintf("%s%06d.fits", r.Prefix, n)), nil
}

// Record writes an image to the next file and returns its path
func (r *Recorder) Record(cards []fitsio.Card, data []float32, width, height int) (string, error) {
	fn, err := r.Next()
	if err != nil {
		return "", errors.Wrap(err, "FITS recorder")
	}
	f, err := os.Create(fn)
	if err != nil {
		return "", errors.Wrap(err, "FITS recorder")
	}
	err = WriteFITS(f, cards, data, width, height)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fn, errors.Wrapf(err, "FITS recorder writing %s", fn)
	}
	return fn, nil
}

// Active is true when the recorder is enabled and has somewhere to write
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled && r.Root != ""
}

// HTTPWrapper is an HTTP wrapper around a recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Root = str.Str
	rec.counter = 0
	if err = os.MkdirAll(rec.dir(), 0777); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.String, String: h.Recorder.Root}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.Recorder.Prefix = str.Str
	h.Recorder.counter = 0
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.String, String: h.Recorder.Prefix}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.Recorder.Enabled}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.Recorder.Enabled = bT.Bool
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}
