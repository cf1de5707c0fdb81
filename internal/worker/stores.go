package worker

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linecheck/syncproxy/internal/names"
)

// Draft snapshot persistence for form clients. The worker only stores and
// returns blobs; the timer, dirtiness predicate and exit flow run inside
// the form's own draft session.

func (w *Worker) handleDraftGet(rw http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	blob, ok, err := w.drafts.Get(key)
	if err != nil {
		http.Error(rw, "draft store error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(rw, "no draft", http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(blob)
}

func (w *Worker) handleDraftPut(rw http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	blob, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(blob) {
		http.Error(rw, "snapshot must be JSON", http.StatusBadRequest)
		return
	}
	if err := w.drafts.Put(key, blob); err != nil {
		http.Error(rw, "draft store error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *Worker) handleDraftDelete(rw http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := w.drafts.Delete(key); err != nil {
		http.Error(rw, "draft store error", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func scopeFrom(r *http.Request) names.Scope {
	return names.Scope{
		Restaurant: chi.URLParam(r, "restaurant"),
		Template:   chi.URLParam(r, "template"),
	}
}

func (w *Worker) handleNameList(rw http.ResponseWriter, r *http.Request) {
	list, err := w.names.List(scopeFrom(r))
	if err != nil {
		http.Error(rw, "name store error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []string{}
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string][]string{"names": list})
}

func (w *Worker) handleNameAdd(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(rw, "bad payload", http.StatusBadRequest)
		return
	}
	added, err := w.names.Add(scopeFrom(r), body.Name)
	if err != nil {
		http.Error(rw, "name store error", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]bool{"added": added})
}
