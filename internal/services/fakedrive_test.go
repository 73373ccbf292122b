package services

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/ratelimit"
)

// fakeDrive is an in-memory stand-in for the remote drive API.
type fakeDrive struct {
	srv *httptest.Server

	mu         sync.Mutex
	shares     map[string]map[string][]models.Node // pwd_id -> dir -> children
	owners     map[string]bool                     // pwd_id -> is_owner
	own        map[string][]models.Node            // own storage dir -> children
	content    map[string][]byte                   // fid -> file bytes
	shareFails map[string]int                      // fid -> share creations left to fail
	saveFails  map[string]int                      // pwd_id -> saves left to fail
	streamFail map[string]int                      // fid -> streams left to fail
	staleOnce  bool
	nickname   string

	tasks        map[string]map[string]interface{}
	taskSeq      int
	shareCalls   map[string]int
	shareBodies  []map[string]interface{}
	saveBodies   []map[string]interface{}
	downloadUAs  []string
	createdNames []string
}

func newFakeDrive(t *testing.T) *fakeDrive {
	t.Helper()
	d := &fakeDrive{
		shares:     make(map[string]map[string][]models.Node),
		owners:     make(map[string]bool),
		own:        make(map[string][]models.Node),
		content:    make(map[string][]byte),
		shareFails: make(map[string]int),
		saveFails:  make(map[string]int),
		streamFail: make(map[string]int),
		tasks:      make(map[string]map[string]interface{}),
		shareCalls: make(map[string]int),
		nickname:   "alice",
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc(constants.PathAccountInfo, d.handleAccount)
	mux.HandleFunc(constants.PathShareToken, d.handleToken)
	mux.HandleFunc(constants.PathShareDetail, d.handleShareDetail)
	mux.HandleFunc(constants.PathShareSave, d.handleSave)
	mux.HandleFunc(constants.PathFileSort, d.handleFileSort)
	mux.HandleFunc(constants.PathFile, d.handleCreateFolder)
	mux.HandleFunc(constants.PathFileDownload, d.handleDownload)
	mux.HandleFunc(constants.PathTask, d.handleTask)
	mux.HandleFunc(constants.PathShare, d.handleShare)
	mux.HandleFunc(constants.PathSharePassword, d.handleSharePassword)
	mux.HandleFunc("/dl/", d.handleStream)

	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

func (d *fakeDrive) client(t *testing.T) *api.Client {
	t.Helper()
	cfg := config.New()
	cfg.Cookie = "__uid=test"
	cfg.DriveURL = d.srv.URL
	cfg.SaveURL = d.srv.URL
	cfg.PanURL = d.srv.URL
	c, err := api.NewClient(cfg)
	require.NoError(t, err)
	c.SetRateLimiter(ratelimit.NewRateLimiter(10000, 10000))
	return c
}

func (d *fakeDrive) shareURL(pwdID string) string {
	return d.srv.URL + "/s/" + pwdID
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func writeEnvelope(w nethttp.ResponseWriter, data interface{}, meta map[string]int) {
	body := map[string]interface{}{"status": 200, "code": 0, "message": "ok", "data": data}
	if meta != nil {
		body["metadata"] = meta
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeCode(w nethttp.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 400, "code": code, "message": msg})
}

func decodeBody(r *nethttp.Request) map[string]interface{} {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func page(all []models.Node, r *nethttp.Request) ([]models.Node, map[string]int) {
	q := r.URL.Query()
	p, _ := strconv.Atoi(q.Get("_page"))
	size, _ := strconv.Atoi(q.Get("_size"))
	if p < 1 {
		p = 1
	}
	if size < 1 {
		size = constants.PageSize
	}
	start := min((p-1)*size, len(all))
	end := min(start+size, len(all))
	return all[start:end], map[string]int{"_page": p, "_size": size, "_total": len(all), "_count": end - start}
}

func (d *fakeDrive) newTask(data map[string]interface{}) string {
	d.taskSeq++
	id := fmt.Sprintf("task-%d", d.taskSeq)
	data["task_id"] = id
	data["status"] = constants.TaskStatusCompleted
	d.tasks[id] = data
	return id
}

func (d *fakeDrive) handleAccount(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if d.nickname == "" {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "code": "OK", "data": nil})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "code": "OK", "data": map[string]string{"nickname": d.nickname}})
}

func (d *fakeDrive) handleToken(w nethttp.ResponseWriter, r *nethttp.Request) {
	body := decodeBody(r)
	writeEnvelope(w, map[string]string{"stoken": "st-" + body["pwd_id"].(string)}, nil)
}

func (d *fakeDrive) handleShareDetail(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := r.URL.Query()
	pwdID := q.Get("pwd_id")
	if q.Get("stoken") != "st-"+pwdID {
		writeCode(w, 41004, "bad stoken")
		return
	}
	nodes, meta := page(d.shares[pwdID][q.Get("pdir_fid")], r)
	isOwner := 0
	if d.owners[pwdID] {
		isOwner = 1
	}
	writeEnvelope(w, map[string]interface{}{"is_owner": isOwner, "list": nodes}, meta)
}

func (d *fakeDrive) handleFileSort(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes, meta := page(d.own[r.URL.Query().Get("pdir_fid")], r)
	writeEnvelope(w, map[string]interface{}{"list": nodes}, meta)
}

func (d *fakeDrive) handleSave(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := decodeBody(r)
	pwdID, _ := body["pwd_id"].(string)
	if d.saveFails[pwdID] > 0 {
		d.saveFails[pwdID]--
		writeCode(w, 99999, "server busy")
		return
	}
	d.saveBodies = append(d.saveBodies, body)
	id := d.newTask(map[string]interface{}{
		"task_title": "save",
		"save_as":    map[string]string{"to_pdir_name": "Movies"},
	})
	writeEnvelope(w, map[string]string{"task_id": id}, nil)
}

func (d *fakeDrive) handleCreateFolder(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := decodeBody(r)
	name, _ := body["file_name"].(string)
	for _, existing := range d.createdNames {
		if existing == name {
			writeCode(w, constants.CodeFolderNameConflict, "file name conflict")
			return
		}
	}
	d.createdNames = append(d.createdNames, name)
	writeEnvelope(w, map[string]string{"fid": "dir-" + name}, nil)
}

func (d *fakeDrive) findShared(fid string) (models.Node, bool) {
	for _, dirs := range d.shares {
		for _, children := range dirs {
			for _, n := range children {
				if n.ID == fid {
					return n, true
				}
			}
		}
	}
	return models.Node{}, false
}

func (d *fakeDrive) handleDownload(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloadUAs = append(d.downloadUAs, r.Header.Get("User-Agent"))
	if d.staleOnce && r.Header.Get("User-Agent") != constants.UserAgentDesktop {
		writeCode(w, constants.CodeStaleSignature, "client version too old")
		return
	}

	body := decodeBody(r)
	var infos []map[string]interface{}
	for _, raw := range body["fids"].([]interface{}) {
		fid := raw.(string)
		n, ok := d.findShared(fid)
		if !ok {
			continue
		}
		infos = append(infos, map[string]interface{}{
			"fid":          n.ID,
			"file_name":    n.Name,
			"pdir_fid":     n.ParentID,
			"size":         len(d.content[fid]),
			"download_url": d.srv.URL + "/dl/" + fid,
		})
	}
	writeEnvelope(w, infos, nil)
}

func (d *fakeDrive) handleStream(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	fid := strings.TrimPrefix(r.URL.Path, "/dl/")
	data := d.content[fid]
	fail := d.streamFail[fid] > 0
	if fail {
		d.streamFail[fid]--
	}
	d.mu.Unlock()

	if fail {
		w.WriteHeader(nethttp.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (d *fakeDrive) handleTask(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[r.URL.Query().Get("task_id")]
	if !ok {
		writeCode(w, 32001, "task not found")
		return
	}
	writeEnvelope(w, task, nil)
}

func (d *fakeDrive) handleShare(w nethttp.ResponseWriter, r *nethttp.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := decodeBody(r)
	fids := body["fid_list"].([]interface{})
	fid := fids[0].(string)
	d.shareCalls[fid]++
	if d.shareFails[fid] > 0 {
		d.shareFails[fid]--
		writeCode(w, 99999, "share busy")
		return
	}
	d.shareBodies = append(d.shareBodies, body)
	id := d.newTask(map[string]interface{}{"task_title": body["title"], "share_id": "sh-" + fid})
	writeEnvelope(w, map[string]string{"task_id": id}, nil)
}

func (d *fakeDrive) handleSharePassword(w nethttp.ResponseWriter, r *nethttp.Request) {
	body := decodeBody(r)
	shareID := body["share_id"].(string)
	writeEnvelope(w, map[string]string{"share_url": "https://pan.quark.cn/s/" + shareID, "title": shareID}, nil)
}
