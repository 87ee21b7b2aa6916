package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ESBPayload is a two-company response in the TPEx emerging board shape
const ESBPayload = `[
 {"出表日期":"1131008","資料年月":"11309","公司代號":"1260","公司名稱":"富味鄉","產業別":"食品工業","營業收入-當月營收":"201442"},
 {"出表日期":"1131008","資料年月":"11309","公司代號":"1269","公司名稱":"乾杯","產業別":"觀光餐旅","營業收入-當月營收":"305117"}
]`

// MBPayload is a one-company response in the TPEx main board shape
const MBPayload = `[
 {"出表日期":"1131008","資料年月":"11309","公司代號":"1258","公司名稱":"其祥-KY","產業別":"其他","營業收入-當月營收":"27601"}
]`

// TWSEPayload is a three-company response whose field set differs from the TPEx ones
const TWSEPayload = `[
 {"出表日期":"1131008","資料年月":"11309","公司代號":"1101","公司名稱":"台泥","營業收入-當月營收":"11590340","備註":"-"},
 {"出表日期":"1131008","資料年月":"11309","公司代號":"1102","公司名稱":"亞泥","營業收入-當月營收":"6873925","備註":"-"},
 {"出表日期":"1131008","資料年月":"11309","公司代號":"1103","公司名稱":"嘉泥","營業收入-當月營收":"190034","備註":""}
]`

// Endpoint describes a canned response served by a RevenueServer
type Endpoint struct {
	Status int
	Body   string
}

// RevenueServer serves canned exchange API responses keyed by path and records
// the request headers it receives.
type RevenueServer struct {
	*httptest.Server

	mu        sync.Mutex
	endpoints map[string]Endpoint
	requests  []*http.Request
}

// NewRevenueServer starts a server that answers every path in endpoints.
// Unknown paths get 404. The server is closed when the test ends.
func NewRevenueServer(t *testing.T, endpoints map[string]Endpoint) *RevenueServer {
	t.Helper()

	rs := &RevenueServer{endpoints: endpoints}
	rs.Server = httptest.NewServer(http.HandlerFunc(rs.serve))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *RevenueServer) serve(w http.ResponseWriter, r *http.Request) {
	rs.mu.Lock()
	rs.requests = append(rs.requests, r.Clone(r.Context()))
	ep, ok := rs.endpoints[r.URL.Path]
	rs.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	status := ep.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(ep.Body))
}

// URL returns the absolute URL of path on the server
func (rs *RevenueServer) URL(path string) string {
	return rs.Server.URL + path
}

// Requests returns the requests received so far
func (rs *RevenueServer) Requests() []*http.Request {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*http.Request, len(rs.requests))
	copy(out, rs.requests)
	return out
}
