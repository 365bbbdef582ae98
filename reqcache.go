package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"log"
	"net/http"
	"net/http/httputil"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

type FetchFunc func(req *http.Request) (*http.Response, error)

// ReqCache stores raw upstream responses keyed by a hash of the request. A nil
// *ReqCache fetches straight through.
type ReqCache struct {
	store  *Store
	ttl    time.Duration
	flight singleflight.Group
	log    *log.Logger
	now    func() time.Time
}

func NewReqCache(store *Store, ttl time.Duration) *ReqCache {
	return &ReqCache{
		store: store,
		ttl:   ttl,
		log:   log.New(os.Stderr, "(cache) ", log.LstdFlags),
		now:   time.Now,
	}
}

func (rc *ReqCache) PurgeExpired() {
	n, err := rc.store.DeleteBefore(rc.now().Unix())
	if err != nil {
		rc.log.Println("Purge failed:", err)
		return
	}
	if n > 0 {
		rc.log.Printf("Purged %d expired responses", n)
	}
}

// SchedulePurge registers PurgeExpired on c using a cron spec such as "@hourly".
func (rc *ReqCache) SchedulePurge(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, rc.PurgeExpired)
	return err
}

func requestKey(req *http.Request) (string, error) {
	reqBytes, err := httputil.DumpRequest(req, true)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(reqBytes)
	return hex.EncodeToString(sum[:]), nil
}

// CachedFetch returns a stored response for req or calls fetch. Identical
// requests in flight at the same time share one call to fetch. Only responses
// fetch returns without error are stored.
func (rc *ReqCache) CachedFetch(req *http.Request, fetch FetchFunc) (*http.Response, error) {
	if rc == nil {
		return fetch(req)
	}
	reqHash, err := requestKey(req)
	if err != nil {
		return nil, err
	}
	if data, ok := rc.store.GetResponse(reqHash, rc.now().Unix()); ok {
		res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), req)
		if err == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return res, nil
		}
		rc.log.Println("Problems decoding cached result", err.Error())
	}
	cacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := rc.flight.Do(reqHash, func() (interface{}, error) {
		resp, err := fetch(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		respBytes, err := httputil.DumpResponse(resp, true)
		if err != nil {
			return nil, err
		}
		rc.log.Println("MISS", req.URL.Host)
		if err := rc.store.StoreResponse(reqHash, respBytes, rc.now().Add(rc.ttl).Unix()); err != nil {
			rc.log.Println("Failed to store response:", err)
		}
		return respBytes, nil
	})
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(v.([]byte))), req)
}
