package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/playstack/internal/adapters/http/api"
	service "github.com/okian/playstack/internal/app"
	"github.com/okian/playstack/internal/domain/ratelimit"
	. "github.com/smartystreets/goconvey/convey"
)

const stacksBody = `{
  "events": [
    {"id":"e1","teamId":"t1","gameId":"g1","playFamily":"RUN","gainedYards":12,"down":1,"distance":10,"ballOn":"O25","createdAt":"2024-09-01T18:00:00Z"},
    {"id":"e2","teamId":"t1","gameId":"g1","playFamily":"PASS","gainedYards":2,"down":3,"distance":5,"ballOn":"O37","createdAt":"2024-09-01T18:00:20Z","turnover":true,"turnoverDetail":{"type":"INT"}}
  ],
  "games": [{"id":"g1","opponentName":"Hawks","startTime":"2024-09-01T17:00:00Z","status":"final"}]
}`

type failingStore struct{}

func (failingStore) Update(context.Context, string, ratelimit.UpdateFunc) (ratelimit.Bucket, error) {
	return ratelimit.Bucket{}, errors.New("connection refused")
}

func newTestServer(svc *service.Service) http.Handler {
	return api.NewServer(svc, svc).Handler()
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServerRoutes(t *testing.T) {
	Convey("Given a server over a fresh service", t, func() {
		h := newTestServer(service.New())

		Convey("Then healthz reports ok", func() {
			w := do(h, http.MethodGet, "/healthz", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("Then stats are served as JSON", func() {
			w := do(h, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, false)
		})

		Convey("Then metrics expose the custom registry", func() {
			do(h, http.MethodGet, "/healthz", "", nil)
			w := do(h, http.MethodGet, "/metrics", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "playstack_analytics_http_requests_total")
		})

		Convey("Then unknown routes and methods are rejected", func() {
			So(do(h, http.MethodGet, "/unknown", "", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/teams/t1/stacks", "", nil).Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Then every response carries a request ID", func() {
			w := do(h, http.MethodGet, "/healthz", "", nil)
			So(w.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)

			w = do(h, http.MethodGet, "/healthz", "", map[string]string{api.HeaderRequestID: "req-1"})
			So(w.Header().Get(api.HeaderRequestID), ShouldEqual, "req-1")
		})
	})
}

func TestPostStacks(t *testing.T) {
	Convey("Given a server with a two call budget", t, func() {
		clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 1, 18, 5, 0, 0, time.UTC))
		h := newTestServer(service.New(service.WithRateLimit(2, 50*time.Second), service.WithClock(clock)))
		tenant := map[string]string{api.HeaderTenantKey: "tenant-a"}

		Convey("When posting a batch", func() {
			w := do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, tenant)

			Convey("Then the summary is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				stacks := body["stacks"].([]any)
				So(len(stacks), ShouldEqual, 1)
				g1 := stacks[0].(map[string]any)
				So(g1["gameId"], ShouldEqual, "g1")
				So(g1["turnoverRate"], ShouldEqual, 0.5)
				So(body["cacheHit"], ShouldEqual, false)
			})
		})

		Convey("When the tenant exceeds its budget", func() {
			So(do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, tenant).Code, ShouldEqual, http.StatusOK)
			second := do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, tenant)
			So(second.Code, ShouldEqual, http.StatusOK)
			So(decode(second)["cacheHit"], ShouldEqual, true)

			w := do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, tenant)

			Convey("Then a 429 carries Retry-After and retry_at", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(w.Header().Get(api.HeaderRetryAfter), ShouldEqual, "50")
				body := decode(w)
				So(body["code"], ShouldEqual, "rate_limited")
				So(body["retry_at"], ShouldEqual, float64(clock.Now().Add(50*time.Second).UnixMilli()))
			})

			Convey("And a partial second rounds Retry-After up", func() {
				clock.Advance(10*time.Second + 200*time.Millisecond)
				w := do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, tenant)
				So(w.Header().Get(api.HeaderRetryAfter), ShouldEqual, "40")
			})

			Convey("And another tenant key is still served", func() {
				w := do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, map[string]string{api.HeaderTenantKey: "tenant-b"})
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(h, http.MethodPost, "/teams/t1/stacks", "{", tenant)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "bad_request")
		})
	})

	Convey("Given a server whose limiter store is down", t, func() {
		h := newTestServer(service.New(service.WithLimiterStore(failingStore{})))

		Convey("Then summaries fail with 503", func() {
			w := do(h, http.MethodPost, "/teams/t1/stacks", stacksBody, nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestPreferencesAndSummary(t *testing.T) {
	Convey("Given a started service behind the server", t, func() {
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := newTestServer(svc)

		Convey("When no events were ingested", func() {
			So(do(h, http.MethodGet, "/teams/t1/summary", "", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/teams/t1/preferences", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When events are posted", func() {
			w := do(h, http.MethodPost, "/teams/t1/events", stacksBody, nil)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode(w)["events"], ShouldEqual, 2.0)

			Convey("Then the recomputed summary becomes available", func() {
				var summary *httptest.ResponseRecorder
				for i := 0; i < 200; i++ {
					summary = do(h, http.MethodGet, "/teams/t1/summary", "", nil)
					if summary.Code == http.StatusOK {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(summary.Code, ShouldEqual, http.StatusOK)
				agg := decode(summary)["aggregate"].(map[string]any)
				So(agg["plays"], ShouldEqual, 2.0)
			})
		})

		Convey("When an event has no ID", func() {
			w := do(h, http.MethodPost, "/teams/t1/events", `{"events":[{"teamId":"t1"}]}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an event belongs to another team", func() {
			w := do(h, http.MethodPost, "/teams/t1/events", `{"events":[{"id":"x","teamId":"t2"}]}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When preferences are stored", func() {
			w := do(h, http.MethodPut, "/teams/t1/preferences", `{"explosiveRunYards":18,"explosivePassYards":30}`, nil)
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then they are read back", func() {
				w := do(h, http.MethodGet, "/teams/t1/preferences", "", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["explosiveRunYards"], ShouldEqual, 18.0)
			})
		})

		Convey("When preferences are invalid", func() {
			w := do(h, http.MethodPut, "/teams/t1/preferences", `{"explosiveRunYards":-1}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestFreshness(t *testing.T) {
	Convey("Given a server", t, func() {
		clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC))
		h := newTestServer(service.New(service.WithClock(clock)))
		base := time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC).UnixMilli()

		Convey("When checking at the fresh boundary", func() {
			w := do(h, http.MethodGet, "/freshness?last_updated=2024-09-01T18:00:00Z&now="+itoa(base+30000), "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["state"], ShouldEqual, "fresh")
		})

		Convey("When checking past the stale boundary", func() {
			w := do(h, http.MethodGet, "/freshness?last_updated=2024-09-01T18:00:00Z&now="+itoa(base+150001), "", nil)
			So(decode(w)["state"], ShouldEqual, "offline")
		})

		Convey("When now is omitted the server clock is used", func() {
			clock.Advance(time.Minute)
			w := do(h, http.MethodGet, "/freshness?last_updated=2024-09-01T18:00:00Z", "", nil)
			body := decode(w)
			So(body["state"], ShouldEqual, "stale")
			So(body["now"], ShouldEqual, float64(base+60000))
		})

		Convey("When last_updated is missing", func() {
			w := do(h, http.MethodGet, "/freshness", "", nil)
			body := decode(w)
			So(body["state"], ShouldEqual, "offline")
			So(body["label"], ShouldEqual, "never")
		})

		Convey("When now is not a number", func() {
			w := do(h, http.MethodGet, "/freshness?now=soon", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
