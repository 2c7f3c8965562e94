package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldenbookAPI/internal/affinity"
	"goldenbookAPI/internal/catalog"
	"goldenbookAPI/internal/geo"
	"goldenbookAPI/internal/types/establishment"
	"goldenbookAPI/services"
)

type fakeVerifier map[string]string

func (f fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type fakeGeocoder struct {
	mu     sync.Mutex
	locale string
}

func (g *fakeGeocoder) lastLocale() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locale
}

func (g *fakeGeocoder) Reverse(_ context.Context, at establishment.Coordinates, locale string) (*geo.Address, error) {
	g.mu.Lock()
	g.locale = locale
	g.mu.Unlock()
	if at.Latitude == 0 && at.Longitude == 0 {
		return nil, nil
	}
	if at.Latitude == 1 && at.Longitude == 1 {
		return nil, fmt.Errorf("%w: HTTP 503", geo.ErrUpstream)
	}
	return &geo.Address{Formatted: "Rua de Santa Catarina, Porto"}, nil
}

// failingSource fails every establishment fetch for one location and serves
// raw records, skipping normalization, for others.
type failingSource struct {
	catalog.Source
	location string
	raw      map[string][]establishment.Establishment
}

func (s failingSource) EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error) {
	if locationID == s.location {
		return nil, errors.New("catalog unavailable")
	}
	if list, ok := s.raw[locationID]; ok {
		return list, nil
	}
	return s.Source.EstablishmentsByLocation(ctx, locationID)
}

type testAPI struct {
	server   *httptest.Server
	geocoder *fakeGeocoder
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	coords := func(lat, lng float64) *establishment.Coordinates {
		return &establishment.Coordinates{Latitude: lat, Longitude: lng}
	}
	memory := catalog.NewMemorySource(
		[]establishment.Establishment{
			{ID: "g1", Name: "Casa Guedes", City: "porto", Categories: []string{"gastronomy"}, Subcategories: []string{"traditional"}, Rating: 4.2, ReviewCount: 5, Coordinates: coords(41.15, -8.60)},
			{ID: "g2", Name: "Da Terra", City: "porto", Categories: []string{"gastronomy"}, Subcategories: []string{"vegan"}, Rating: 4.8, ReviewCount: 0},
			{ID: "s1", Name: "Casa Oriental", City: "porto", Categories: []string{"shopping"}, Rating: 4.0, ReviewCount: 2, Coordinates: coords(41.14, -8.61)},
			{ID: "l1", Name: "Time Out Market", City: "lisbon", Categories: []string{"gastronomy"}, Rating: 4.5},
		},
		[]establishment.Location{{ID: "porto", Name: "Porto", Country: "PT"}},
		[]establishment.Category{{ID: "gastronomy", Title: "Gastronomy", Subcategories: map[string]string{"vegan": "Vegan", "traditional": "Traditional"}}},
	)
	source := failingSource{
		Source:   memory,
		location: "broken",
		raw: map[string][]establishment.Establishment{
			"braga": {
				{ID: "b1", Name: "Café Vianna", City: "braga", Categories: []string{"gastronomy"}, Rating: 4.4, Coordinates: coords(math.NaN(), -8.42)},
				{ID: "b2", Name: "Livraria Centésima Página", City: "braga", Rating: 4.6, Coordinates: coords(41.55, math.Inf(1))},
				{ID: "b3", Name: "Bom Jesus", City: "braga", Rating: 4.9, Coordinates: coords(41.55, -8.38)},
			},
		},
	}

	catalogService := services.NewCatalogService(source)
	discoveryService := services.NewDiscoveryService(catalogService, services.SearchSettings{
		SuggestionLimit: 5,
		BlurDelay:       20 * time.Millisecond,
	})
	t.Cleanup(discoveryService.Shutdown)

	toggler := affinity.NewToggler(affinity.NewMemoryStore(memory), affinity.NewMemoryGuard())
	affinityService := services.NewAffinityService(toggler, catalogService, discoveryService)
	geocoder := &fakeGeocoder{}

	router := NewRouter(RouterConfig{
		Catalog:   NewCatalogHandler(catalogService),
		Discovery: NewDiscoveryHandler(discoveryService),
		Search:    NewSearchHandler(discoveryService),
		Affinity:  NewAffinityHandler(affinityService),
		Geo:       NewGeoHandler(services.NewGeoService(geocoder)),
		Verifier:  fakeVerifier{"alice-token": "alice"},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, geocoder: geocoder}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, token string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "pt-PT")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (a *testAPI) list(t *testing.T, path, token string) []map[string]interface{} {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func ids(v interface{}) []string {
	out := []string{}
	for _, item := range v.([]interface{}) {
		out = append(out, item.(map[string]interface{})["id"].(string))
	}
	return out
}

func TestCatalogEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/locations/porto", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Porto", body["name"])

	resp, _ = api.do(t, http.MethodGet, "/api/v1/locations/faro", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/v1/categories/gastronomy", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	subs := body["subcategories"].([]interface{})
	require.Len(t, subs, 2)
	assert.Equal(t, "traditional", subs[0].(map[string]interface{})["id"])

	resp, body = api.do(t, http.MethodGet, "/api/v1/establishments/g1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Casa guedes", body["display_name"])
}

func TestBrowseEstablishments(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/locations/porto/establishments?category=gastronomy", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g2", "g1"}, ids(body["establishments"]))

	resp, body = api.do(t, http.MethodGet, "/api/v1/locations/porto/establishments?sort=most_liked", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g1", "s1", "g2"}, ids(body["establishments"]))

	resp, body = api.do(t, http.MethodGet, "/api/v1/locations/porto/establishments?map=true", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"g1", "s1"}, ids(body["establishments"]))

	resp, _ = api.do(t, http.MethodGet, "/api/v1/locations/porto/establishments?sort=cheapest", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/v1/locations/porto/establishments?lat=41.1", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBrowseEstablishments_NonFiniteCoordinates(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/locations/braga/establishments", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, ids(body["establishments"]))

	for _, item := range body["establishments"].([]interface{}) {
		e := item.(map[string]interface{})
		if e["id"] == "b3" {
			assert.Equal(t, true, e["mappable"])
			continue
		}
		assert.Equal(t, false, e["mappable"], e["id"])
		assert.NotContains(t, e, "coordinates")
	}

	resp, body = api.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"location_id": "braga"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, body["establishments"], 3)

	resp, body = api.do(t, http.MethodGet, "/api/v1/locations/braga/establishments?map=true", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"b3"}, ids(body["establishments"]))
}

func TestSessionLifecycle(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"location_id": "porto",
		"category_id": "gastronomy",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ready", body["state"])
	id := body["session_id"].(string)

	resp, body = api.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/selection", map[string]string{"subcategory": "vegan"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g2"}, ids(body["establishments"]))

	resp, body = api.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/selection", map[string]string{"subcategory": "vegan"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g2", "g1"}, ids(body["establishments"]), "selecting the active subcategory clears it")

	resp, body = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"?map=true", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g1"}, ids(body["establishments"]))

	resp, _ = api.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSession_LoadFailure(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"location_id": "broken"}, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed to load establishments", body["error"])
	assert.Equal(t, "failed", body["state"])
	id := body["session_id"].(string)

	resp, body = api.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/selection", map[string]string{"subcategory": "vegan"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "selection on a failed session does not blow up")
	assert.Equal(t, "failed", body["state"])
	assert.Empty(t, body["establishments"])
}

func TestSuggestionsAndHandoff(t *testing.T) {
	api := newTestAPI(t)

	_, body := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"location_id": "porto",
		"category_id": "gastronomy",
	}, "")
	id := body["session_id"].(string)

	resp, body := api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/suggestions?q=casa", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g1"}, ids(body["suggestions"]), "name matches outside the category are dropped")
	assert.EqualValues(t, 1, body["total"])

	resp, body = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/search", map[string]string{"query": "  casa "}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, id, body["session_id"])
	assert.Equal(t, "casa", body["query"])
	assert.Equal(t, []string{"g1"}, ids(body["establishments"]))

	resp, _ = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/search", map[string]string{"query": "   "}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAffinityEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodPost, "/api/v1/me/likes/g2", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, body := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"location_id": "porto"}, "")
	sessionID := body["session_id"].(string)

	resp, body = api.do(t, http.MethodPost, "/api/v1/me/likes/g2?sessionId="+sessionID, nil, "alice-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "committed", body["phase"])
	assert.EqualValues(t, 1, body["review_delta"])

	_, body = api.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, "")
	for _, item := range body["establishments"].([]interface{}) {
		e := item.(map[string]interface{})
		if e["id"] == "g2" {
			assert.EqualValues(t, 1, e["review_count"], "committed like reaches the session")
		}
	}

	resp, _ = api.do(t, http.MethodPost, "/api/v1/me/favorites/g1", nil, "alice-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	favorites := api.list(t, "/api/v1/me/favorites", "alice-token")
	require.Len(t, favorites, 1)
	assert.Equal(t, "g1", favorites[0]["id"])

	resp, body = api.do(t, http.MethodPost, "/api/v1/me/favorites/missing", nil, "alice-token")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "rolled_back", body["toggle"].(map[string]interface{})["phase"])

	resp, body = api.do(t, http.MethodDelete, "/api/v1/me/likes/g2", nil, "alice-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, -1, body["review_delta"])
}

func TestReverseGeocode(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/geo/reverse?lat=41.14&lon=-8.61", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Rua de Santa Catarina, Porto", body["address"].(map[string]interface{})["formatted"])
	assert.Equal(t, "pt", api.geocoder.lastLocale())

	resp, body = api.do(t, http.MethodGet, "/api/v1/geo/reverse?lat=0&lon=0", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["address"])

	resp, _ = api.do(t, http.MethodGet, "/api/v1/geo/reverse?lat=95&lon=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/v1/geo/reverse?lat=1&lon=1", nil, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Upstream request failed", body["error"])
}

func TestLiveSearch(t *testing.T) {
	api := newTestAPI(t)

	_, body := api.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"location_id": "porto"}, "")
	id := body["session_id"].(string)

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/v1/sessions/" + id + "/search/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "focus"}))
	msg := read()
	assert.Equal(t, false, msg["visible"], "no query, nothing to show")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "query", "query": "casa"}))
	msg = read()
	assert.Equal(t, "suggestions", msg["action"])
	assert.Equal(t, true, msg["visible"])
	assert.ElementsMatch(t, []string{"g1", "s1"}, ids(msg["suggestions"]))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "blur"}))
	msg = read()
	assert.Equal(t, false, msg["visible"], "panel hides after the blur delay")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "show_all"}))
	msg = read()
	assert.Equal(t, "handoff", msg["action"])
	assert.Equal(t, "ready", msg["state"])
	assert.NotEmpty(t, msg["session_id"])
}

func TestLiveSearch_UnknownSession(t *testing.T) {
	api := newTestAPI(t)

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/v1/sessions/nope/search/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}
