package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/1001-digital/ponder-artifacts/internal/models"
)

const testCollection = "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"

// stubService scripts the cache core's behavior per test.
type stubService struct {
	token      *models.TokenRecord
	collection *models.CollectionRecord
	getErr     error
	refreshErr error
	fresh      bool

	refreshedToken *models.TokenRecord // replaces token after a successful refresh
	refreshCalls   int
}

func (s *stubService) GetToken(context.Context, string, string) (*models.TokenRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.token, nil
}

func (s *stubService) RefreshToken(context.Context, string, string) error {
	s.refreshCalls++
	if s.refreshErr != nil {
		return s.refreshErr
	}
	if s.refreshedToken != nil {
		s.token = s.refreshedToken
	}
	return nil
}

func (s *stubService) GetCollection(context.Context, string) (*models.CollectionRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.collection, nil
}

func (s *stubService) RefreshCollection(context.Context, string) error {
	s.refreshCalls++
	return s.refreshErr
}

func (s *stubService) IsFresh(int64) bool { return s.fresh }

func doRequest(t *testing.T, svc ArtifactService, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	server := NewServer(":0", svc, zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) models.TokenRecord {
	t.Helper()
	var record models.TokenRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	return record
}

func TestGetToken_FreshRecordSkipsRefresh(t *testing.T) {
	svc := &stubService{
		token: &models.TokenRecord{Collection: testCollection, TokenID: "1", Standard: models.StandardERC721, Name: "Fresh"},
		fresh: true,
	}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/1")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Fresh", decodeToken(t, rec).Name)
	require.Zero(t, svc.refreshCalls, "a fresh record must not trigger a refresh")
}

func TestGetToken_StaleRecordRefreshes(t *testing.T) {
	svc := &stubService{
		token:          &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "Stale"},
		refreshedToken: &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "Refreshed"},
	}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/1")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Refreshed", decodeToken(t, rec).Name)
	require.Equal(t, 1, svc.refreshCalls)
}

func TestGetToken_RefreshFailureFallsBackToStale(t *testing.T) {
	svc := &stubService{
		token:      &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "Stale"},
		refreshErr: errors.New("store down"),
	}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/1")

	require.Equal(t, http.StatusOK, rec.Code, "a stale record beats an error")
	require.Equal(t, "Stale", decodeToken(t, rec).Name)
}

func TestGetToken_RefreshFailureWithoutRecordIsBadGateway(t *testing.T) {
	svc := &stubService{refreshErr: errors.New("store down")}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/1")

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetToken_AbsentRecordIsRefreshedThenServed(t *testing.T) {
	svc := &stubService{
		refreshedToken: &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "New"},
	}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/1")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "New", decodeToken(t, rec).Name)
}

func TestForceRefreshToken_RefreshesEvenWhenFresh(t *testing.T) {
	svc := &stubService{
		token:          &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "Old"},
		refreshedToken: &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "Forced"},
		fresh:          true,
	}

	rec := doRequest(t, svc, "POST", "/api/v1/tokens/"+testCollection+"/1/refresh")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Forced", decodeToken(t, rec).Name)
	require.Equal(t, 1, svc.refreshCalls)
}

func TestForceRefreshToken_FailureFallsBackToCached(t *testing.T) {
	svc := &stubService{
		token:      &models.TokenRecord{Collection: testCollection, TokenID: "1", Name: "Cached"},
		refreshErr: errors.New("store down"),
		fresh:      true,
	}

	rec := doRequest(t, svc, "POST", "/api/v1/tokens/"+testCollection+"/1/refresh")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Cached", decodeToken(t, rec).Name)
}

func TestForceRefreshToken_FailureWithoutRecordIsBadGateway(t *testing.T) {
	svc := &stubService{refreshErr: errors.New("store down")}

	rec := doRequest(t, svc, "POST", "/api/v1/tokens/"+testCollection+"/1/refresh")

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetToken_ValidatesParams(t *testing.T) {
	svc := &stubService{}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/not-an-address/1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/not-a-number")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetToken_StoreReadErrorIsInternal(t *testing.T) {
	svc := &stubService{getErr: errors.New("connection refused")}

	rec := doRequest(t, svc, "GET", "/api/v1/tokens/"+testCollection+"/1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetCollection_StaleFallback(t *testing.T) {
	svc := &stubService{
		collection: &models.CollectionRecord{Collection: testCollection, Name: "Stale Collection"},
		refreshErr: errors.New("store down"),
	}

	rec := doRequest(t, svc, "GET", "/api/v1/collections/"+testCollection)

	require.Equal(t, http.StatusOK, rec.Code)

	var record models.CollectionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	require.Equal(t, "Stale Collection", record.Name)
}

func TestGetCollection_ValidatesAddress(t *testing.T) {
	rec := doRequest(t, &stubService{}, "GET", "/api/v1/collections/0x123")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, &stubService{}, "GET", "/health")
	require.Equal(t, http.StatusOK, rec.Code)
}
