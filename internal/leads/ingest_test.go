package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolote/leadengine/pkg/candidates"
	"github.com/ecolote/leadengine/pkg/config"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/types"
)

func TestIngestSkipsDuplicateWithinBatch(t *testing.T) {
	f := newFixture(t, nil)
	batch := []Candidate{
		{Name: "Padaria Sol", FormattedAddress: "Rua A, 10", Type: "bakery", Phone: "(19) 99876-5432"},
		{Name: "padaria sol", FormattedAddress: "rua a, 10", Type: "bakery"},
		{Name: "Academia Forte", FormattedAddress: "Av. Brasil, 200", Type: "gym", PlaceID: "gym-1"},
	}

	admin := adminActor()
	result, err := f.svc.Ingest(context.Background(), batch, admin)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{NewCount: 2, DiscardedCount: 1}, *result)

	var stored []models.Lead
	require.NoError(t, f.client.DB().Order("name").Find(&stored).Error)
	require.Len(t, stored, 2)
	for _, lead := range stored {
		assert.Equal(t, enums.LeadStatusAvailable, lead.Status)
		require.NotNil(t, lead.LastStatusUpdateAt)
		assert.True(t, lead.LastStatusUpdateAt.Equal(f.now))
		assert.Nil(t, lead.AssignedTo)
		require.NotNil(t, lead.LastChangedBy)
		assert.Equal(t, admin.ID, *lead.LastChangedBy)
	}
	require.NotNil(t, stored[1].Phone)
	assert.Equal(t, "+5519998765432", *stored[1].Phone)
	assert.Equal(t, []enums.LeadEvent{enums.LeadEventIngested, enums.LeadEventIngested}, f.publisher.actions())
}

func TestIngestDiscardsStoredDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, func(l *models.Lead) {
		l.Name = "Farmacia Central"
		l.FormattedAddress = "Rua B, 5"
	})

	batch := []Candidate{
		{Name: "Oficina Rapida", FormattedAddress: "Rua E, 7"},
		{Name: "FARMACIA CENTRAL", FormattedAddress: "rua b, 5", Latitude: ptr(-22.9), Longitude: ptr(-47.06)},
		{Name: "Pet Shop Amigo", FormattedAddress: "Rua F, 9"},
	}
	result, err := f.svc.Ingest(context.Background(), batch, adminActor())
	require.NoError(t, err)
	assert.Equal(t, IngestResult{NewCount: 2, DiscardedCount: 1}, *result)
}

func TestIngestWithoutActorStampsSystemActor(t *testing.T) {
	f := newFixture(t, nil)
	result, err := f.svc.Ingest(context.Background(), []Candidate{{Name: "Loja Nova", FormattedAddress: "Rua G, 3"}}, types.Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, result.NewCount)

	var stored models.Lead
	require.NoError(t, f.client.DB().First(&stored, "name = ?", "Loja Nova").Error)
	require.NotNil(t, stored.LastChangedBy)
	assert.Equal(t, models.SystemActorID, *stored.LastChangedBy)
}

func TestIngestCountsInvalidAndPlaceIDDuplicates(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, func(l *models.Lead) {
		l.Name = "Mercado Bom"
		l.FormattedAddress = "Rua Z, 1"
		l.PlaceID = ptr("m-1")
	})

	batch := []Candidate{
		{Name: "", FormattedAddress: "Rua C"},
		{Name: "No address"},
		{Name: "Mercado Novo", FormattedAddress: "Outra rua", PlaceID: "m-1"},
		{Name: "Lat out of range", FormattedAddress: "Rua D", Latitude: ptr(120.0)},
	}
	result, err := f.svc.Ingest(context.Background(), batch, adminActor())
	require.NoError(t, err)
	assert.Equal(t, IngestResult{DiscardedCount: 1, FailedCount: 3}, *result)
}

func newCandidateServer(t *testing.T, handler func(q candidates.Query) (int, []Candidate)) (*candidates.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var q candidates.Query
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		status, found := handler(q)
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": found})
	}))
	t.Cleanup(srv.Close)

	client, err := candidates.NewClient(config.CandidatesConfig{
		BaseURL:       srv.URL,
		RatePerSecond: 100,
		Burst:         10,
		Timeout:       5 * time.Second,
	}, candidates.WithHTTPClient(srv.Client()), candidates.WithInitialRetryInterval(time.Millisecond))
	require.NoError(t, err)
	return client, &calls
}

func TestReplenishFetchesTermsBelowThreshold(t *testing.T) {
	source, calls := newCandidateServer(t, func(q candidates.Query) (int, []Candidate) {
		assert.Equal(t, "Campinas", q.City)
		assert.Equal(t, "SP", q.State)
		return http.StatusOK, []Candidate{
			{Name: "Academia " + q.Term, FormattedAddress: "Rua G, 1"},
			{Name: "Studio " + q.Term, FormattedAddress: "Rua H, 2"},
		}
	})
	f := newFixture(t, source)
	f.seed(t, func(l *models.Lead) {
		l.Name = "Padaria Um"
		l.FormattedAddress = "Rua 1"
	})
	f.seed(t, func(l *models.Lead) {
		l.Name = "Padaria Dois"
		l.FormattedAddress = "Rua 2"
	})

	result, err := f.svc.Replenish(context.Background(), ReplenishInput{Terms: []string{"bakery", "gym", " gym "}, Actor: adminActor()})
	require.NoError(t, err)
	require.Len(t, result.Terms, 2)

	assert.Equal(t, TermStatus{Term: "bakery", Available: 2}, result.Terms[0])
	assert.Equal(t, TermStatus{Term: "gym", Available: 0, Fetched: 2, Requested: true}, result.Terms[1])
	assert.Equal(t, IngestResult{NewCount: 2}, result.Ingest)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Lead{}).Where("type = ?", "gym").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestReplenishReportsPartialAndTotalFailures(t *testing.T) {
	source, _ := newCandidateServer(t, func(q candidates.Query) (int, []Candidate) {
		if q.Term == "gym" {
			return http.StatusBadRequest, nil
		}
		return http.StatusOK, []Candidate{{Name: "Loja " + q.Term, FormattedAddress: "Rua X"}}
	})
	f := newFixture(t, source)

	result, err := f.svc.Replenish(context.Background(), ReplenishInput{Terms: []string{"gym", "pet"}, Actor: adminActor()})
	require.NoError(t, err)
	require.Len(t, result.Terms, 2)
	assert.NotEmpty(t, result.Terms[0].Error)
	assert.Empty(t, result.Terms[1].Error)
	assert.Equal(t, 1, result.Ingest.NewCount)

	_, err = f.svc.Replenish(context.Background(), ReplenishInput{Terms: []string{"gym"}, Actor: adminActor()})
	assert.Equal(t, pkgerrors.CodeIngestion, pkgerrors.CodeOf(err))
}

func TestReplenishRequiresSourceAndTerms(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Replenish(context.Background(), ReplenishInput{Terms: []string{"gym"}})
	assert.Equal(t, pkgerrors.CodeIngestion, pkgerrors.CodeOf(err))

	source, _ := newCandidateServer(t, func(candidates.Query) (int, []Candidate) { return http.StatusOK, nil })
	f = newFixture(t, source)
	_, err = f.svc.Replenish(context.Background(), ReplenishInput{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
