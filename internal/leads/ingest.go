package leads

import (
	"context"
	"fmt"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/datatypes"

	"github.com/ecolote/leadengine/pkg/candidates"
	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/phone"
	"github.com/ecolote/leadengine/pkg/types"
)

// Candidate is an incoming record that may become a lead.
type Candidate = candidates.Candidate

// CandidateSource fetches candidates for a single search term.
type CandidateSource interface {
	Fetch(ctx context.Context, q candidates.Query) ([]candidates.Candidate, error)
}

const defaultFetchConcurrency = 4

// IngestParams configures ingestion and replenishment.
type IngestParams struct {
	Source              CandidateSource
	PhoneRegion         string
	MinAvailablePerTerm int
	FetchConcurrency    int
	DefaultCity         string
	DefaultState        string
	DefaultTerms        []string
}

type ingester struct {
	engine   *Engine
	source   CandidateSource
	phones   phone.Normalizer
	validate *validator.Validate
	params   IngestParams
}

type fetchOutcome struct {
	term       string
	candidates []Candidate
	err        error
}

func newIngester(engine *Engine, params IngestParams) (*ingester, error) {
	if params.MinAvailablePerTerm < 0 {
		return nil, fmt.Errorf("min available per term must not be negative")
	}
	if params.FetchConcurrency <= 0 {
		params.FetchConcurrency = defaultFetchConcurrency
	}
	return &ingester{
		engine:   engine,
		source:   params.Source,
		phones:   phone.NewNormalizer(params.PhoneRegion),
		validate: validator.New(),
		params:   params,
	}, nil
}

// Ingest stores each candidate that is not a duplicate of an existing lead.
// Candidates run in order so later ones see earlier inserts.
func (i *ingester) Ingest(ctx context.Context, batch []Candidate, actor types.Actor) (*IngestResult, error) {
	result := &IngestResult{}
	repo := i.engine.Leads()
	logg := i.engine.logg

	for idx := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		candidate := batch[idx]
		candidate.Name = strings.TrimSpace(candidate.Name)
		candidate.FormattedAddress = strings.TrimSpace(candidate.FormattedAddress)

		if err := i.validate.Struct(candidate); err != nil {
			result.FailedCount++
			logg.Warn(logg.WithField(ctx, "candidate", candidate.Name), "candidate rejected: "+err.Error())
			continue
		}

		pool, err := repo.FindDedupPool(ctx, DedupQuery{
			NameToken:    NameToken(candidate.Name),
			AddressToken: AddressToken(candidate.FormattedAddress),
			PlaceID:      strings.TrimSpace(candidate.PlaceID),
		})
		if err != nil {
			result.FailedCount++
			logg.Error(logg.WithField(ctx, "candidate", candidate.Name), "dedup lookup failed", err)
			continue
		}
		if dup := FindDuplicate(candidate, pool); dup != nil {
			result.DiscardedCount++
			continue
		}

		lead := i.toLead(candidate, actor)
		if err := repo.Insert(ctx, lead); err != nil {
			if db.IsUniqueViolation(err, "place_id") {
				result.DiscardedCount++
				continue
			}
			result.FailedCount++
			logg.Error(logg.WithField(ctx, "candidate", candidate.Name), "insert lead failed", err)
			continue
		}
		result.NewCount++
		i.engine.Notify(ctx, lead, enums.LeadEventIngested, actorRef(actor))
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"new":       result.NewCount,
		"discarded": result.DiscardedCount,
		"failed":    result.FailedCount,
	}), "candidate batch ingested")
	return result, nil
}

// Replenish tops up every term whose available count is under the threshold.
func (i *ingester) Replenish(ctx context.Context, input ReplenishInput) (*ReplenishResult, error) {
	if i.source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeIngestion, "candidate source not configured")
	}
	city := firstNonEmpty(input.City, i.params.DefaultCity)
	state := firstNonEmpty(input.State, i.params.DefaultState)
	terms := cleanTerms(input.Terms)
	if len(terms) == 0 {
		terms = cleanTerms(i.params.DefaultTerms)
	}
	if len(terms) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one term required")
	}

	counts, err := i.engine.Leads().CountAvailableByType(ctx, terms)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available leads")
	}

	statuses := make([]TermStatus, 0, len(terms))
	below := []string{}
	for _, term := range terms {
		status := TermStatus{Term: term, Available: counts[term]}
		if counts[term] < int64(i.params.MinAvailablePerTerm) {
			status.Requested = true
			below = append(below, term)
		}
		statuses = append(statuses, status)
	}

	result := &ReplenishResult{Terms: statuses}
	if len(below) == 0 {
		return result, nil
	}

	outcomes, err := i.fetchAll(ctx, city, state, below)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIngestion, err, "fetch candidates")
	}

	byTerm := make(map[string]fetchOutcome, len(outcomes))
	var fetchErrs error
	batch := []Candidate{}
	for _, outcome := range outcomes {
		byTerm[outcome.term] = outcome
		if outcome.err != nil {
			fetchErrs = multierr.Append(fetchErrs, fmt.Errorf("%s: %w", outcome.term, outcome.err))
			continue
		}
		batch = append(batch, outcome.candidates...)
	}
	for idx := range result.Terms {
		outcome, ok := byTerm[result.Terms[idx].Term]
		if !ok {
			continue
		}
		result.Terms[idx].Fetched = len(outcome.candidates)
		if outcome.err != nil {
			result.Terms[idx].Error = outcome.err.Error()
		}
	}

	if len(multierr.Errors(fetchErrs)) == len(below) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIngestion, fetchErrs, "candidate source unavailable").
			WithDetails(map[string]any{"terms": below})
	}

	ingested, err := i.Ingest(ctx, batch, input.Actor)
	if err != nil {
		return nil, err
	}
	result.Ingest = *ingested
	return result, nil
}

func (i *ingester) fetchAll(ctx context.Context, city, state string, terms []string) ([]fetchOutcome, error) {
	pool := pond.NewResultPool[fetchOutcome](i.params.FetchConcurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, term := range terms {
		term := term
		group.Submit(func() fetchOutcome {
			found, err := i.source.Fetch(ctx, candidates.Query{City: city, State: state, Term: term})
			return fetchOutcome{term: term, candidates: found, err: err}
		})
	}
	return group.Wait()
}

func (i *ingester) toLead(c Candidate, actor types.Actor) *models.Lead {
	lead := &models.Lead{
		Name:             c.Name,
		FormattedAddress: c.FormattedAddress,
		City:             strings.TrimSpace(c.City),
		State:            strings.TrimSpace(c.State),
		Neighborhood:     strings.TrimSpace(c.Neighborhood),
		ImageURLs:        datatypes.JSONSlice[string](c.ImageURLs),
		Type:             strings.TrimSpace(c.Type),
		Latitude:         c.Latitude,
		Longitude:        c.Longitude,
		CollectedAt:      c.CollectedAt,
		Status:           enums.LeadStatusAvailable,
		ContactHistory:   types.ContactHistory{},
	}
	if lead.ImageURLs == nil {
		lead.ImageURLs = datatypes.JSONSlice[string]{}
	}
	if placeID := strings.TrimSpace(c.PlaceID); placeID != "" {
		lead.PlaceID = &placeID
	}
	if normalized := i.phones.NormalizeE164(c.Phone); normalized != "" {
		lead.Phone = &normalized
	}
	now := i.engine.Now()
	lead.LastStatusUpdateAt = &now
	changedBy := models.SystemActorID
	if ref := actorRef(actor); ref != nil {
		changedBy = *ref
	}
	lead.LastChangedBy = &changedBy
	return lead
}

func actorRef(actor types.Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

func cleanTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		trimmed := strings.TrimSpace(term)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
