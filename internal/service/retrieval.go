package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/clausebank/clausebank/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultRetrievalLimit = 10

	// entityStagePenalty discounts matches surfaced indirectly via query
	// entities rather than the full query.
	entityStagePenalty = 0.8
	// subjectExpansionScore is the fixed score for clauses pulled in only
	// because they share a subject with an already-surfaced clause.
	subjectExpansionScore = 0.3
	subjectExpansionFloor = 0.7

	taskPreferenceWeight = 0.9
	taskFactWeight       = 0.8
	taskSkillScore       = 0.7

	// overlapBonus rewards exact query-token overlap with subject or predicate.
	overlapBonus = 0.05
)

// RetrievalConfig holds the fusion weights. Keyword and semantic inputs are
// expected normalized to [0,1] (keyword scores are rescaled by the batch
// maximum before fusing); weights are tunable, not fixed constants.
type RetrievalConfig struct {
	SemanticWeight   float64
	KeywordWeight    float64
	RecencyWeight    float64
	ConfidenceWeight float64
	MinSimilarity    float64
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		SemanticWeight:   0.35,
		KeywordWeight:    0.35,
		RecencyWeight:    0.1,
		ConfidenceWeight: 0.2,
		MinSimilarity:    0.5,
	}
}

// RetrievalOptions bounds one query.
type RetrievalOptions struct {
	Limit          int
	Types          []domain.ClauseType
	MinConfidence  float64
	IncludeExpired bool
}

type RetrievedClause struct {
	domain.Clause
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
}

type RetrievalResult struct {
	Clauses []RetrievedClause `json:"clauses"`
	// Method is "hybrid" when the embedding collaborator contributed,
	// "keyword" in degraded mode.
	Method string `json:"retrieval_method"`
	Stages int    `json:"stages,omitempty"`
}

// TaskContext buckets clauses relevant to a task.
type TaskContext struct {
	Preferences []RetrievedClause `json:"preferences"`
	Facts       []RetrievedClause `json:"facts"`
	Skills      []RetrievedClause `json:"skills"`
	Combined    []RetrievedClause `json:"combined"`
}

// RetrievalEngine fuses keyword relevance, semantic similarity, confidence,
// and recency into a ranked list. The embedding collaborator is optional;
// without it, its weight transfers to the keyword signal.
type RetrievalEngine struct {
	clauses    domain.ClauseStore
	textIndex  domain.TextIndex
	similarity domain.EmbeddingSimilarity
	audit      domain.AuditStore
	cfg        RetrievalConfig
	logger     *zap.Logger
}

func NewRetrievalEngine(cs domain.ClauseStore, ti domain.TextIndex, sim domain.EmbeddingSimilarity, audit domain.AuditStore, cfg RetrievalConfig, logger *zap.Logger) *RetrievalEngine {
	if cfg.SemanticWeight == 0 && cfg.KeywordWeight == 0 {
		cfg = DefaultRetrievalConfig()
	}
	return &RetrievalEngine{
		clauses:    cs,
		textIndex:  ti,
		similarity: sim,
		audit:      audit,
		cfg:        cfg,
		logger:     logger,
	}
}

// Retrieve answers a query with a ranked, truncated clause list, recording a
// retrieval access for each survivor.
func (e *RetrievalEngine) Retrieve(ctx context.Context, query string, opts RetrievalOptions) (*RetrievalResult, error) {
	results, method, err := e.retrieveScored(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	results = rankAndTruncate(results, limitOrDefault(opts.Limit))
	e.recordRetrieval(ctx, query, results)
	return &RetrievalResult{Clauses: results, Method: method}, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultRetrievalLimit
	}
	return limit
}

func (e *RetrievalEngine) retrieveScored(ctx context.Context, query string, opts RetrievalOptions) ([]RetrievedClause, string, error) {
	limit := limitOrDefault(opts.Limit)

	semanticWeight := e.cfg.SemanticWeight
	keywordWeight := e.cfg.KeywordWeight
	method := "hybrid"
	if e.similarity == nil || semanticWeight <= 0 {
		// Degraded mode: keep the total weight normalized.
		keywordWeight += semanticWeight
		semanticWeight = 0
		method = "keyword"
	}

	merged := make(map[string]*RetrievedClause)

	filter := domain.ClauseFilter{
		Types:          opts.Types,
		MinConfidence:  opts.MinConfidence,
		IncludeExpired: opts.IncludeExpired,
		Limit:          limit * 2,
	}
	keyword, err := e.textIndex.Query(ctx, query, filter)
	if err != nil {
		return nil, "", err
	}

	maxRank := 0.0
	for _, sc := range keyword {
		if sc.Score > maxRank {
			maxRank = sc.Score
		}
	}
	for _, sc := range keyword {
		normalized := 0.0
		if maxRank > 0 {
			normalized = sc.Score / maxRank
		}
		merged[sc.ID] = &RetrievedClause{Clause: sc.Clause, KeywordScore: normalized}
	}

	if semanticWeight > 0 {
		matches, err := e.similarity.FindSimilar(ctx, query, limit*2, e.cfg.MinSimilarity)
		if err != nil {
			// Collaborator failure degrades to keyword-only rather than aborting.
			e.logger.Warn("similarity lookup failed, degrading to keyword retrieval", zap.Error(err))
			keywordWeight += semanticWeight
			semanticWeight = 0
			method = "keyword"
		} else {
			for _, m := range matches {
				if existing, ok := merged[m.ClauseID]; ok {
					existing.SemanticScore = m.Similarity
					continue
				}
				c, err := e.clauses.GetByID(ctx, m.ClauseID)
				if err != nil {
					continue
				}
				if !e.matchesFilters(c, opts) {
					continue
				}
				merged[m.ClauseID] = &RetrievedClause{Clause: *c, SemanticScore: m.Similarity}
			}
		}
	}

	queryTokens := tokenSet(query)
	now := time.Now()
	results := make([]RetrievedClause, 0, len(merged))
	for _, rc := range merged {
		score := rc.SemanticScore*semanticWeight +
			rc.KeywordScore*keywordWeight +
			rc.Confidence*e.cfg.ConfidenceWeight +
			recencyScore(&rc.Clause, now)*e.cfg.RecencyWeight

		if overlaps(queryTokens, rc.Subject) {
			score += overlapBonus
		}
		if overlaps(queryTokens, rc.Predicate) {
			score += overlapBonus
		}
		if score > 1 {
			score = 1
		}
		rc.Score = score
		results = append(results, *rc)
	}
	return results, method, nil
}

func (e *RetrievalEngine) matchesFilters(c *domain.Clause, opts RetrievalOptions) bool {
	if !opts.IncludeExpired && !c.Active() {
		return false
	}
	if c.Confidence < opts.MinConfidence {
		return false
	}
	if len(opts.Types) > 0 {
		found := false
		for _, t := range opts.Types {
			if c.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func recencyScore(c *domain.Clause, now time.Time) float64 {
	ref := c.RecordedAt
	if c.LastAccessed != nil {
		ref = *c.LastAccessed
	}
	days := now.Sub(ref).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / 30)
}

func overlaps(queryTokens map[string]struct{}, field string) bool {
	for t := range tokenSet(field) {
		if _, ok := queryTokens[t]; ok {
			return true
		}
	}
	return false
}

func rankAndTruncate(results []RetrievedClause, limit int) []RetrievedClause {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID > results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (e *RetrievalEngine) recordRetrieval(ctx context.Context, query string, results []RetrievedClause) {
	for i := range results {
		if err := e.clauses.RecordAccess(ctx, results[i].ID); err != nil {
			e.logger.Warn("failed to record retrieval access", zap.String("clause_id", results[i].ID), zap.Error(err))
		}
		err := e.audit.AppendAccess(ctx, &domain.AccessLogEntry{
			ClauseID:   results[i].ID,
			AccessType: "retrieval",
			Context:    query,
		})
		if err != nil {
			e.logger.Warn("failed to append access log", zap.String("clause_id", results[i].ID), zap.Error(err))
		}
	}
}

var quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

// extractEntities pulls proper nouns, quoted strings, and path/domain-like
// tokens from a query for the second progressive stage.
func extractEntities(query string) []string {
	seen := make(map[string]struct{})
	var entities []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if len(s) < 3 {
			return
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		entities = append(entities, s)
	}

	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}

	for _, word := range strings.Fields(quotedRe.ReplaceAllString(query, " ")) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/' && r != '.' && r != '@'
		})
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if unicode.IsUpper(runes[0]) {
			add(trimmed)
			continue
		}
		if strings.ContainsAny(trimmed, "/@") || strings.Count(trimmed, ".") > 0 {
			add(trimmed)
		}
	}
	return entities
}

// ProgressiveRetrieve widens the query in up to three stages: direct
// retrieval, per-entity retrieval (scores discounted), then subject
// expansion at a fixed low score. Later stages only run while the result
// count stays under the limit.
func (e *RetrievalEngine) ProgressiveRetrieve(ctx context.Context, query string, maxStages int, opts RetrievalOptions) (*RetrievalResult, error) {
	if maxStages <= 0 {
		maxStages = 3
	}
	limit := limitOrDefault(opts.Limit)

	results, method, err := e.retrieveScored(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]*RetrievedClause, len(results))
	for i := range results {
		merged[results[i].ID] = &results[i]
	}
	stages := 1

	if len(merged) < limit && maxStages >= 2 {
		stages = 2
		for _, entity := range extractEntities(query) {
			entityResults, _, err := e.retrieveScored(ctx, entity, opts)
			if err != nil {
				e.logger.Warn("entity retrieval failed", zap.String("entity", entity), zap.Error(err))
				continue
			}
			for i := range entityResults {
				if _, ok := merged[entityResults[i].ID]; ok {
					continue
				}
				entityResults[i].Score *= entityStagePenalty
				merged[entityResults[i].ID] = &entityResults[i]
			}
		}
	}

	if len(merged) < limit && maxStages >= 3 {
		stages = 3
		subjects := make(map[string]struct{})
		for _, rc := range merged {
			subjects[rc.Subject] = struct{}{}
		}
		for subject := range subjects {
			related, err := e.clauses.ActiveBySubject(ctx, subject, subjectExpansionFloor, limit)
			if err != nil {
				e.logger.Warn("subject expansion failed", zap.String("subject", subject), zap.Error(err))
				continue
			}
			for i := range related {
				if _, ok := merged[related[i].ID]; ok {
					continue
				}
				merged[related[i].ID] = &RetrievedClause{Clause: related[i], Score: subjectExpansionScore}
			}
		}
	}

	final := make([]RetrievedClause, 0, len(merged))
	for _, rc := range merged {
		final = append(final, *rc)
	}
	final = rankAndTruncate(final, limit)
	e.recordRetrieval(ctx, query, final)

	return &RetrievalResult{Clauses: final, Method: method, Stages: stages}, nil
}

// RetrieveForTask assembles the context a downstream agent needs for a task:
// direct matches plus always-relevant preferences, user facts, and
// skill-derived clauses, bucketed and combined.
func (e *RetrievalEngine) RetrieveForTask(ctx context.Context, task string, opts RetrievalOptions) (*TaskContext, error) {
	limit := limitOrDefault(opts.Limit)

	direct, _, err := e.retrieveScored(ctx, task, opts)
	if err != nil {
		return nil, err
	}

	prefs, err := e.bucketByTypes(ctx, []domain.ClauseType{domain.ClauseTypePreference}, limit, func(c *domain.Clause) float64 {
		return c.Confidence * taskPreferenceWeight
	})
	if err != nil {
		return nil, err
	}

	facts, err := e.bucketByTypes(ctx, []domain.ClauseType{domain.ClauseTypeFact}, limit, func(c *domain.Clause) float64 {
		return c.Confidence * taskFactWeight
	})
	if err != nil {
		return nil, err
	}

	skillTypes := []domain.ClauseType{
		domain.ClauseTypeSkill, domain.ClauseTypeSkillSuccess,
		domain.ClauseTypeSkillFailure, domain.ClauseTypeSkillPreference,
	}
	skills, err := e.bucketByTypes(ctx, skillTypes, limit, func(c *domain.Clause) float64 {
		return taskSkillScore
	})
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*RetrievedClause)
	for _, group := range [][]RetrievedClause{direct, prefs, facts, skills} {
		for i := range group {
			if existing, ok := merged[group[i].ID]; ok {
				if group[i].Score > existing.Score {
					existing.Score = group[i].Score
				}
				continue
			}
			rc := group[i]
			merged[rc.ID] = &rc
		}
	}
	combined := make([]RetrievedClause, 0, len(merged))
	for _, rc := range merged {
		combined = append(combined, *rc)
	}
	combined = rankAndTruncate(combined, limit*2)
	e.recordRetrieval(ctx, task, combined)

	return &TaskContext{
		Preferences: prefs,
		Facts:       facts,
		Skills:      skills,
		Combined:    combined,
	}, nil
}

func (e *RetrievalEngine) bucketByTypes(ctx context.Context, types []domain.ClauseType, limit int, score func(*domain.Clause) float64) ([]RetrievedClause, error) {
	clauses, err := e.clauses.List(ctx, domain.ClauseFilter{
		Types:  types,
		Limit:  limit,
		SortBy: domain.SortByConfidence,
	})
	if err != nil {
		return nil, err
	}
	results := make([]RetrievedClause, len(clauses))
	for i, c := range clauses {
		results[i] = RetrievedClause{Clause: c, Score: score(&clauses[i])}
	}
	return results, nil
}
