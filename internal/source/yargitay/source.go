package yargitay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/uploader"
)

// fullTextPlaceholder is stored when a document download fails; the record
// is still usable for indexing, only the body is missing.
const fullTextPlaceholder = "Full text not available (download failed)."

// Source adapts the search API into the pipeline's lazy record sequence.
// It paginates on demand and enriches each hit with its full text. A Source
// is single-use: once exhausted, a new one must be constructed.
type Source struct {
	client    *Client
	hasher    uploader.Hasher
	clock     uploader.Clock
	term      string
	pageSize  int
	page      int
	buffer    []uploader.Record
	exhausted bool
	logger    *zap.Logger
}

// NewSource builds a Source for one query term.
func NewSource(
	client *Client,
	hasher uploader.Hasher,
	clock uploader.Clock,
	term string,
	pageSize int,
	logger *zap.Logger,
) *Source {
	if pageSize <= 0 {
		pageSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client:   client,
		hasher:   hasher,
		clock:    clock,
		term:     term,
		pageSize: pageSize,
		page:     1,
		logger:   logger,
	}
}

// Next returns the next record, fetching a new page from the API when the
// buffer runs dry. Returns uploader.ErrSourceExhausted at the end of the
// result set.
func (s *Source) Next(ctx context.Context) (uploader.Record, error) {
	for len(s.buffer) == 0 && !s.exhausted {
		if err := s.fill(ctx); err != nil {
			return uploader.Record{}, err
		}
	}
	if len(s.buffer) == 0 {
		return uploader.Record{}, uploader.ErrSourceExhausted
	}
	rec := s.buffer[0]
	s.buffer = s.buffer[1:]
	return rec, nil
}

func (s *Source) fill(ctx context.Context) error {
	items, err := s.client.Search(ctx, s.term, s.pageSize, s.page)
	if err != nil {
		return err
	}
	s.logger.Debug("fetched search page",
		zap.String("term", s.term),
		zap.Int("page", s.page),
		zap.Int("hits", len(items)),
	)
	s.page++
	if len(items) == 0 {
		s.exhausted = true
		return nil
	}
	for _, item := range items {
		rec, err := s.toRecord(ctx, item)
		if err != nil {
			return err
		}
		s.buffer = append(s.buffer, rec)
	}
	return nil
}

// toRecord enriches one search hit with its full text and assembles the
// Record. A failed document download degrades to a placeholder body; an
// item with no usable identity is malformed.
func (s *Source) toRecord(ctx context.Context, item DecisionItem) (uploader.Record, error) {
	id := string(item.ID)

	text := fullTextPlaceholder
	if id != "" {
		fetched, err := s.client.DecisionText(ctx, id)
		if err != nil {
			s.logger.Warn("full text download failed",
				zap.String("id", id),
				zap.Error(err),
			)
		} else {
			text = fetched
		}
	}

	decision := uploader.Decision{
		ID:           id,
		Daire:        item.Daire,
		EsasNo:       item.EsasNo,
		KararNo:      item.KararNo,
		KararTarihi:  NormalizeDate(item.KararTarihi),
		ArananKelime: item.ArananKelime,
		IcerikHam:    text,
	}

	// Older dumps carry index fields only inside the body text.
	if decision.Daire == "" || decision.EsasNo == "" {
		meta := ExtractMetadata(text)
		if decision.Daire == "" {
			decision.Daire = meta.Daire
		}
		if decision.EsasNo == "" {
			decision.EsasNo = meta.EsasNo
		}
		if decision.KararNo == "" {
			decision.KararNo = meta.KararNo
		}
		if decision.KararTarihi == "" {
			decision.KararTarihi = meta.KararTarihi
		}
	}
	decision.Ozet = Summarize(text, 250)

	identity, err := s.identity(decision)
	if err != nil {
		return uploader.Record{}, err
	}
	return uploader.Record{
		Identity:  identity,
		FetchedAt: s.clock.Now(),
		Decision:  decision,
	}, nil
}

// identity prefers the upstream document id and falls back to a digest of
// the decision content, so identities stay stable across runs either way.
func (s *Source) identity(d uploader.Decision) (string, error) {
	if d.ID != "" {
		return d.ID, nil
	}
	canonical, err := json.Marshal(struct {
		Daire   string `json:"daire"`
		EsasNo  string `json:"esasNo"`
		KararNo string `json:"kararNo"`
		Icerik  string `json:"icerik"`
	}{d.Daire, d.EsasNo, d.KararNo, d.IcerikHam})
	if err != nil {
		return "", fmt.Errorf("%w: canonicalize item: %v", uploader.ErrSourceMalformed, err)
	}
	if d.Daire == "" && d.EsasNo == "" && d.KararNo == "" && d.IcerikHam == fullTextPlaceholder {
		return "", fmt.Errorf("%w: item has neither id nor content", uploader.ErrSourceMalformed)
	}
	digest, err := s.hasher.Hash(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: derive identity: %v", uploader.ErrSourceMalformed, err)
	}
	return digest, nil
}
