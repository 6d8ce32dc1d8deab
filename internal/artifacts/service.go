// Package artifacts implements the metadata cache core: it mediates between
// the chain, the metadata fetcher, and the store to answer "best known
// metadata for key K" and "refresh K now".
package artifacts

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/1001-digital/ponder-artifacts/internal/cache"
	"github.com/1001-digital/ponder-artifacts/internal/metadata"
	"github.com/1001-digital/ponder-artifacts/internal/models"
	"github.com/1001-digital/ponder-artifacts/internal/rpc"
	"github.com/1001-digital/ponder-artifacts/internal/store"
)

// DefaultCacheTTL is how long a stored record is considered fresh.
// NFT metadata changes very rarely.
const DefaultCacheTTL = 30 * 24 * time.Hour

// Options tunes the service; zero values fall back to defaults.
type Options struct {
	// CacheTTL is the record freshness window (default 30 days).
	CacheTTL time.Duration

	// HotCacheTTL is the TTL for the optional hot record layer.
	HotCacheTTL time.Duration

	// Clock overrides time.Now, used by tests.
	Clock func() time.Time

	Logger zerolog.Logger
}

// Service orchestrates chain reads, document fetches, and store writes.
//
// Refresh is best-effort enrichment: individual chain or network failures
// degrade to absent fields and the record is written anyway, so at minimum
// the standard classification and raw URI are cached even when the document
// itself is unreachable. Only store failures abort a refresh.
type Service struct {
	store   store.Store
	caller  rpc.Caller
	fetcher *metadata.Fetcher
	hot     cache.RecordCache // nil when the hot layer is disabled

	ttl    time.Duration
	hotTTL time.Duration
	now    func() time.Time
	log    zerolog.Logger

	// One in-flight refresh per key; concurrent callers share the outcome.
	group singleflight.Group
}

// NewService creates the cache service. The hot cache may be nil.
func NewService(st store.Store, caller rpc.Caller, fetcher *metadata.Fetcher, hot cache.RecordCache, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.HotCacheTTL <= 0 {
		opts.HotCacheTTL = cache.DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:   st,
		caller:  caller,
		fetcher: fetcher,
		hot:     hot,
		ttl:     opts.CacheTTL,
		hotTTL:  opts.HotCacheTTL,
		now:     opts.Clock,
		log:     opts.Logger.With().Str("component", "artifacts").Logger(),
	}
}

// IsFresh reports whether a record written at updatedAt (seconds since epoch)
// is still within the cache TTL. A zero timestamp is never fresh; a record
// aged exactly the TTL is stale.
func (s *Service) IsFresh(updatedAt int64) bool {
	if updatedAt <= 0 {
		return false
	}
	return s.now().Sub(time.Unix(updatedAt, 0)) < s.ttl
}

// GetToken returns the cached record for (collection, tokenId), or nil when
// the key was never resolved. It performs no chain or document activity.
func (s *Service) GetToken(ctx context.Context, collection, tokenID string) (*models.TokenRecord, error) {
	collection = models.NormalizeAddress(collection)

	if s.hot != nil {
		var record models.TokenRecord
		found, err := s.hot.GetJSON(ctx, tokenRecordKey(collection, tokenID), &record)
		if err != nil {
			s.log.Debug().Err(err).Str("collection", collection).Str("token_id", tokenID).Msg("hot cache read failed")
		} else if found {
			return &record, nil
		}
	}

	record, err := s.store.GetToken(ctx, collection, tokenID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		s.cacheToken(ctx, record)
	}
	return record, nil
}

// RefreshToken re-resolves metadata for (collection, tokenId) and fully
// replaces the stored record. It fails only when the store write fails.
func (s *Service) RefreshToken(ctx context.Context, collection, tokenID string) error {
	collection = models.NormalizeAddress(collection)

	// A refresh runs to completion once started, even if the originating
	// request goes away, so coalesced callers never inherit a cancellation.
	refreshCtx := context.WithoutCancel(ctx)

	_, err, _ := s.group.Do("token:"+collection+":"+tokenID, func() (interface{}, error) {
		return nil, s.refreshToken(refreshCtx, collection, tokenID)
	})
	return err
}

func (s *Service) refreshToken(ctx context.Context, collection, tokenID string) error {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok || id.Sign() < 0 {
		return fmt.Errorf("invalid token id %q", tokenID)
	}

	standard := s.detectStandard(ctx, collection)

	record := &models.TokenRecord{
		Collection: collection,
		TokenID:    tokenID,
		Standard:   standard,
	}

	record.TokenURI = s.readTokenURI(ctx, collection, standard, id)
	if record.TokenURI != "" {
		doc, err := s.fetcher.FetchDocument(ctx, record.TokenURI)
		if err != nil {
			s.log.Warn().Err(err).Str("collection", collection).Str("token_id", tokenID).Msg("metadata document unavailable")
		} else {
			record.RawData = doc
			record.Name = stringField(doc, "name")
			record.Description = stringField(doc, "description")
			record.Image = stringField(doc, "image")
			record.AnimationURL = stringField(doc, "animation_url")
		}
	}

	record.UpdatedAt = s.now().Unix()
	if err := s.store.UpsertToken(ctx, record); err != nil {
		return fmt.Errorf("refresh token %s/%s: %w", collection, tokenID, err)
	}

	s.cacheToken(ctx, record)
	s.log.Info().
		Str("collection", collection).
		Str("token_id", tokenID).
		Str("standard", string(record.Standard)).
		Bool("has_metadata", record.RawData != nil).
		Msg("token record refreshed")
	return nil
}

// GetCollection returns the cached contract-level record, or nil when absent.
func (s *Service) GetCollection(ctx context.Context, address string) (*models.CollectionRecord, error) {
	address = models.NormalizeAddress(address)

	if s.hot != nil {
		var record models.CollectionRecord
		found, err := s.hot.GetJSON(ctx, collectionRecordKey(address), &record)
		if err != nil {
			s.log.Debug().Err(err).Str("collection", address).Msg("hot cache read failed")
		} else if found {
			return &record, nil
		}
	}

	record, err := s.store.GetCollection(ctx, address)
	if err != nil {
		return nil, err
	}
	if record != nil {
		s.cacheCollection(ctx, record)
	}
	return record, nil
}

// RefreshCollection re-resolves contract-level metadata and fully replaces
// the stored record. It fails only when the store write fails.
func (s *Service) RefreshCollection(ctx context.Context, address string) error {
	address = models.NormalizeAddress(address)
	refreshCtx := context.WithoutCancel(ctx)

	_, err, _ := s.group.Do("collection:"+address, func() (interface{}, error) {
		return nil, s.refreshCollection(refreshCtx, address)
	})
	return err
}

func (s *Service) refreshCollection(ctx context.Context, address string) error {
	standard := s.detectStandard(ctx, address)

	record := &models.CollectionRecord{
		Collection: address,
		Standard:   standard,
	}

	// The four contract-level reads are independent; each failure only
	// leaves its own field absent.
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		record.Name = s.readString(ctx, address, "name()")
	}()
	go func() {
		defer wg.Done()
		record.Symbol = s.readString(ctx, address, "symbol()")
	}()
	go func() {
		defer wg.Done()
		record.Owner = s.readOwner(ctx, address)
	}()
	go func() {
		defer wg.Done()
		record.ContractURI = s.readString(ctx, address, "contractURI()")
	}()
	wg.Wait()

	if record.ContractURI != "" {
		doc, err := s.fetcher.FetchDocument(ctx, record.ContractURI)
		if err != nil {
			s.log.Warn().Err(err).Str("collection", address).Msg("contract metadata document unavailable")
		} else {
			record.RawData = doc
			record.Description = stringField(doc, "description")
			record.Image = stringField(doc, "image")
			// The on-chain name/symbol win over the document's.
			if record.Name == "" {
				record.Name = stringField(doc, "name")
			}
			if record.Symbol == "" {
				record.Symbol = stringField(doc, "symbol")
			}
		}
	}

	record.UpdatedAt = s.now().Unix()
	if err := s.store.UpsertCollection(ctx, record); err != nil {
		return fmt.Errorf("refresh collection %s: %w", address, err)
	}

	s.cacheCollection(ctx, record)
	s.log.Info().
		Str("collection", address).
		Str("standard", string(record.Standard)).
		Bool("has_metadata", record.RawData != nil).
		Msg("collection record refreshed")
	return nil
}

// detectStandard probes supportsInterface for ERC721, then ERC1155. Probe
// failures count as a negative answer and never abort the refresh.
func (s *Service) detectStandard(ctx context.Context, address string) models.TokenStandard {
	if s.supportsInterface(ctx, address, rpc.ERC721InterfaceID) {
		return models.StandardERC721
	}
	if s.supportsInterface(ctx, address, rpc.ERC1155InterfaceID) {
		return models.StandardERC1155
	}
	return models.StandardUnknown
}

func (s *Service) supportsInterface(ctx context.Context, address, interfaceID string) bool {
	result, err := s.caller.Call(ctx, address, "supportsInterface(bytes4)", interfaceID)
	if err != nil {
		s.log.Debug().Err(err).Str("collection", address).Str("interface_id", interfaceID).Msg("interface probe failed")
		return false
	}
	return rpc.DecodeBool(result)
}

// readTokenURI reads the token's URI from the contract. ERC1155 contracts use
// uri(uint256) with the literal {id} placeholder replaced by the token id as
// 64 zero-padded lower-case hex digits; everything else uses tokenURI(uint256).
// A failed read leaves the URI absent.
func (s *Service) readTokenURI(ctx context.Context, collection string, standard models.TokenStandard, id *big.Int) string {
	if standard == models.StandardERC1155 {
		result, err := s.caller.Call(ctx, collection, "uri(uint256)", id)
		if err != nil {
			s.log.Debug().Err(err).Str("collection", collection).Msg("uri() read failed")
			return ""
		}
		raw := rpc.DecodeString(result)
		if raw == "" {
			return ""
		}
		return strings.ReplaceAll(raw, "{id}", fmt.Sprintf("%064x", id))
	}

	result, err := s.caller.Call(ctx, collection, "tokenURI(uint256)", id)
	if err != nil {
		s.log.Debug().Err(err).Str("collection", collection).Msg("tokenURI() read failed")
		return ""
	}
	return rpc.DecodeString(result)
}

func (s *Service) readString(ctx context.Context, address, signature string) string {
	result, err := s.caller.Call(ctx, address, signature)
	if err != nil {
		s.log.Debug().Err(err).Str("collection", address).Str("signature", signature).Msg("contract read failed")
		return ""
	}
	return rpc.DecodeString(result)
}

func (s *Service) readOwner(ctx context.Context, address string) string {
	result, err := s.caller.Call(ctx, address, "owner()")
	if err != nil {
		s.log.Debug().Err(err).Str("collection", address).Msg("owner() read failed")
		return ""
	}
	return rpc.DecodeAddress(result)
}

func (s *Service) cacheToken(ctx context.Context, record *models.TokenRecord) {
	if s.hot == nil {
		return
	}
	if err := s.hot.SetJSON(ctx, tokenRecordKey(record.Collection, record.TokenID), record, s.hotTTL); err != nil {
		s.log.Debug().Err(err).Str("collection", record.Collection).Str("token_id", record.TokenID).Msg("hot cache write failed")
	}
}

func (s *Service) cacheCollection(ctx context.Context, record *models.CollectionRecord) {
	if s.hot == nil {
		return
	}
	if err := s.hot.SetJSON(ctx, collectionRecordKey(record.Collection), record, s.hotTTL); err != nil {
		s.log.Debug().Err(err).Str("collection", record.Collection).Msg("hot cache write failed")
	}
}

func tokenRecordKey(collection, tokenID string) string {
	return fmt.Sprintf(cache.TokenRecordKeyPattern, collection, tokenID)
}

func collectionRecordKey(collection string) string {
	return fmt.Sprintf(cache.CollectionRecordKeyPattern, collection)
}

func stringField(doc map[string]interface{}, key string) string {
	value, _ := doc[key].(string)
	return value
}
