// Package engine implements the identity resolution and tracking core: it
// turns photos into embeddings, matches them against registered stones,
// drives the per-user conversational state machine, and appends sightings to
// each stone's append-only history.
package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/internal/metrics"
	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/store"
)

// Engine orchestrates the resolver, session store, and history tracking
// across the registration/matching flow. All external collaborators are
// injected as narrow interfaces so the engine can be tested with
// deterministic fakes.
type Engine struct {
	store    *store.Store
	resolver *Resolver
	sessions *SessionStore

	embedder     Embedder
	preprocessor Preprocessor
	detector     Detector
	geocoder     Geocoder
	renderer     Renderer
}

// Options bundles the engine's collaborators.
type Options struct {
	Store        *store.Store
	Embedder     Embedder
	Preprocessor Preprocessor
	// Detector is optional; when nil the stone-detection gate is skipped.
	Detector Detector
	Geocoder Geocoder
	// Renderer is optional; when nil no route maps are attached to replies.
	Renderer Renderer
}

// New creates an engine configured from the profile.
func New(p *profile.Profile, opts Options) *Engine {
	return &Engine{
		store:        opts.Store,
		resolver:     NewResolver(opts.Store, p.ImageMatchThreshold, p.TextMatchThreshold, p.TextSearchLimit),
		sessions:     NewSessionStore(p.SessionTTL),
		embedder:     opts.Embedder,
		preprocessor: opts.Preprocessor,
		detector:     opts.Detector,
		geocoder:     opts.Geocoder,
		renderer:     opts.Renderer,
	}
}

// Close releases the engine's background resources.
func (e *Engine) Close() {
	e.sessions.Close()
}

// Resolver exposes the read-only resolver, mainly for diagnostics.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// HandlePhoto processes an inbound photo. It always restarts the user's
// flow: any unfinished prior state is discarded once the photo is accepted.
// Collaborator failures leave the session exactly as it was before the
// photo arrived.
func (e *Engine) HandlePhoto(ctx context.Context, userID int64, photoFileID string, image []byte) *Reply {
	metrics.PhotosProcessed.Inc()

	var reply *Reply
	e.sessions.With(userID, func(sess *Session) {
		subject := image
		var thumbnail []byte

		crop, err := e.preprocessor.CropSubject(ctx, image)
		if err != nil {
			reply = e.collaboratorFailed("preprocessor", err)
			return
		}
		if crop.Found {
			subject = crop.Cropped
			thumbnail = crop.Thumbnail
		} else {
			// No foreground subject: fall back to the full image.
			slog.Debug("no subject detected, using full image", "user_id", userID)
		}

		if e.detector != nil {
			isStone, margin, err := e.detector.DetectStone(ctx, subject)
			if err != nil {
				reply = e.collaboratorFailed("detector", err)
				return
			}
			if !isStone {
				slog.Info("photo rejected by stone gate", "user_id", userID, "margin", margin)
				sess.reset()
				reply = errorReply(CodeNotAStone, false)
				return
			}
		}

		embedding, err := e.embedder.EmbedImage(ctx, subject)
		if err != nil {
			reply = e.collaboratorFailed("embedder", err)
			return
		}

		match, err := e.resolver.Resolve(ctx, embedding)
		if err != nil {
			reply = e.collaboratorFailed("store", err)
			return
		}

		// Clear before start: the fresh photo discards any unfinished flow.
		sess.reset()
		sess.PendingEmbedding = embedding
		sess.PendingPhotoFileID = photoFileID
		sess.PendingThumbnail = thumbnail

		if match != nil {
			metrics.MatchesFound.Inc()
			count, err := e.store.CountStoneSightings(ctx, match.Stone.ID)
			if err != nil {
				// Count is display-only; the match itself stands.
				slog.Warn("failed to count sightings", "stone_id", match.Stone.ID, "error", err)
			}
			sess.State = StateAwaitingLocation
			sess.CandidateStoneID = match.Stone.ID
			reply = &Reply{
				Kind:      ReplyKindPrompt,
				Code:      CodeStoneMatched,
				Stone:     &StoneSummary{Stone: match.Stone, SightingCount: count, Similarity: match.Similarity},
				Thumbnail: thumbnail,
			}
			return
		}

		sess.State = StateAwaitingName
		reply = &Reply{Kind: ReplyKindPrompt, Code: CodeAskName, Thumbnail: thumbnail}
	})
	return reply
}

// HandleText processes free text according to the current state: the stone
// name, its description, or a postal code while awaiting location. Text in
// any other state re-prompts without a transition.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) *Reply {
	text = strings.TrimSpace(text)

	var reply *Reply
	e.sessions.With(userID, func(sess *Session) {
		switch sess.State {
		case StateAwaitingName:
			if len([]rune(text)) < 2 {
				reply = errorReply(CodeNameTooShort, true)
				return
			}
			sess.Name = text
			sess.State = StateAwaitingDescription
			reply = &Reply{Kind: ReplyKindPrompt, Code: CodeAskDescription, Name: sess.Name}

		case StateAwaitingDescription:
			// Empty input is accepted: the description is optional.
			sess.Description = text
			sess.State = StateAwaitingLocation
			reply = promptReply(CodeAskLocation)

		case StateAwaitingLocation:
			if !looksLikePostalCode(text) {
				reply = promptReply(CodeAskLocation)
				return
			}
			var coords *Coordinates
			if e.geocoder != nil {
				var err error
				coords, err = e.geocoder.Forward(ctx, text)
				if err != nil && !errors.Is(err, ErrLocationNotFound) {
					reply = e.collaboratorFailed("geocoder", err)
					return
				}
			}
			// An unresolvable postal code still commits: the raw code is
			// kept, only coordinates stay empty.
			postal := text
			reply = e.commit(ctx, sess, coords, &postal, nil)

		default:
			reply = promptReply(CodeExpectedPhoto)
		}
	})
	return reply
}

// HandleLocation processes shared geo-coordinates. Valid only while the
// session awaits a location; otherwise it re-prompts.
func (e *Engine) HandleLocation(ctx context.Context, userID int64, coords Coordinates) *Reply {
	var reply *Reply
	e.sessions.With(userID, func(sess *Session) {
		if sess.State != StateAwaitingLocation {
			reply = e.wrongStateReply(sess)
			return
		}

		// Reverse geocoding decorates the confirmation and fills in the
		// postal code. Failures are non-fatal.
		var address *Address
		var postal *string
		if e.geocoder != nil {
			addr, err := e.geocoder.Reverse(ctx, coords)
			if err != nil {
				slog.Warn("reverse geocoding failed", "user_id", userID, "error", err)
				metrics.CollaboratorErrors.WithLabelValues("geocoder").Inc()
			} else if addr != nil {
				address = addr
				if addr.PostalCode != "" {
					postal = &addr.PostalCode
				}
			}
		}

		reply = e.commit(ctx, sess, &coords, postal, address)
	})
	return reply
}

// HandleSkipLocation commits the pending flow without coordinates. The
// sighting is retained for audit but excluded from route geometry.
func (e *Engine) HandleSkipLocation(ctx context.Context, userID int64) *Reply {
	var reply *Reply
	e.sessions.With(userID, func(sess *Session) {
		if sess.State != StateAwaitingLocation {
			reply = e.wrongStateReply(sess)
			return
		}
		reply = e.commit(ctx, sess, nil, nil, nil)
	})
	return reply
}

// HandleSkip advances past an optional step: an empty description while one
// is awaited, or a location-less commit while a location is awaited. In any
// other state it re-prompts.
func (e *Engine) HandleSkip(ctx context.Context, userID int64) *Reply {
	var reply *Reply
	e.sessions.With(userID, func(sess *Session) {
		switch sess.State {
		case StateAwaitingDescription:
			sess.Description = ""
			sess.State = StateAwaitingLocation
			reply = promptReply(CodeAskLocation)
		case StateAwaitingLocation:
			reply = e.commit(ctx, sess, nil, nil, nil)
		default:
			reply = e.wrongStateReply(sess)
		}
	})
	return reply
}

// HandleCancel discards all pending data from any non-Idle state. Nothing
// already committed is rolled back.
func (e *Engine) HandleCancel(ctx context.Context, userID int64) *Reply {
	var reply *Reply
	e.sessions.With(userID, func(sess *Session) {
		if sess.State == StateIdle {
			reply = &Reply{Kind: ReplyKindConfirmation, Code: CodeNothingToCancel}
			return
		}
		sess.reset()
		reply = &Reply{Kind: ReplyKindConfirmation, Code: CodeCancelled}
	})
	return reply
}

// HandleTextSearch finds stones matching a textual description. It bypasses
// the session state machine entirely.
func (e *Engine) HandleTextSearch(ctx context.Context, userID int64, query string) *Reply {
	query = strings.TrimSpace(query)
	if query == "" {
		return errorReply(CodeStepFailed, true)
	}

	embedding, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return e.collaboratorFailed("embedder", err)
	}

	matches, err := e.resolver.ResolveText(ctx, embedding)
	if err != nil {
		return e.collaboratorFailed("store", err)
	}
	if len(matches) == 0 {
		return &Reply{Kind: ReplyKindList, Code: CodeSearchEmpty}
	}

	summaries := make([]*StoneSummary, 0, len(matches))
	for _, match := range matches {
		count, err := e.store.CountStoneSightings(ctx, match.Stone.ID)
		if err != nil {
			slog.Warn("failed to count sightings", "stone_id", match.Stone.ID, "error", err)
		}
		summaries = append(summaries, &StoneSummary{
			Stone:         match.Stone,
			SightingCount: count,
			Similarity:    match.Similarity,
		})
	}
	return &Reply{Kind: ReplyKindList, Code: CodeSearchResults, Stones: summaries}
}

// ListUserStones lists the stones a user registered, with sighting counts.
func (e *Engine) ListUserStones(ctx context.Context, userID int64) *Reply {
	stones, err := e.store.ListStones(ctx, &store.FindStone{RegisteredByUserID: &userID})
	if err != nil {
		return e.collaboratorFailed("store", err)
	}
	if len(stones) == 0 {
		return &Reply{Kind: ReplyKindList, Code: CodeStoneListEmpty}
	}

	summaries := make([]*StoneSummary, 0, len(stones))
	for _, stone := range stones {
		count, err := e.store.CountStoneSightings(ctx, stone.ID)
		if err != nil {
			slog.Warn("failed to count sightings", "stone_id", stone.ID, "error", err)
		}
		summaries = append(summaries, &StoneSummary{Stone: stone, SightingCount: count})
	}
	return &Reply{Kind: ReplyKindList, Code: CodeStoneList, Stones: summaries}
}

// BuildRouteMap renders the route map for a stone, or nil when the stone has
// no located sightings or no renderer is configured.
func (e *Engine) BuildRouteMap(ctx context.Context, stoneID int32) ([]byte, error) {
	if e.renderer == nil {
		return nil, nil
	}
	sightings, err := e.store.ListStoneSightings(ctx, &store.FindStoneSighting{StoneID: &stoneID})
	if err != nil {
		return nil, err
	}
	route := BuildRoute(stoneID, sightings)
	if route.IsEmpty() {
		return nil, nil
	}
	return e.renderer.Render(ctx, route)
}

// commit finishes the pending flow: the new-stone path creates the stone
// with its canonical embedding plus a first sighting, the existing-stone
// path appends a sighting and leaves the canonical embedding untouched. On
// success the session returns to Idle; on failure it is left unchanged so
// the same step can be retried.
func (e *Engine) commit(ctx context.Context, sess *Session, coords *Coordinates, postal *string, address *Address) *Reply {
	var lat, lon *float64
	if coords != nil {
		lat, lon = &coords.Latitude, &coords.Longitude
	}

	if sess.CandidateStoneID != 0 {
		sighting := &store.CreateStoneSighting{
			StoneID:        sess.CandidateStoneID,
			ReporterUserID: sess.UserID,
			PhotoFileID:    sess.PendingPhotoFileID,
			Latitude:       lat,
			Longitude:      lon,
			PostalCode:     postal,
		}
		if _, err := e.store.CreateStoneSighting(ctx, sighting); err != nil {
			return e.collaboratorFailed("store", err)
		}
		metrics.SightingsRecorded.Inc()

		stone, err := e.store.GetStone(ctx, sess.CandidateStoneID)
		if err != nil {
			slog.Warn("failed to reload stone after commit", "stone_id", sess.CandidateStoneID, "error", err)
		}
		count, err := e.store.CountStoneSightings(ctx, sess.CandidateStoneID)
		if err != nil {
			slog.Warn("failed to count sightings", "stone_id", sess.CandidateStoneID, "error", err)
		}

		mapImage, err := e.BuildRouteMap(ctx, sess.CandidateStoneID)
		if err != nil {
			// The sighting is committed; a missing map is cosmetic.
			slog.Warn("route map rendering failed", "stone_id", sess.CandidateStoneID, "error", err)
			metrics.CollaboratorErrors.WithLabelValues("renderer").Inc()
		}

		stoneID := sess.CandidateStoneID
		sess.reset()
		slog.Info("sighting committed", "stone_id", stoneID, "user_id", sess.UserID, "located", coords != nil)
		return &Reply{
			Kind:     ReplyKindConfirmation,
			Code:     CodeSightingSaved,
			Stone:    &StoneSummary{Stone: stone, SightingCount: count},
			Address:  address,
			MapImage: mapImage,
		}
	}

	stone, err := e.store.CreateStone(ctx, &store.CreateStone{
		Name:               sess.Name,
		Description:        sess.Description,
		PhotoFileID:        sess.PendingPhotoFileID,
		Embedding:          sess.PendingEmbedding,
		RegisteredByUserID: sess.UserID,
	}, &store.CreateStoneSighting{
		ReporterUserID: sess.UserID,
		PhotoFileID:    sess.PendingPhotoFileID,
		Latitude:       lat,
		Longitude:      lon,
		PostalCode:     postal,
	})
	if err != nil {
		return e.collaboratorFailed("store", err)
	}
	metrics.StonesRegistered.Inc()
	metrics.SightingsRecorded.Inc()

	sess.reset()
	slog.Info("stone registered", "stone_id", stone.ID, "user_id", sess.UserID, "located", coords != nil)
	return &Reply{
		Kind:    ReplyKindConfirmation,
		Code:    CodeStoneRegistered,
		Stone:   &StoneSummary{Stone: stone, SightingCount: 1},
		Address: address,
	}
}

// wrongStateReply re-prompts for the input the current state expects.
func (e *Engine) wrongStateReply(sess *Session) *Reply {
	switch sess.State {
	case StateAwaitingName:
		return promptReply(CodeAskName)
	case StateAwaitingDescription:
		return &Reply{Kind: ReplyKindPrompt, Code: CodeAskDescription, Name: sess.Name}
	case StateAwaitingLocation:
		return promptReply(CodeAskLocation)
	default:
		return promptReply(CodeExpectedPhoto)
	}
}

func (e *Engine) collaboratorFailed(name string, err error) *Reply {
	slog.Error("collaborator call failed", "collaborator", name, "error", err)
	metrics.CollaboratorErrors.WithLabelValues(name).Inc()
	return errorReply(CodeStepFailed, true)
}

// looksLikePostalCode reports whether free text plausibly names a postal
// code: 3 to 10 characters, alphanumeric once dashes and spaces are removed.
func looksLikePostalCode(text string) bool {
	if len(text) < 3 || len(text) > 10 {
		return false
	}
	stripped := strings.NewReplacer("-", "", " ", "").Replace(text)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
