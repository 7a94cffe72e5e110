// Package services – Lifecycle
//
// This file implements the conversation lifecycle controller. It consumes
// events (messages, confirmations, escalations, sweep decisions), applies
// the transition rules of the status graph, and persists new statuses with
// a compare-and-set write so that concurrent writers (a user message racing
// the abandonment sweep, for instance) can never corrupt the lifecycle.
//
// Message ingestion for a single conversation is serialized through a
// per-conversation lock so collected-data merges are applied in order, while
// different conversations proceed in full parallelism.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the conversation identifier.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/provisioning"
	"github.com/sporttia/onboarding-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// supportedLanguages are the tags the assistant can negotiate; the first is
// the fallback when no default is configured.
var supportedLanguages = []language.Tag{
	language.Spanish,
	language.English,
	language.French,
	language.Portuguese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Lifecycle owns conversation state transitions and message ingestion.
type Lifecycle struct {
	DB          *gorm.DB
	Tracker     *Tracker
	Provisioner provisioning.Client

	// MaxContentRunes caps stored message content by rune length; 0 means
	// unlimited.
	MaxContentRunes int

	// DefaultLanguage is the tag used when negotiation cannot match the
	// request against the supported set. Empty means Spanish.
	DefaultLanguage string

	mu      sync.Mutex
	locks   map[string]*convLock
	lockOps int
}

// convLock serializes work for one conversation. refs and lastSeen feed the
// opportunistic eviction sweep; an entry is only evicted when no goroutine
// holds or waits on it.
type convLock struct {
	mu       sync.Mutex
	refs     int
	lastSeen time.Time
}

const (
	lockTTL        = 10 * time.Minute
	lockSweepEvery = 5000
)

// NewLifecycle constructs a Lifecycle bound to the given collaborators.
func NewLifecycle(db *gorm.DB, tracker *Tracker, prov provisioning.Client) *Lifecycle {
	return &Lifecycle{
		DB:              db,
		Tracker:         tracker,
		Provisioner:     prov,
		MaxContentRunes: 8000,
		locks:           make(map[string]*convLock),
	}
}

// lockConversation acquires the per-conversation mutex and returns its
// release function. Idle entries are swept after ~5000 acquisitions so
// the map stays bounded in a long-lived process.
func (s *Lifecycle) lockConversation(conversationID string) func() {
	s.mu.Lock()
	s.lockOps++
	if s.lockOps >= lockSweepEvery {
		now := time.Now()
		for k, l := range s.locks {
			if l.refs == 0 && now.Sub(l.lastSeen) >= lockTTL {
				delete(s.locks, k)
			}
		}
		s.lockOps = 0
	}
	l, ok := s.locks[conversationID]
	if !ok {
		l = &convLock{}
		s.locks[conversationID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		l.lastSeen = time.Now()
		s.mu.Unlock()
	}
}

// Start creates a new active conversation, negotiating the requested
// language against the supported set.
func (s *Lifecycle) Start(ctx context.Context, sessionID, requestedLanguage string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	lang := NegotiateLanguage(requestedLanguage, s.DefaultLanguage)
	return repo.CreateConversation(ctx, s.DB, strings.TrimSpace(sessionID), lang)
}

// NegotiateLanguage resolves a requested tag (or Accept-Language list)
// against the supported set. Unknown or empty input falls back to the given
// default; a default outside the supported set falls back to Spanish.
func NegotiateLanguage(requested, fallback string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return fallbackLanguage(fallback)
	}
	tags, _, err := language.ParseAcceptLanguage(requested)
	if err != nil || len(tags) == 0 {
		return fallbackLanguage(fallback)
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return fallbackLanguage(fallback)
	}
	return supportedLanguages[idx].String()
}

// fallbackLanguage validates a configured default against the supported set.
func fallbackLanguage(fallback string) string {
	if fallback != "" {
		if t, err := language.Parse(fallback); err == nil {
			for _, s := range supportedLanguages {
				if s == t {
					return s.String()
				}
			}
		}
	}
	return supportedLanguages[0].String()
}

// Get loads a conversation by ID.
func (s *Lifecycle) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// Collected loads the collected-data projection for a conversation.
func (s *Lifecycle) Collected(ctx context.Context, id string) (*domain.CollectedData, error) {
	cd, err := repo.GetCollected(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return cd, nil
}

// AppendMessage stores one message and feeds its metadata through the
// collected-data projector.
//
// Rules:
//   - Messages are always stored, even on terminal conversations (audit
//     trail), but a terminal conversation is never resurrected: nothing
//     beyond the insert happens for it.
//   - On active conversations, an assistant partial is merged into the
//     projection, UpdatedAt is bumped (the abandonment clock), and an
//     attached error is routed through the failure tracker.
//   - An assistant turn that recovers from a previous model failure
//     (carries a partial, no error, while the last error was a model-call
//     failure) resets the retry counter.
//   - A partial that sets escalated_to_human moves the conversation to the
//     terminal error status.
func (s *Lifecycle) AppendMessage(ctx context.Context, conversationID, role, content string, metadata *domain.MessageMetadata) (*domain.Message, error) {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "AppendMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.role", role),
		),
	)
	defer span.End()

	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		content = string([]rune(content)[:s.MaxContentRunes])
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var raw datatypes.JSON
	if metadata != nil {
		raw, err = marshalMetadata(metadata)
		if err != nil {
			return nil, err
		}
	}

	msg, err := repo.CreateMessage(s.DB.WithContext(ctx), conversationID, role, content, raw)
	if err != nil {
		return nil, err
	}

	// Late arrivals on terminal conversations are audit-only.
	if domain.IsTerminal(conv.Status) {
		return msg, nil
	}

	if err := s.project(ctx, conv, role, metadata); err != nil {
		return nil, err
	}
	if err := repo.TouchConversation(ctx, s.DB, conversationID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return msg, nil
}

// project applies an assistant partial and its side effects to an active
// conversation. Caller holds the per-conversation lock.
func (s *Lifecycle) project(ctx context.Context, conv *domain.Conversation, role string, metadata *domain.MessageMetadata) error {
	if metadata == nil {
		return nil
	}

	if metadata.Error != nil {
		id := conv.ID
		if _, _, err := s.Tracker.RecordFailure(ctx, &id, metadata.Error.Type, metadata.Error.Message, nil); err != nil {
			return err
		}
	}

	if role != domain.RoleAssistant || metadata.CollectedData == nil {
		return nil
	}

	cd, err := repo.GetCollected(ctx, s.DB, conv.ID)
	if err != nil {
		return err
	}

	recovered := metadata.Error == nil &&
		cd.LastError.Code == domain.ErrTypeOpenAIAPI &&
		cd.LastError.RetryCount > 0

	changed, err := cd.ApplyPartial(metadata.CollectedData)
	if err != nil {
		id := conv.ID
		_, _, terr := s.Tracker.RecordFailure(ctx, &id, domain.ErrTypeInternal, "collected-data merge failed: "+err.Error(), nil)
		if terr != nil {
			return terr
		}
		return err
	}
	if recovered {
		cd.LastError.RetryCount = 0
		changed = true
	}
	if changed {
		if err := repo.SaveCollected(ctx, s.DB, cd); err != nil {
			return err
		}
	}

	if cd.EscalatedToHuman {
		reason := "assistant escalation"
		if cd.EscalationReason != nil {
			reason = *cd.EscalationReason
		}
		return s.escalate(ctx, conv.ID, reason, cd)
	}
	return nil
}

// Escalate moves an active conversation to the terminal error status on
// explicit operator (or user) request, recording the reason.
func (s *Lifecycle) Escalate(ctx context.Context, conversationID, reason string) error {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "Escalate",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	unlock := s.lockConversation(conversationID)
	defer unlock()

	cd, err := s.Collected(ctx, conversationID)
	if err != nil {
		return err
	}
	return s.escalate(ctx, conversationID, reason, cd)
}

// escalate writes the escalation flags and performs the CAS transition.
// Conflicts surface as ErrConflict for the caller to interpret.
func (s *Lifecycle) escalate(ctx context.Context, conversationID, reason string, cd *domain.CollectedData) error {
	if reason == "" {
		reason = "escalated to human"
	}
	if !cd.EscalatedToHuman || cd.EscalationReason == nil {
		cd.EscalatedToHuman = true
		cd.EscalationReason = &reason
		if err := repo.SaveCollected(ctx, s.DB, cd); err != nil {
			return err
		}
	}
	err := repo.UpdateStatusIf(ctx, s.DB, conversationID, domain.StatusActive, domain.StatusError)
	if errors.Is(err, repo.ErrStatusConflict) {
		return ErrConflict
	}
	if errors.Is(err, repo.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// EndSession abandons an active conversation on explicit user request,
// before confirmation. Ending an already-terminal conversation reports a
// benign conflict.
func (s *Lifecycle) EndSession(ctx context.Context, conversationID string) error {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "EndSession",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	err := repo.UpdateStatusIf(ctx, s.DB, conversationID, domain.StatusActive, domain.StatusAbandoned)
	if errors.Is(err, repo.ErrStatusConflict) {
		return ErrConflict
	}
	if errors.Is(err, repo.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Confirm runs the provisioning attempt for a confirmed, complete
// conversation and, on success, transitions it to completed.
//
// The call into the provisioning collaborator happens exactly once per
// invocation; re-attempts after failures are governed by the tracker's
// ceiling, and replay protection at the transport layer keeps one
// confirmation from provisioning twice.
func (s *Lifecycle) Confirm(ctx context.Context, conversationID string) (*domain.SportsCenter, error) {
	tr := otel.Tracer("services/Lifecycle")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	unlock := s.lockConversation(conversationID)
	defer unlock()

	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != domain.StatusActive {
		return nil, ErrTerminalStatus
	}

	cd, err := repo.GetCollected(ctx, s.DB, conversationID)
	if err != nil {
		return nil, err
	}
	if !cd.Confirmed {
		return nil, ErrNotConfirmed
	}
	complete, missing := cd.Completeness(conv.Language)
	if !complete {
		id := conv.ID
		if _, _, terr := s.Tracker.RecordFailure(ctx, &id, domain.ErrTypeValidation, domain.MissingFieldsError(missing), nil); terr != nil {
			return nil, terr
		}
		return nil, ErrIncompleteData
	}

	facilities, err := cd.FacilityList()
	if err != nil {
		return nil, err
	}
	titleCaser := cases.Title(language.Make(conv.Language))
	req := provisioning.CreateRequest{
		Name:       titleCaser.String(*cd.SportsCenterName),
		City:       *cd.City,
		Language:   conv.Language,
		AdminName:  *cd.AdminName,
		AdminEmail: *cd.AdminEmail,
		Facilities: facilities,
	}

	result, err := s.Provisioner.CreateSportsCenter(ctx, req)
	if err != nil {
		id := conv.ID
		if _, _, terr := s.Tracker.RecordFailure(ctx, &id, domain.ErrTypeSporttiaAPI, err.Error(), nil); terr != nil {
			return nil, terr
		}
		return nil, err
	}

	sc, err := repo.CreateSportsCenter(ctx, s.DB, result.ExternalID, req.Name, req.City, req.AdminEmail)
	if err != nil {
		return nil, err
	}
	if err := repo.SetSportsCenter(ctx, s.DB, conversationID, sc.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	err = repo.UpdateStatusIf(ctx, s.DB, conversationID, domain.StatusActive, domain.StatusCompleted)
	if errors.Is(err, repo.ErrStatusConflict) {
		return sc, ErrConflict
	}
	if err != nil {
		return sc, err
	}
	return sc, nil
}

// Messages returns a page of the conversation's ordered message history.
func (s *Lifecycle) Messages(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// marshalMetadata serializes message metadata for the JSON column.
func marshalMetadata(md *domain.MessageMetadata) (datatypes.JSON, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
