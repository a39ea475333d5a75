// Package telephony reconciles PBX call-ended events against call records.
package telephony

import (
	"context"
	"errors"
	"strings"
	"time"

	calldomain "github.com/smallbiznis/reachway/internal/call/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	leaddomain "github.com/smallbiznis/reachway/internal/lead/domain"
	webhookdomain "github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Provider is the ledger namespace for telephony events.
const Provider = "telephony"

// EventCallEnded is the only event type the reconciler acts on.
const EventCallEnded = "CALL_ENDED"

// calledSuffixLen is how many trailing digits of the called number are used
// for the fallback match. Numbers reach the PBX with inconsistent prefixes,
// so the suffix is the stable part.
const calledSuffixLen = 8

// CallEvent is one flat PBX webhook event. The wire keys are the provider's
// camelCase names; `id` is the provider call id.
type CallEvent struct {
	EventType   string     `json:"eventType"`
	CallID      string     `json:"id"`
	Caller      string     `json:"caller"`
	Called      string     `json:"called"`
	HangupCause string     `json:"hangupCause"`
	Duration    int        `json:"duration"`
	AnsweredAt  *time.Time `json:"answeredAt"`
}

// hangupCauseStatus maps PBX hangup causes onto call outcomes. Unlisted
// causes leave the record untouched.
var hangupCauseStatus = map[string]string{
	"NO_ANSWER":          calldomain.StatusNoContact,
	"ORIGINATOR_CANCEL":  calldomain.StatusNoContact,
	"USER_BUSY":          calldomain.StatusBusy,
	"CALL_REJECTED":      calldomain.StatusRefused,
	"UNALLOCATED_NUMBER": calldomain.StatusInvalidNumber,
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Ledger webhookdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	ledger webhookdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("reconcile.telephony"),
		clock:  p.Clock,
		ledger: p.Ledger,
	}
}

// ProcessCallEnded correlates one finished call with its record and settles
// the outcome. Correlation misses are logged and dropped; the provider gets
// its ack either way.
func (s *Service) ProcessCallEnded(ctx context.Context, evt CallEvent) error {
	if evt.EventType != EventCallEnded {
		return nil
	}

	inserted, err := s.ledger.MarkProcessed(ctx, Provider, evt.CallID, evt.EventType, nil)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	record, err := s.findRecord(ctx, evt)
	if err != nil {
		return err
	}
	if record == nil {
		s.log.Warn("call event matched no record",
			zap.String("call_id", evt.CallID),
			zap.String("called", evt.Called),
		)
		return nil
	}

	status := record.Status
	if status == calldomain.StatusNotConnected {
		if mapped, ok := hangupCauseStatus[evt.HangupCause]; ok {
			status = mapped
		}
	}
	// An answered call with talk time outranks both the placeholder and any
	// hangup-cause heuristic.
	if evt.AnsweredAt != nil && evt.Duration > 0 {
		status = calldomain.StatusSignificant
	}

	updates := map[string]any{
		"duration":   evt.Duration,
		"updated_at": s.clock.Now(),
	}
	if evt.AnsweredAt != nil {
		updates["answered_at"] = evt.AnsweredAt
	}
	if status != record.Status {
		updates["status"] = status
	}

	if err := s.db.WithContext(ctx).
		Model(&calldomain.CallRecord{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; err != nil {
		return err
	}

	s.log.Info("call outcome settled",
		zap.String("call_id", evt.CallID),
		zap.String("record_id", record.ID.String()),
		zap.String("status", status),
		zap.Int("duration", evt.Duration),
	)
	return nil
}

// findRecord resolves the call record: first by the provider call id stashed
// in metadata at call-initiation time, then by weak matching on the caller
// line plus the called-number suffix, newest first.
func (s *Service) findRecord(ctx context.Context, evt CallEvent) (*calldomain.CallRecord, error) {
	if strings.TrimSpace(evt.CallID) != "" {
		var record calldomain.CallRecord
		err := s.db.WithContext(ctx).
			Where(s.providerCallIDClause(), evt.CallID).
			First(&record).Error
		if err == nil {
			return &record, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	candidates := leaddomain.PhoneCandidates(evt.Caller)
	suffix := calledSuffix(evt.Called)
	if len(candidates) == 0 || suffix == "" {
		return nil, nil
	}

	var record calldomain.CallRecord
	err := s.db.WithContext(ctx).
		Where("caller IN ? AND phone_called LIKE ?", candidates, "%"+suffix).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) providerCallIDClause() string {
	if strings.EqualFold(s.db.Dialector.Name(), "postgres") {
		return "metadata ->> 'provider_call_id' = ?"
	}
	return "json_extract(metadata, '$.provider_call_id') = ?"
}

func calledSuffix(called string) string {
	digits := make([]rune, 0, len(called))
	for _, r := range called {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) <= calledSuffixLen {
		return string(digits)
	}
	return string(digits[len(digits)-calledSuffixLen:])
}
