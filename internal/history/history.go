// Package history is the sales reconciliation engine: pure filtering and
// aggregation over the transaction log, plus a service that fetches the log
// once per view activation and retains it for filter changes.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
)

var (
	// ErrFetchFailed reports a log retrieval failure. The previously
	// retained log stays visible so the operator keeps a stale view
	// instead of a blank one.
	ErrFetchFailed = errors.New("history: fetch failed")

	// ErrNoSalesToday guards shift closing when there is nothing to report.
	ErrNoSalesToday = errors.New("history: no sales recorded today")
)

// Filtered applies the reconciliation filter by predicate composition.
// Records whose creation timestamp does not parse are dropped. The start
// bound snaps to start-of-day and the end bound to 23:59:59.999 local time;
// the payment method match is case-insensitive.
func Filtered(records []domain.SaleRecord, filter domain.HistoryFilter) []domain.SaleRecord {
	var start, end time.Time
	hasStart, hasEnd := false, false
	if filter.StartDate != "" {
		if day, err := time.ParseInLocation("2006-01-02", filter.StartDate, time.Local); err == nil {
			start = day
			hasStart = true
		}
	}
	if filter.EndDate != "" {
		if day, err := time.ParseInLocation("2006-01-02", filter.EndDate, time.Local); err == nil {
			end = day.Add(24*time.Hour - time.Millisecond)
			hasEnd = true
		}
	}

	method := strings.ToLower(strings.TrimSpace(filter.Method))

	matched := make([]domain.SaleRecord, 0, len(records))
	for _, record := range records {
		at, ok := domain.ParseSaleTime(record.CreatedAt)
		if !ok {
			continue
		}
		at = at.In(time.Local)
		if hasStart && at.Before(start) {
			continue
		}
		if hasEnd && at.After(end) {
			continue
		}
		if method != "" && method != domain.MethodFilterAll &&
			strings.ToLower(record.PaymentMethod) != method {
			continue
		}
		matched = append(matched, record)
	}
	return matched
}

// Summarize reduces records into cash/QRIS/grand totals. Order-independent.
func Summarize(records []domain.SaleRecord) domain.HistorySummary {
	summary := domain.HistorySummary{}
	for _, record := range records {
		switch strings.ToLower(record.PaymentMethod) {
		case domain.MethodFilterCash:
			summary.CashTotal += record.TotalAmount
		case domain.MethodFilterQRIS:
			summary.QRISTotal += record.TotalAmount
		}
	}
	summary.GrandTotal = summary.CashTotal + summary.QRISTotal
	return summary
}

// TodaySummary aggregates the records whose creation timestamp falls on the
// same calendar day as now, in now's location. Pure in (records, now): a
// record slips out of the today set at midnight with no rollover event.
func TodaySummary(records []domain.SaleRecord, now time.Time) domain.HistorySummary {
	return Summarize(todaySubset(records, now))
}

func todaySubset(records []domain.SaleRecord, now time.Time) []domain.SaleRecord {
	y, m, d := now.Date()
	subset := make([]domain.SaleRecord, 0, len(records))
	for _, record := range records {
		at, ok := domain.ParseSaleTime(record.CreatedAt)
		if !ok {
			continue
		}
		ry, rm, rd := at.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			subset = append(subset, record)
		}
	}
	return subset
}

// Service owns the retained transaction log for the reconciliation view.
type Service struct {
	repo store.Repository

	mu      sync.RWMutex
	records []domain.SaleRecord
	loaded  bool
}

func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// Activate fetches the full log once for this view activation. On failure
// the retained log is kept and ErrFetchFailed is returned for the caller to
// surface; filter changes keep working against the stale data.
func (s *Service) Activate(ctx context.Context) error {
	records, err := s.repo.ListSales(ctx)
	if err != nil {
		log.Printf("[history] WARN: sales log fetch failed, keeping retained view: %v", err)
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	s.mu.Lock()
	s.records = records
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *Service) snapshot() []domain.SaleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.SaleRecord, len(s.records))
	copy(records, s.records)
	return records
}

// Query filters the retained log and summarizes the matching records.
func (s *Service) Query(filter domain.HistoryFilter) ([]domain.SaleRecord, domain.HistorySummary) {
	matched := Filtered(s.snapshot(), filter)
	return matched, Summarize(matched)
}

// Today reports the rolling same-day summary over the unfiltered log.
func (s *Service) Today(now time.Time) domain.HistorySummary {
	return TodaySummary(s.snapshot(), now)
}

// Detail returns one sale by id, preferring the retained log and falling
// back to the store for records submitted after the last activation.
func (s *Service) Detail(ctx context.Context, id string) (*domain.SaleRecord, error) {
	for _, record := range s.snapshot() {
		if record.ID == id {
			found := record
			return &found, nil
		}
	}
	return s.repo.GetSale(ctx, id)
}

// DailyReport produces the shift-closing summary for now's calendar day. It
// is a pure snapshot of the retained log, not a durable close-out; the only
// guard is that today has at least one transaction.
func (s *Service) DailyReport(now time.Time) (domain.HistorySummary, error) {
	subset := todaySubset(s.snapshot(), now)
	if len(subset) == 0 {
		return domain.HistorySummary{}, ErrNoSalesToday
	}
	return Summarize(subset), nil
}
