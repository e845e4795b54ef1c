package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/persistence"
	"github.com/ticketops/sla-engine/internal/repository"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

type fakeTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	order     []string
	assignErr error
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, t := range tickets {
		repo.tickets[t.ID] = t
		repo.order = append(repo.order, t.ID)
	}
	return repo
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListOpen(_ context.Context, limit, offset int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []domain.Ticket
	for _, id := range r.order {
		t := r.tickets[id]
		if !t.Closed() {
			open = append(open, *t)
		}
	}
	if offset >= len(open) {
		return nil, nil
	}
	end := offset + limit
	if end > len(open) {
		end = len(open)
	}
	return open[offset:end], nil
}

func (r *fakeTicketRepo) UpdateAssignee(_ context.Context, ticketID, assigneeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assignErr != nil {
		return r.assignErr
	}
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.AssigneeID = &assigneeID
	return nil
}

type fakePolicyRepo struct {
	mu       sync.Mutex
	byID     map[string]*domain.SlaPolicy
	byPair   map[string]*domain.SlaPolicy
	creates  int
	failNext error
}

func newFakePolicyRepo(policies ...*domain.SlaPolicy) *fakePolicyRepo {
	repo := &fakePolicyRepo{
		byID:   make(map[string]*domain.SlaPolicy),
		byPair: make(map[string]*domain.SlaPolicy),
	}
	for _, p := range policies {
		repo.byID[p.ID] = p
		if p.Active {
			repo.byPair[p.ApplicationID+"|"+string(p.Priority)] = p
		}
	}
	return repo
}

func (r *fakePolicyRepo) Create(_ context.Context, policy *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	key := policy.ApplicationID + "|" + string(policy.Priority)
	if policy.Active {
		if _, exists := r.byPair[key]; exists {
			return repository.ErrDuplicateActivePolicy
		}
		r.byPair[key] = policy
	}
	if policy.ID == "" {
		policy.ID = "policy-" + key
	}
	r.byID[policy.ID] = policy
	r.creates++
	return nil
}

func (r *fakePolicyRepo) Update(_ context.Context, policy *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.byID[policy.ID] = policy
	key := policy.ApplicationID + "|" + string(policy.Priority)
	if policy.Active {
		r.byPair[key] = policy
	} else if r.byPair[key] != nil && r.byPair[key].ID == policy.ID {
		delete(r.byPair, key)
	}
	return nil
}

func (r *fakePolicyRepo) GetByID(_ context.Context, id string) (*domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *policy
	return &copied, nil
}

func (r *fakePolicyRepo) ResolveActive(_ context.Context, applicationID string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.byPair[applicationID+"|"+string(priority)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *policy
	return &copied, nil
}

func (r *fakePolicyRepo) List(_ context.Context, _ repository.PolicyFilter) ([]domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var policies []domain.SlaPolicy
	for _, p := range r.byID {
		policies = append(policies, *p)
	}
	return policies, nil
}

type fakeViolationRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.SlaViolation
	// open mirrors the partial unique index on (ticket_id, kind) WHERE NOT resolved
	open map[string]*domain.SlaViolation
}

func newFakeViolationRepo() *fakeViolationRepo {
	return &fakeViolationRepo{
		byID: make(map[string]*domain.SlaViolation),
		open: make(map[string]*domain.SlaViolation),
	}
}

func openKey(ticketID string, kind domain.ViolationKind) string {
	return ticketID + "|" + string(kind)
}

func (r *fakeViolationRepo) Insert(_ context.Context, v *domain.SlaViolation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := openKey(v.TicketID, v.Kind)
	if _, exists := r.open[key]; exists {
		return false, nil
	}
	copied := *v
	r.byID[v.ID] = &copied
	r.open[key] = &copied
	return true, nil
}

func (r *fakeViolationRepo) GetByID(_ context.Context, id string) (*domain.SlaViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	violation, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *violation
	return &copied, nil
}

func (r *fakeViolationRepo) GetOpen(_ context.Context, ticketID string, kind domain.ViolationKind) (*domain.SlaViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	violation, ok := r.open[openKey(ticketID, kind)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *violation
	return &copied, nil
}

func (r *fakeViolationRepo) RefreshDelay(_ context.Context, id string, delayHours float64, severity domain.ViolationSeverity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	violation, ok := r.byID[id]
	if !ok || violation.Resolved {
		return pgx.ErrNoRows
	}
	violation.DelayHours = delayHours
	violation.Severity = severity
	return nil
}

func (r *fakeViolationRepo) MarkResolved(_ context.Context, id string, resolvedBy *string, comment *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	violation, ok := r.byID[id]
	if !ok || violation.Resolved {
		return pgx.ErrNoRows
	}
	violation.Resolved = true
	violation.ResolvedBy = resolvedBy
	violation.ResolutionComment = comment
	violation.ResolvedAt = &at
	delete(r.open, openKey(violation.TicketID, violation.Kind))
	return nil
}

func (r *fakeViolationRepo) CloseSatisfied(_ context.Context, ticketID string, kind domain.ViolationKind, actualAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	violation, ok := r.open[openKey(ticketID, kind)]
	if !ok {
		return nil
	}
	violation.Resolved = true
	violation.ActualAt = &actualAt
	if delay := actualAt.Sub(violation.ExpectedAt).Hours(); delay > 0 {
		violation.DelayHours = delay
	}
	violation.ResolvedAt = &actualAt
	delete(r.open, openKey(ticketID, kind))
	return nil
}

func (r *fakeViolationRepo) List(_ context.Context, filter repository.ViolationFilter) ([]domain.SlaViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var violations []domain.SlaViolation
	for _, v := range r.byID {
		if filter.TicketID != nil && v.TicketID != *filter.TicketID {
			continue
		}
		if filter.Kind != nil && v.Kind != *filter.Kind {
			continue
		}
		if filter.Resolved != nil && v.Resolved != *filter.Resolved {
			continue
		}
		violations = append(violations, *v)
	}
	return violations, nil
}

type fakeEscalationRepo struct {
	mu       sync.Mutex
	byTicket map[string][]domain.Escalation
}

func newFakeEscalationRepo() *fakeEscalationRepo {
	return &fakeEscalationRepo{byTicket: make(map[string][]domain.Escalation)}
}

func (r *fakeEscalationRepo) Insert(_ context.Context, e *domain.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byTicket[e.TicketID] {
		if existing.Level == e.Level {
			return apperrors.NewEscalationConflict(e.TicketID, e.Level)
		}
	}
	e.CreatedAt = time.Now()
	r.byTicket[e.TicketID] = append(r.byTicket[e.TicketID], *e)
	return nil
}

func (r *fakeEscalationRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Escalation(nil), r.byTicket[ticketID]...), nil
}

func (r *fakeEscalationRepo) Latest(_ context.Context, ticketID string) (*domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := r.byTicket[ticketID]
	if len(records) == 0 {
		return nil, pgx.ErrNoRows
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (r *fakeEscalationRepo) CurrentLevel(_ context.Context, ticketID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	level := 0
	for _, e := range r.byTicket[ticketID] {
		if e.Level > level {
			level = e.Level
		}
	}
	return level, nil
}

// fakeLocker mirrors the redis SET NX lock: a held ticket fails fast with
// persistence.ErrLockHeld instead of blocking, so tests exercise the same
// acquire-retry path production does.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Lock(_ context.Context, ticketID string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[ticketID] {
		return nil, persistence.ErrLockHeld
	}
	l.held[ticketID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, ticketID)
	}, nil
}

type fakeAssignees struct {
	assignee string
	err      error
}

func (a *fakeAssignees) NextAssignee(_ context.Context, _ *domain.Ticket, _ int) (string, error) {
	return a.assignee, a.err
}

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules map[string]*domain.NotificationRule
}

func newFakeRuleRepo(rules ...*domain.NotificationRule) *fakeRuleRepo {
	repo := &fakeRuleRepo{rules: make(map[string]*domain.NotificationRule)}
	for _, r := range rules {
		repo.rules[r.ID] = r
	}
	return repo
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *domain.NotificationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeRuleRepo) Update(_ context.Context, rule *domain.NotificationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeRuleRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.rules, id)
	return nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id string) (*domain.NotificationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *rule
	return &copied, nil
}

func (r *fakeRuleRepo) List(_ context.Context, _, _ int) ([]domain.NotificationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rules []domain.NotificationRule
	for _, rule := range r.rules {
		rules = append(rules, *rule)
	}
	return rules, nil
}

func (r *fakeRuleRepo) ListActiveByTrigger(_ context.Context, trigger domain.RuleTrigger) ([]domain.NotificationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rules []domain.NotificationRule
	for _, rule := range r.rules {
		if rule.Active && rule.Trigger == trigger {
			rules = append(rules, *rule)
		}
	}
	return rules, nil
}

// captureDispatcher records published events for assertions.
type captureDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *captureDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *captureDispatcher) Subscribe(_ events.EventType, _ events.EventHandler) {}

func (d *captureDispatcher) published(t events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []events.Event
	for _, e := range d.events {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}
