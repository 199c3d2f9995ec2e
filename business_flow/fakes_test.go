package businessflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cotizabot/cotizabot/app/services"
	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repositories for flow tests. Every read returns a copy so flows cannot mutate
// stored rows without going through Update.

var testLogger = slog.New(slog.DiscardHandler)

// capturingLogger returns a logger that writes text records into buf
func capturingLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// lockingTransactor serializes transactions, standing in for row locks
type lockingTransactor struct {
	mu sync.Mutex
}

func (t *lockingTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type fakeLeadRepo struct {
	mu     sync.Mutex
	nextID uint
	leads  map[uint]*models.Lead

	// concurrent runs once, as another writer committing around the next read of a lead.
	// Plain reads see it after they copied the row; locked reads wait for it.
	concurrent func(id uint)
}

var errLeadAssignmentCheck = errors.New(`new row for relation "leads" violates check constraint "chk_leads_assignment"`)

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: map[uint]*models.Lead{}}
}

func (r *fakeLeadRepo) ByID(ctx context.Context, id uint) (*models.Lead, error) {
	lead := r.read(id)
	r.runConcurrent(id)
	return lead, nil
}

func (r *fakeLeadRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.Lead, error) {
	r.runConcurrent(id)
	return r.read(id), nil
}

func (r *fakeLeadRepo) read(id uint) *models.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (r *fakeLeadRepo) runConcurrent(id uint) {
	r.mu.Lock()
	fn := r.concurrent
	r.concurrent = nil
	r.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

func (r *fakeLeadRepo) ByFilter(ctx context.Context, filter models.LeadFilter, orderBy string, limit, offset int) ([]*models.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Lead
	for _, l := range r.leads {
		if filter.AssignedBrokerID != nil && (l.AssignedBrokerID == nil || *l.AssignedBrokerID != *filter.AssignedBrokerID) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeLeadRepo) ByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.Phone == phone {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeLeadRepo) Save(ctx context.Context, lead *models.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.Phone == lead.Phone {
			return gorm.ErrDuplicatedKey
		}
	}
	r.nextID++
	lead.ID = r.nextID
	cp := *lead
	r.leads[lead.ID] = &cp
	return nil
}

func (r *fakeLeadRepo) SaveBatch(ctx context.Context, leads []*models.Lead) error {
	for _, l := range leads {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// Update writes the intake columns only, like the gorm repository, and rejects rows the
// assignment check constraint would reject.
func (r *fakeLeadRepo) Update(ctx context.Context, lead *models.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.leads[lead.ID]
	if !ok {
		return nil
	}
	row := *stored
	row.Name = lead.Name
	row.VehicleMake = lead.VehicleMake
	row.VehicleModel = lead.VehicleModel
	row.VehicleYear = lead.VehicleYear
	row.InsuredValue = lead.InsuredValue
	row.Status = lead.Status
	row.SelectedInsurerID = lead.SelectedInsurerID
	row.SelectedCoverageType = lead.SelectedCoverageType
	row.SelectedMonthlyPremium = lead.SelectedMonthlyPremium
	if (row.AssignedBrokerID == nil) != (row.Status != models.LeadStatusAssignedToBroker) {
		return errLeadAssignmentCheck
	}
	r.leads[lead.ID] = &row
	return nil
}

func (r *fakeLeadRepo) AssignIfUnassigned(ctx context.Context, leadID, brokerID uint, assignedAt, firstContactDeadline, reassignmentDeadline time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok || l.AssignedBrokerID != nil {
		return false, nil
	}
	l.AssignedBrokerID = utils.ToPtr(brokerID)
	l.AssignedAt = &assignedAt
	l.Status = models.LeadStatusAssignedToBroker
	if l.SLAFirstContactDeadline == nil {
		l.SLAFirstContactDeadline = &firstContactDeadline
	}
	if l.SLAReassignmentDeadline == nil {
		l.SLAReassignmentDeadline = &reassignmentDeadline
	}
	return true, nil
}

func (r *fakeLeadRepo) UnassignByBroker(ctx context.Context, brokerID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.leads {
		if l.AssignedBrokerID != nil && *l.AssignedBrokerID == brokerID {
			l.AssignedBrokerID = nil
			l.AssignedAt = nil
			l.Status = models.LeadStatusQuotedNoPreference
			n++
		}
	}
	return n, nil
}

func (r *fakeLeadRepo) get(id uint) *models.Lead {
	return r.read(id)
}

type fakeBrokerRepo struct {
	mu      sync.Mutex
	nextID  uint
	brokers map[uint]*models.Broker

	// listed runs once with the next batch of eligible brokers, before the caller sees it
	listed func(batch []*models.Broker)
}

func newFakeBrokerRepo() *fakeBrokerRepo {
	return &fakeBrokerRepo{brokers: map[uint]*models.Broker{}}
}

func (r *fakeBrokerRepo) add(status models.SubscriptionStatus, quota, current int) *models.Broker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	b := &models.Broker{
		ID:                 r.nextID,
		Name:               "Broker",
		Phone:              fmt.Sprintf("+52550000%04d", r.nextID),
		SubscriptionStatus: status,
		MonthlyLeadQuota:   quota,
		CurrentMonthLeads:  current,
		LoginActive:        utils.ToPtr(true),
	}
	r.brokers[b.ID] = b
	cp := *b
	return &cp
}

func (r *fakeBrokerRepo) ByID(ctx context.Context, id uint) (*models.Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBrokerRepo) ByFilter(ctx context.Context, filter models.BrokerFilter, orderBy string, limit, offset int) ([]*models.Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Broker
	for _, b := range r.brokers {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeBrokerRepo) Save(ctx context.Context, broker *models.Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	broker.ID = r.nextID
	cp := *broker
	r.brokers[broker.ID] = &cp
	return nil
}

func (r *fakeBrokerRepo) SaveBatch(ctx context.Context, brokers []*models.Broker) error {
	for _, b := range brokers {
		if err := r.Save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeBrokerRepo) Update(ctx context.Context, broker *models.Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *broker
	r.brokers[broker.ID] = &cp
	return nil
}

func (r *fakeBrokerRepo) ListEligibleForAssignment(ctx context.Context, limit int) ([]*models.Broker, error) {
	out := r.eligible(limit)

	r.mu.Lock()
	fn := r.listed
	r.listed = nil
	r.mu.Unlock()
	if fn != nil {
		fn(out)
	}
	return out, nil
}

func (r *fakeBrokerRepo) eligible(limit int) []*models.Broker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Broker
	for _, b := range r.brokers {
		if b.IsEligibleForAssignment() {
			cp := *b
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Broker) int {
		if a.CurrentMonthLeads != b.CurrentMonthLeads {
			return a.CurrentMonthLeads - b.CurrentMonthLeads
		}
		return int(a.ID) - int(b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// fill uses up the remaining quota of a broker, as assignments from another instance would
func (r *fakeBrokerRepo) fill(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.brokers[id]; ok {
		b.CurrentMonthLeads = b.MonthlyLeadQuota
	}
}

func (r *fakeBrokerRepo) IncrementLeadCountIfBelowQuota(ctx context.Context, brokerID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[brokerID]
	if !ok || !b.IsEligibleForAssignment() {
		return false, nil
	}
	b.CurrentMonthLeads++
	return true, nil
}

func (r *fakeBrokerRepo) UpdateSubscription(ctx context.Context, brokerID uint, status models.SubscriptionStatus, planID *uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[brokerID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.SubscriptionStatus = status
	if planID != nil {
		b.SubscriptionPlanID = planID
	}
	return nil
}

func (r *fakeBrokerRepo) SetLoginActive(ctx context.Context, brokerID uint, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[brokerID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.LoginActive = utils.ToPtr(active)
	return nil
}

func (r *fakeBrokerRepo) get(id uint) *models.Broker {
	b, _ := r.ByID(context.Background(), id)
	return b
}

type fakePlanRepo struct {
	mu    sync.Mutex
	plans map[uint]*models.SubscriptionPlan
}

func newFakePlanRepo(plans ...*models.SubscriptionPlan) *fakePlanRepo {
	r := &fakePlanRepo{plans: map[uint]*models.SubscriptionPlan{}}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *fakePlanRepo) ByID(ctx context.Context, id uint) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlanRepo) ByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePlanRepo) ByFilter(ctx context.Context, filter models.SubscriptionPlanFilter, orderBy string, limit, offset int) ([]*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SubscriptionPlan
	for _, p := range r.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakePlanRepo) Save(ctx context.Context, plan *models.SubscriptionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *plan
	r.plans[plan.ID] = &cp
	return nil
}

func (r *fakePlanRepo) SaveBatch(ctx context.Context, plans []*models.SubscriptionPlan) error {
	for _, p := range plans {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   uint
	accounts map[uint]*models.BrokerAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[uint]*models.BrokerAccount{}}
}

func (r *fakeAccountRepo) ByID(ctx context.Context, id uint) (*models.BrokerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.BrokerAccount, error) {
	return r.ByID(ctx, id)
}

func (r *fakeAccountRepo) ByBrokerID(ctx context.Context, brokerID uint) (*models.BrokerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.BrokerID == brokerID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ByBrokerIDForUpdate(ctx context.Context, brokerID uint) (*models.BrokerAccount, error) {
	return r.ByBrokerID(ctx, brokerID)
}

func (r *fakeAccountRepo) ByFilter(ctx context.Context, filter models.BrokerAccountFilter, orderBy string, limit, offset int) ([]*models.BrokerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BrokerAccount
	for _, a := range r.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeAccountRepo) Save(ctx context.Context, account *models.BrokerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.BrokerID == account.BrokerID || a.AccountNumber == account.AccountNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	r.nextID++
	account.ID = r.nextID
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) SaveBatch(ctx context.Context, accounts []*models.BrokerAccount) error {
	for _, a := range accounts {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAccountRepo) Update(ctx context.Context, account *models.BrokerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) ListIDsForMonthlyCharge(ctx context.Context) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for id, a := range r.accounts {
		if !a.IsSuspended() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *fakeAccountRepo) ListIDsForOverdueCheck(ctx context.Context) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for id, a := range r.accounts {
		if !a.IsSuspended() && a.IsOwing() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *fakeAccountRepo) get(id uint) *models.BrokerAccount {
	a, _ := r.ByID(context.Background(), id)
	return a
}

type fakeTransactionRepo struct {
	mu      sync.Mutex
	nextID  uint
	entries []*models.BrokerTransaction
}

func (r *fakeTransactionRepo) Save(ctx context.Context, entry *models.BrokerTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeTransactionRepo) ListByAccount(ctx context.Context, accountID uint) ([]*models.BrokerTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BrokerTransaction
	for _, e := range r.entries {
		if e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) Latest(ctx context.Context, accountID uint) (*models.BrokerTransaction, error) {
	entries, _ := r.ListByAccount(ctx, accountID)
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}

type fakeSequenceRepo struct {
	mu     sync.Mutex
	values map[string]int64
}

func newFakeSequenceRepo() *fakeSequenceRepo {
	return &fakeSequenceRepo{values: map[string]int64{}}
}

func (r *fakeSequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name]++
	return r.values[name], nil
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	nextID    uint
	snapshots []*models.LeadQuoteSnapshot
}

func (r *fakeSnapshotRepo) Save(ctx context.Context, snapshot *models.LeadQuoteSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	snapshot.ID = r.nextID
	cp := *snapshot
	r.snapshots = append(r.snapshots, &cp)
	return nil
}

func (r *fakeSnapshotRepo) LatestByLead(ctx context.Context, leadID uint) (*models.LeadQuoteSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].LeadID == leadID {
			cp := *r.snapshots[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSnapshotRepo) ListByLead(ctx context.Context, leadID uint) ([]*models.LeadQuoteSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LeadQuoteSnapshot
	for _, s := range r.snapshots {
		if s.LeadID == leadID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *fakeAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeAuditRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries), nil
}

func (r *fakeAuditRepo) Save(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uint(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) SaveBatch(ctx context.Context, entries []*models.AuditLog) error {
	for _, e := range entries {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAuditRepo) ListByBroker(ctx context.Context, brokerID uint, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.BrokerID != nil && *e.BrokerID == brokerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeInsurerRepo struct {
	insurers []*models.Insurer
	err      error
}

func (r *fakeInsurerRepo) ListActiveWithRates(ctx context.Context) ([]*models.Insurer, error) {
	return r.insurers, r.err
}

type fakeBlacklistRepo struct {
	entries []*models.InsurabilityBlacklistEntry
}

func (r *fakeBlacklistRepo) ByMakeModel(ctx context.Context, vehicleMake, vehicleModel string) ([]*models.InsurabilityBlacklistEntry, error) {
	var out []*models.InsurabilityBlacklistEntry
	for _, e := range r.entries {
		if strings.EqualFold(e.Make, vehicleMake) && strings.EqualFold(e.Model, vehicleModel) {
			out = append(out, e)
		}
	}
	return out, nil
}

type sentNotification struct {
	Recipient string
	Kind      services.NotificationKind
	Payload   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient string, kind services.NotificationKind, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipient, Kind: kind, Payload: payload})
	return n.err
}

func (n *recordingNotifier) kinds() []services.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]services.NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []services.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...services.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryStatementStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memoryStatementStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = body
	return "s3://statements/" + key, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
