package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cotizabot/cotizabot/app/services"
	"github.com/cotizabot/cotizabot/config"
	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/repository"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// BillingFlow owns broker accounts and their append-only ledger
type BillingFlow interface {
	CreateAccount(ctx context.Context, brokerID, planID uint, metadata *ClientMetadata) (*models.BrokerAccount, error)
	// GenerateMonthlyCharges is a no-op unless forceManual is set or today is the 1st.
	// Running it twice in a month charges each account once.
	GenerateMonthlyCharges(ctx context.Context, forceManual bool, metadata *ClientMetadata) (*MonthlyChargeResult, error)
	CheckOverdueAccounts(ctx context.Context, metadata *ClientMetadata) (*OverdueCheckResult, error)
	ApplyPayment(ctx context.Context, req PaymentInput, metadata *ClientMetadata) (decimal.Decimal, error)
	ApplyAdjustment(ctx context.Context, req AdjustmentInput, metadata *ClientMetadata) (decimal.Decimal, error)
	ReconcileAccount(ctx context.Context, accountID uint) (*Reconciliation, error)
	GetStatement(ctx context.Context, brokerID uint) (*Statement, error)
	ExportStatement(ctx context.Context, brokerID uint, metadata *ClientMetadata) (*StatementExport, error)
}

// PaymentInput is money received from a broker
type PaymentInput struct {
	BrokerID        uint
	Amount          decimal.Decimal
	ReferenceNumber *string
	Description     *string
	CreatedBy       *string
}

// AdjustmentInput is a manual signed correction of a broker balance
type AdjustmentInput struct {
	BrokerID    uint
	Amount      decimal.Decimal
	Description string
	CreatedBy   *string
}

// MonthlyChargeResult summarizes one monthly charge run
type MonthlyChargeResult struct {
	// Skipped is true when the run was not forced and today is not the 1st.
	Skipped        bool `json:"skipped"`
	Charged        int  `json:"charged"`
	AlreadyCharged int  `json:"already_charged"`
	Suspended      int  `json:"suspended"`
	Failed         int  `json:"failed"`
}

// OverdueCheckResult summarizes one overdue check run
type OverdueCheckResult struct {
	MovedToGracePeriod int `json:"moved_to_grace_period"`
	Suspended          int `json:"suspended"`
	Unchanged          int `json:"unchanged"`
	Failed             int `json:"failed"`
}

// Reconciliation compares an account header with a replay of its ledger
type Reconciliation struct {
	AccountID        uint            `json:"account_id"`
	HeaderBalance    decimal.Decimal `json:"header_balance"`
	ReplayedBalance  decimal.Decimal `json:"replayed_balance"`
	LastBalanceAfter decimal.Decimal `json:"last_balance_after"`
	EntryCount       int             `json:"entry_count"`
	// FirstBrokenEntryID is the first entry whose BalanceAfter does not continue the chain.
	FirstBrokenEntryID *uint `json:"first_broken_entry_id,omitempty"`
	Consistent         bool  `json:"consistent"`
}

// Statement is an account header with its ledger in append order
type Statement struct {
	Account      *models.BrokerAccount       `json:"account"`
	Plan         *models.SubscriptionPlan    `json:"plan,omitempty"`
	Transactions []*models.BrokerTransaction `json:"transactions"`
}

// BillingFlowImpl implements the billing ledger
type BillingFlowImpl struct {
	brokerRepo  repository.BrokerRepository
	planRepo    repository.SubscriptionPlanRepository
	accountRepo repository.BrokerAccountRepository
	txRepo      repository.BrokerTransactionRepository
	seqRepo     repository.SequenceCounterRepository
	auditRepo   repository.AuditLogRepository
	tx          repository.Transactor
	notifier    services.NotificationService
	events      services.EventPublisher
	store       services.StatementStore

	cfg         config.BillingConfig
	loc         *time.Location
	parallelism int
	logger      *slog.Logger
	now         func() time.Time
}

// NewBillingFlow creates a new billing flow. store may be nil, in which case exported statements
// are not archived.
func NewBillingFlow(
	brokerRepo repository.BrokerRepository,
	planRepo repository.SubscriptionPlanRepository,
	accountRepo repository.BrokerAccountRepository,
	txRepo repository.BrokerTransactionRepository,
	seqRepo repository.SequenceCounterRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
	notifier services.NotificationService,
	events services.EventPublisher,
	store services.StatementStore,
	cfg config.BillingConfig,
	parallelism int,
	logger *slog.Logger,
) BillingFlow {
	loc, err := utils.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown billing timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = utils.GracePeriod
	}
	if cfg.LateSignupDay <= 0 {
		cfg.LateSignupDay = DefaultLateSignupDay
	}
	if cfg.AccountNumberPrefix == "" {
		cfg.AccountNumberPrefix = utils.AccountNumberPrefix
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	return &BillingFlowImpl{
		brokerRepo:  brokerRepo,
		planRepo:    planRepo,
		accountRepo: accountRepo,
		txRepo:      txRepo,
		seqRepo:     seqRepo,
		auditRepo:   auditRepo,
		tx:          tx,
		notifier:    notifier,
		events:      events,
		store:       store,
		cfg:         cfg,
		loc:         loc,
		parallelism: parallelism,
		logger:      logger,
		now:         utils.UTCNow,
	}
}

// FormatAccountNumber renders a sequence value as a human readable account number, e.g. ACC-003
func FormatAccountNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%03d", prefix, seq)
}

func (b *BillingFlowImpl) CreateAccount(ctx context.Context, brokerID, planID uint, metadata *ClientMetadata) (*models.BrokerAccount, error) {
	plan, err := b.planRepo.ByID(ctx, planID)
	if err != nil {
		return nil, NewBusinessError("PLAN_LOOKUP_FAILED", "Failed to load subscription plan", err)
	}
	if plan == nil {
		b.auditCreateFailure(ctx, brokerID, ErrPlanNotFound, metadata)
		return nil, NewBusinessError("PLAN_NOT_FOUND", "Subscription plan not found", ErrPlanNotFound)
	}
	if !plan.Amount.IsPositive() {
		return nil, NewBusinessError("INVALID_PLAN_AMOUNT", "Subscription plan amount must be positive", ErrInvalidAmount)
	}

	broker, err := b.brokerRepo.ByID(ctx, brokerID)
	if err != nil {
		return nil, NewBusinessError("BROKER_LOOKUP_FAILED", "Failed to load broker", err)
	}
	if broker == nil {
		b.auditCreateFailure(ctx, brokerID, ErrBrokerNotFound, metadata)
		return nil, NewBusinessError("BROKER_NOT_FOUND", "Broker not found", ErrBrokerNotFound)
	}

	var account *models.BrokerAccount
	err = b.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := b.accountRepo.ByBrokerIDForUpdate(txCtx, brokerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAccountAlreadyExists
		}

		seq, err := b.seqRepo.Next(txCtx, utils.AccountNumberSequence)
		if err != nil {
			return err
		}

		now := b.now()
		balance := plan.Amount.Neg().Round(2)
		account = &models.BrokerAccount{
			AccountNumber:         FormatAccountNumber(b.cfg.AccountNumberPrefix, seq),
			BrokerID:              brokerID,
			PlanID:                plan.ID,
			CurrentBalance:        decimal.Zero,
			Currency:              plan.Currency,
			SubscriptionStartDate: now,
			LastChargeDate:        &now,
			NextDueDate:           InitialDueDate(now.In(b.loc), b.cfg.LateSignupDay),
			AccountStatus:         models.AccountStatusActive,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if account.Currency == "" {
			account.Currency = b.cfg.Currency
		}

		if err := b.accountRepo.Save(txCtx, account); err != nil {
			return err
		}

		// The initial charge is due immediately
		_, err = b.appendEntry(txCtx, account, models.BrokerTransactionTypeCharge, balance,
			fmt.Sprintf("Initial charge for plan %s", plan.Name), nil, &now, actorOf(metadata), now)
		if err != nil {
			return err
		}
		if err := b.accountRepo.Update(txCtx, account); err != nil {
			return err
		}

		return b.brokerRepo.UpdateSubscription(txCtx, brokerID, models.SubscriptionStatusActive, &plan.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountAlreadyExists):
			b.auditCreateFailure(ctx, brokerID, err, metadata)
			return nil, NewBusinessError("ACCOUNT_ALREADY_EXISTS", "Broker already has an account", err)
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// Lost a race on one of the unique indexes
			if existing, lookupErr := b.accountRepo.ByBrokerID(ctx, brokerID); lookupErr == nil && existing != nil {
				return nil, NewBusinessError("ACCOUNT_ALREADY_EXISTS", "Broker already has an account", ErrAccountAlreadyExists)
			}
			return nil, NewBusinessError("ACCOUNT_NUMBER_CONFLICT", "Account number already in use", ErrAccountNumberConflict)
		}
		b.auditCreateFailure(ctx, brokerID, err, metadata)
		return nil, NewBusinessError("ACCOUNT_CREATION_FAILED", "Failed to create broker account", err)
	}

	msg := fmt.Sprintf("Created account %s for broker %d on plan %s", account.AccountNumber, brokerID, plan.Name)
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{BrokerID: &brokerID, AccountID: &account.ID},
		models.AuditActionAccountCreated, msg, true, nil, map[string]any{
			"account_number": account.AccountNumber,
			"plan_id":        plan.ID,
			"next_due_date":  account.NextDueDate,
		}, metadata)
	b.logger.Info("broker account created", "account_number", account.AccountNumber, "broker_id", brokerID)

	return account, nil
}

func (b *BillingFlowImpl) auditCreateFailure(ctx context.Context, brokerID uint, cause error, metadata *ClientMetadata) {
	errMsg := cause.Error()
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{BrokerID: &brokerID},
		models.AuditActionAccountCreateFailed, fmt.Sprintf("Account creation failed for broker %d", brokerID),
		false, &errMsg, nil, metadata)
}

// appendEntry writes the next ledger entry of an account whose row is locked by the caller and
// moves the header balance. The caller persists the header.
func (b *BillingFlowImpl) appendEntry(ctx context.Context, account *models.BrokerAccount, typ models.BrokerTransactionType, amount decimal.Decimal, description string, reference *string, dueDate *time.Time, createdBy *string, at time.Time) (*models.BrokerTransaction, error) {
	amount = amount.Round(2)
	balanceAfter := account.CurrentBalance.Add(amount)

	entry := &models.BrokerTransaction{
		AccountID:       account.ID,
		BrokerID:        account.BrokerID,
		Type:            typ,
		Amount:          amount,
		BalanceAfter:    balanceAfter,
		Description:     description,
		ReferenceNumber: reference,
		DueDate:         dueDate,
		CreatedBy:       createdBy,
		CreatedAt:       at,
	}
	if err := b.txRepo.Save(ctx, entry); err != nil {
		return nil, err
	}

	account.CurrentBalance = balanceAfter
	ledgerEntriesTotal.WithLabelValues(string(typ)).Inc()

	return entry, nil
}

// forEachAccount runs fn for every id with bounded parallelism. A failing account does not stop
// the others; only cancellation of ctx aborts the run.
func (b *BillingFlowImpl) forEachAccount(ctx context.Context, ids []uint, fn func(ctx context.Context, id uint)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, id)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type chargeOutcome int

const (
	chargeOutcomeCharged chargeOutcome = iota
	chargeOutcomeAlreadyCharged
	chargeOutcomeSuspended
)

func (b *BillingFlowImpl) GenerateMonthlyCharges(ctx context.Context, forceManual bool, metadata *ClientMetadata) (*MonthlyChargeResult, error) {
	result := &MonthlyChargeResult{}

	now := b.now()
	if !forceManual && !IsFirstOfMonth(now.In(b.loc)) {
		result.Skipped = true
		return result, nil
	}

	ids, err := b.accountRepo.ListIDsForMonthlyCharge(ctx)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to list accounts for monthly charge", err)
	}

	var mu sync.Mutex
	err = b.forEachAccount(ctx, ids, func(ctx context.Context, id uint) {
		outcome, err := b.chargeAccount(ctx, id, now, metadata)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed++
			b.logger.Error("monthly charge failed", "account_id", id, "error", err)
			return
		}
		switch outcome {
		case chargeOutcomeCharged:
			result.Charged++
		case chargeOutcomeAlreadyCharged:
			result.AlreadyCharged++
		case chargeOutcomeSuspended:
			result.Suspended++
		}
	})
	if err != nil {
		return result, NewBusinessError("MONTHLY_CHARGES_INTERRUPTED", "Monthly charge run was interrupted", err)
	}

	msg := fmt.Sprintf("Monthly charges: %d charged, %d already charged, %d failed", result.Charged, result.AlreadyCharged, result.Failed)
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{}, models.AuditActionBillingJobCompleted, msg, result.Failed == 0, nil,
		map[string]any{"job": "monthly_charges", "force_manual": forceManual, "result": result}, metadata)
	b.logger.Info("monthly charge run finished",
		"charged", result.Charged,
		"already_charged", result.AlreadyCharged,
		"suspended", result.Suspended,
		"failed", result.Failed,
	)

	return result, nil
}

// chargeAccount posts the plan fee once per calendar month. The month marker is checked under
// the account row lock so overlapping runs cannot both charge.
func (b *BillingFlowImpl) chargeAccount(ctx context.Context, accountID uint, now time.Time, metadata *ClientMetadata) (chargeOutcome, error) {
	var outcome chargeOutcome
	var account *models.BrokerAccount
	var entry *models.BrokerTransaction

	err := b.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		account, err = b.accountRepo.ByIDForUpdate(txCtx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAccountNotFound
		}
		if account.IsSuspended() {
			outcome = chargeOutcomeSuspended
			return nil
		}
		if account.LastChargeDate != nil && utils.SameMonth(*account.LastChargeDate, now, b.loc) {
			outcome = chargeOutcomeAlreadyCharged
			return nil
		}

		plan, err := b.planRepo.ByID(txCtx, account.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return ErrPlanNotFound
		}

		nextDue := NextCycleDueDate(now.In(b.loc))
		desc := fmt.Sprintf("Monthly charge for plan %s (%s)", plan.Name, now.In(b.loc).Format("2006-01"))
		entry, err = b.appendEntry(txCtx, account, models.BrokerTransactionTypeCharge, plan.Amount.Neg(), desc, nil, &nextDue, actorOf(metadata), now)
		if err != nil {
			return err
		}

		account.LastChargeDate = &now
		account.NextDueDate = nextDue
		outcome = chargeOutcomeCharged
		return b.accountRepo.Update(txCtx, account)
	})
	if err != nil {
		return 0, err
	}

	if outcome == chargeOutcomeCharged {
		msg := fmt.Sprintf("Posted monthly charge of %s to account %s", entry.Amount.Neg().StringFixed(2), account.AccountNumber)
		createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{BrokerID: &account.BrokerID, AccountID: &account.ID},
			models.AuditActionMonthlyChargePosted, msg, true, nil, map[string]any{"balance_after": entry.BalanceAfter}, metadata)
	}

	return outcome, nil
}

type overdueOutcome int

const (
	overdueOutcomeUnchanged overdueOutcome = iota
	overdueOutcomeGracePeriod
	overdueOutcomeSuspended
)

func (b *BillingFlowImpl) CheckOverdueAccounts(ctx context.Context, metadata *ClientMetadata) (*OverdueCheckResult, error) {
	result := &OverdueCheckResult{}
	now := b.now()

	ids, err := b.accountRepo.ListIDsForOverdueCheck(ctx)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to list accounts for overdue check", err)
	}

	var mu sync.Mutex
	err = b.forEachAccount(ctx, ids, func(ctx context.Context, id uint) {
		outcome, err := b.checkAccount(ctx, id, now, metadata)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed++
			b.logger.Error("overdue check failed", "account_id", id, "error", err)
			return
		}
		switch outcome {
		case overdueOutcomeGracePeriod:
			result.MovedToGracePeriod++
		case overdueOutcomeSuspended:
			result.Suspended++
		default:
			result.Unchanged++
		}
	})
	if err != nil {
		return result, NewBusinessError("OVERDUE_CHECK_INTERRUPTED", "Overdue check was interrupted", err)
	}

	msg := fmt.Sprintf("Overdue check: %d to grace period, %d suspended, %d unchanged, %d failed",
		result.MovedToGracePeriod, result.Suspended, result.Unchanged, result.Failed)
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{}, models.AuditActionBillingJobCompleted, msg, result.Failed == 0, nil,
		map[string]any{"job": "overdue_check", "result": result}, metadata)
	b.logger.Info("overdue check finished",
		"grace_period", result.MovedToGracePeriod,
		"suspended", result.Suspended,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
	)

	return result, nil
}

// checkAccount advances the overdue state machine of one account by at most one step.
// Transitions depend only on the locked row, so re-running on the same day changes nothing.
func (b *BillingFlowImpl) checkAccount(ctx context.Context, accountID uint, now time.Time, metadata *ClientMetadata) (overdueOutcome, error) {
	outcome := overdueOutcomeUnchanged
	var account *models.BrokerAccount

	err := b.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		outcome = overdueOutcomeUnchanged

		var err error
		account, err = b.accountRepo.ByIDForUpdate(txCtx, accountID)
		if err != nil {
			return err
		}
		if account == nil || !account.IsOwing() {
			return nil
		}

		switch account.AccountStatus {
		case models.AccountStatusActive, models.AccountStatusOverdue:
			if !now.After(account.NextDueDate) {
				return nil
			}
			graceEnd := now.Add(b.cfg.GracePeriod)
			account.AccountStatus = models.AccountStatusGracePeriod
			account.GracePeriodEnd = &graceEnd
			outcome = overdueOutcomeGracePeriod

		case models.AccountStatusGracePeriod:
			if account.GracePeriodEnd == nil {
				// Entered grace without an end date; start the window now.
				graceEnd := now.Add(b.cfg.GracePeriod)
				account.GracePeriodEnd = &graceEnd
				return b.accountRepo.Update(txCtx, account)
			}
			if !now.After(*account.GracePeriodEnd) {
				return nil
			}
			account.AccountStatus = models.AccountStatusSuspended
			if err := b.brokerRepo.UpdateSubscription(txCtx, account.BrokerID, models.SubscriptionStatusInactive, nil); err != nil {
				return err
			}
			if err := b.brokerRepo.SetLoginActive(txCtx, account.BrokerID, false); err != nil {
				return err
			}
			outcome = overdueOutcomeSuspended

		default:
			return nil
		}

		return b.accountRepo.Update(txCtx, account)
	})
	if err != nil {
		return overdueOutcomeUnchanged, err
	}

	switch outcome {
	case overdueOutcomeGracePeriod:
		accountTransitionsTotal.WithLabelValues(string(models.AccountStatusGracePeriod)).Inc()
		b.announce(ctx, account, services.NotificationAccountOverdue, services.EventAccountGracePeriod,
			models.AuditActionAccountGracePeriod, "Account moved to grace period", metadata)
	case overdueOutcomeSuspended:
		accountTransitionsTotal.WithLabelValues(string(models.AccountStatusSuspended)).Inc()
		b.announce(ctx, account, services.NotificationAccountSuspended, services.EventAccountSuspended,
			models.AuditActionAccountSuspended, "Account suspended for non-payment", metadata)
	}

	return outcome, nil
}

// announce notifies the broker, publishes the event and writes the audit entry of a committed
// account transition. Failures are logged and never undo the transition.
func (b *BillingFlowImpl) announce(ctx context.Context, account *models.BrokerAccount, kind services.NotificationKind, eventType, action, description string, metadata *ClientMetadata) {
	payload := map[string]string{
		"account_number": account.AccountNumber,
		"balance":        account.CurrentBalance.StringFixed(2) + " " + account.Currency,
	}
	if account.GracePeriodEnd != nil {
		payload["grace_period_end"] = account.GracePeriodEnd.In(b.loc).Format("2006-01-02 15:04")
	}

	broker, err := b.brokerRepo.ByID(ctx, account.BrokerID)
	switch {
	case err != nil:
		b.logger.Warn("failed to load broker for notification", "broker_id", account.BrokerID, "error", err)
	case broker == nil:
		b.logger.Warn("broker of account no longer exists", "broker_id", account.BrokerID)
	default:
		if err := b.notifier.Notify(ctx, broker.Phone, kind, payload); err != nil {
			b.logger.Warn("failed to notify broker", "broker_id", broker.ID, "kind", kind, "error", err)
		}
	}

	event := services.NewDomainEvent(eventType, account.ID, map[string]any{
		"account_id":       account.ID,
		"account_number":   account.AccountNumber,
		"broker_id":        account.BrokerID,
		"status":           account.AccountStatus,
		"balance":          account.CurrentBalance,
		"grace_period_end": account.GracePeriodEnd,
	})
	if err := b.events.Publish(ctx, event); err != nil {
		b.logger.Warn("failed to publish account event", "account_id", account.ID, "event", eventType, "error", err)
	}

	msg := fmt.Sprintf("%s: %s (balance %s)", description, account.AccountNumber, account.CurrentBalance.StringFixed(2))
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{BrokerID: &account.BrokerID, AccountID: &account.ID},
		action, msg, true, nil, nil, metadata)

	b.logger.Info(strings.ToLower(description), "account_number", account.AccountNumber, "status", account.AccountStatus)
}

func (b *BillingFlowImpl) ApplyPayment(ctx context.Context, req PaymentInput, metadata *ClientMetadata) (decimal.Decimal, error) {
	if !req.Amount.IsPositive() {
		return decimal.Zero, NewBusinessError("INVALID_PAYMENT_AMOUNT", "Payment amount must be positive", ErrInvalidAmount)
	}

	description := "Payment received"
	if req.Description != nil && strings.TrimSpace(*req.Description) != "" {
		description = strings.TrimSpace(*req.Description)
	}
	if req.CreatedBy == nil {
		req.CreatedBy = actorOf(metadata)
	}

	return b.credit(ctx, req.BrokerID, models.BrokerTransactionTypePayment, req.Amount, description, req.ReferenceNumber,
		req.CreatedBy, models.AuditActionPaymentApplied, metadata)
}

func (b *BillingFlowImpl) ApplyAdjustment(ctx context.Context, req AdjustmentInput, metadata *ClientMetadata) (decimal.Decimal, error) {
	if req.Amount.Round(2).IsZero() {
		return decimal.Zero, NewBusinessError("INVALID_ADJUSTMENT_AMOUNT", "Adjustment amount must not be zero", ErrInvalidAdjustment)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Manual adjustment"
	}
	if req.CreatedBy == nil {
		req.CreatedBy = actorOf(metadata)
	}

	return b.credit(ctx, req.BrokerID, models.BrokerTransactionTypeAdjustment, req.Amount, description, nil,
		req.CreatedBy, models.AuditActionAdjustmentApplied, metadata)
}

// credit appends a payment or adjustment and applies the reactivation rule: an account in
// grace period, overdue or suspended returns to active once its balance is no longer negative.
// Reactivating a suspended account also restores the broker's subscription and login.
func (b *BillingFlowImpl) credit(ctx context.Context, brokerID uint, typ models.BrokerTransactionType, amount decimal.Decimal, description string, reference, createdBy *string, action string, metadata *ClientMetadata) (decimal.Decimal, error) {
	var account *models.BrokerAccount
	var entry *models.BrokerTransaction
	var reactivated bool

	err := b.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		reactivated = false

		var err error
		account, err = b.accountRepo.ByBrokerIDForUpdate(txCtx, brokerID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAccountNotFound
		}

		now := b.now()
		entry, err = b.appendEntry(txCtx, account, typ, amount, description, reference, nil, createdBy, now)
		if err != nil {
			return err
		}

		if account.AccountStatus != models.AccountStatusActive && !account.CurrentBalance.IsNegative() {
			wasSuspended := account.IsSuspended()
			account.AccountStatus = models.AccountStatusActive
			account.GracePeriodEnd = nil
			if wasSuspended {
				if err := b.brokerRepo.UpdateSubscription(txCtx, account.BrokerID, models.SubscriptionStatusActive, nil); err != nil {
					return err
				}
				if err := b.brokerRepo.SetLoginActive(txCtx, account.BrokerID, true); err != nil {
					return err
				}
			}
			reactivated = true
		}

		return b.accountRepo.Update(txCtx, account)
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return decimal.Zero, NewBusinessError("ACCOUNT_NOT_FOUND", "Broker account not found", err)
		}
		return decimal.Zero, NewBusinessError("LEDGER_APPEND_FAILED", "Failed to record ledger entry", err)
	}

	msg := fmt.Sprintf("%s of %s on account %s, balance %s", typ, entry.Amount.StringFixed(2), account.AccountNumber, entry.BalanceAfter.StringFixed(2))
	extra := map[string]any{"transaction_uuid": entry.UUID.String(), "balance_after": entry.BalanceAfter}
	if reference != nil {
		extra["reference_number"] = *reference
	}
	createAuditLog(ctx, b.auditRepo, b.logger, auditSubject{BrokerID: &brokerID, AccountID: &account.ID},
		action, msg, true, nil, extra, metadata)

	if reactivated {
		accountTransitionsTotal.WithLabelValues(string(models.AccountStatusActive)).Inc()
		b.announce(ctx, account, services.NotificationAccountReactivated, services.EventAccountReactivated,
			models.AuditActionAccountReactivated, "Account reactivated", metadata)
	}

	return account.CurrentBalance, nil
}

func (b *BillingFlowImpl) ReconcileAccount(ctx context.Context, accountID uint) (*Reconciliation, error) {
	account, err := b.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to load broker account", err)
	}
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Broker account not found", ErrAccountNotFound)
	}

	entries, err := b.txRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to load ledger entries", err)
	}

	return ReplayLedger(account, entries), nil
}

// ReplayLedger sums the entries in order and checks every BalanceAfter against the running total
func ReplayLedger(account *models.BrokerAccount, entries []*models.BrokerTransaction) *Reconciliation {
	rec := &Reconciliation{
		AccountID:     account.ID,
		HeaderBalance: account.CurrentBalance,
		EntryCount:    len(entries),
	}

	running := decimal.Zero
	for _, entry := range entries {
		running = running.Add(entry.Amount)
		if rec.FirstBrokenEntryID == nil && !running.Equal(entry.BalanceAfter) {
			id := entry.ID
			rec.FirstBrokenEntryID = &id
		}
		rec.LastBalanceAfter = entry.BalanceAfter
	}
	rec.ReplayedBalance = running

	rec.Consistent = rec.FirstBrokenEntryID == nil &&
		running.Equal(account.CurrentBalance) &&
		rec.LastBalanceAfter.Equal(account.CurrentBalance)

	return rec
}

func (b *BillingFlowImpl) GetStatement(ctx context.Context, brokerID uint) (*Statement, error) {
	account, err := b.accountRepo.ByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to load broker account", err)
	}
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_FOUND", "Broker account not found", ErrAccountNotFound)
	}

	entries, err := b.txRepo.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to load ledger entries", err)
	}

	plan, err := b.planRepo.ByID(ctx, account.PlanID)
	if err != nil {
		return nil, NewBusinessError("PLAN_LOOKUP_FAILED", "Failed to load subscription plan", err)
	}

	return &Statement{Account: account, Plan: plan, Transactions: entries}, nil
}

func actorOf(metadata *ClientMetadata) *string {
	if metadata == nil || metadata.Actor == "" {
		return nil
	}
	return utils.ToPtr(metadata.Actor)
}
