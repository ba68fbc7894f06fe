/**
 * @description
 * The sync orchestrator: runs the phased pipeline for one connection,
 * fetch -> link-check -> process -> materialize, and reports progress onto
 * the Sync record.
 *
 * Error containment follows a strict ladder: authentication failures flip
 * the connection to requires_update and fail the run outright (retrying a
 * fetch with stale credentials is pointless); provider throttling reschedules
 * the run after the throttle window; everything else is contained to the
 * record or account it hit and accumulated into the run's stats.
 *
 * The pending-account-setup gate is deliberate backpressure, not a failure:
 * a connection with any unlinked provider account halts after import so no
 * data is processed into orphaned ledger rows.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/ledgerhub/sync-service/pkg/provider"
)

// OrchestratorRepository is the slice of the store the orchestrator needs.
type OrchestratorRepository interface {
	GetConnectionByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error)
	UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus) error
	TouchConnectionLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	UpsertProviderAccount(ctx context.Context, acct *domain.ProviderAccount) error
	UpdateProviderAccountExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	GetProviderAccountByID(ctx context.Context, id uuid.UUID) (*domain.ProviderAccount, error)
	ListProviderAccountsByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.ProviderAccount, error)
	UpdateProviderAccountPayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) error
	CreateSync(ctx context.Context, sync *domain.Sync) error
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, status domain.SyncStatus, statusText string) error
	CompleteSync(ctx context.Context, id uuid.UUID, status domain.SyncStatus, statusText string, stats domain.SyncStats) error
}

// Orchestrator drives the sync pipeline for provider connections.
type Orchestrator struct {
	repo      OrchestratorRepository
	providers *provider.Registry
	importer  *Importer
	holdings  *HoldingsMaterializer
	balances  *BalanceMaterializer
	retry     *RetryScheduler
	locks     SyncLocker
	publisher DelayedPublisher
	logger    *slog.Logger
}

// NewOrchestrator wires the sync pipeline together.
func NewOrchestrator(
	repo OrchestratorRepository,
	providers *provider.Registry,
	importer *Importer,
	holdings *HoldingsMaterializer,
	balances *BalanceMaterializer,
	retry *RetryScheduler,
	locks SyncLocker,
	publisher DelayedPublisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		providers: providers,
		importer:  importer,
		holdings:  holdings,
		balances:  balances,
		retry:     retry,
		locks:     locks,
		publisher: publisher,
		logger:    logger,
	}
}

// SyncConnection runs the full pipeline for one connection.
func (o *Orchestrator) SyncConnection(ctx context.Context, payload domain.SyncRequestedPayload) error {
	conn, err := o.repo.GetConnectionByID(ctx, payload.ConnectionID)
	if err != nil {
		return err
	}
	if conn.Status == domain.ConnectionRequiresUpdate {
		o.logger.Info("skipping sync for connection awaiting re-authentication", "connection_id", conn.ID)
		return nil
	}

	kind, err := provider.ParseKind(conn.ProviderKind)
	if err != nil {
		return err
	}
	client, err := o.providers.Get(kind)
	if err != nil {
		return err
	}

	sync := &domain.Sync{
		ID:              uuid.New(),
		ConnectionID:    conn.ID,
		Status:          domain.SyncPending,
		StatusText:      "Sync queued",
		WindowStartDate: payload.WindowStartDate,
		WindowEndDate:   payload.WindowEndDate,
		StartedAt:       time.Now().UTC(),
	}
	if err := o.repo.CreateSync(ctx, sync); err != nil {
		return err
	}

	stats := domain.SyncStats{}

	// Phase: importing.
	if err := o.transition(ctx, sync, domain.SyncImporting, "Importing provider data"); err != nil {
		return err
	}

	accounts, err := o.refreshProviderAccounts(ctx, conn, client)
	if err != nil {
		return o.handleFetchFailure(ctx, conn, sync, payload, err, &stats)
	}

	// Fetch and merge activity per account. Accounts whose sync lock is
	// held elsewhere are dropped from this run, not queued behind it.
	locked := make([]domain.ProviderAccount, 0, len(accounts))
	for i := range accounts {
		acct := &accounts[i]
		ok, lockErr := o.locks.TryLock(ctx, acct.ID)
		if lockErr != nil {
			return lockErr
		}
		if !ok {
			o.logger.Warn("sync already in flight for account; dropping duplicate request", "provider_account_id", acct.ID)
			continue
		}
		locked = append(locked, *acct)
	}
	defer func() {
		for i := range locked {
			if err := o.locks.Unlock(context.WithoutCancel(ctx), locked[i].ID); err != nil {
				o.logger.Warn("failed to release sync lock", "provider_account_id", locked[i].ID, "error", err)
			}
		}
	}()

	for i := range locked {
		acct := &locked[i]
		fetched, fetchErr := client.GetTransactions(ctx, conn.Credentials, acct.ExternalID, payload.WindowStartDate, &payload.WindowEndDate)
		if fetchErr != nil {
			if domain.IsAuthentication(fetchErr) || domain.IsRateLimit(fetchErr) {
				return o.handleFetchFailure(ctx, conn, sync, payload, fetchErr, &stats)
			}
			// Transient failures count as an empty fetch for this account.
			o.logger.Warn("activity fetch failed; treating as empty", "provider_account_id", acct.ID, "error", fetchErr)
			stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: %v", acct.ExternalID, fetchErr))
			fetched = nil
		}

		freshlyLinked := len(acct.RawPayload) == 0
		merged, added, mergeErr := o.mergeAndStore(ctx, acct, fetched)
		if mergeErr != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: merge: %v", acct.ExternalID, mergeErr))
			continue
		}
		acct.RawPayload = merged
		stats.ActivitiesImported += added

		if len(fetched) == 0 && freshlyLinked {
			retryPayload := domain.FetchActivitiesPayload{
				ProviderAccountID: acct.ID,
				StartDate:         payload.WindowStartDate,
				EndDate:           &payload.WindowEndDate,
				RetryCount:        0,
			}
			if _, retryErr := o.retry.ScheduleIfEmpty(ctx, retryPayload); retryErr != nil {
				o.logger.Warn("failed to schedule empty-account retry", "provider_account_id", acct.ID, "error", retryErr)
			}
		}
	}

	// Link-check gate: unlinked accounts halt the run before processing.
	if unlinked := countUnlinked(accounts); unlinked > 0 {
		if err := o.repo.UpdateConnectionStatus(ctx, conn.ID, domain.ConnectionPendingAccountSetup); err != nil {
			return err
		}
		text := fmt.Sprintf("%d account(s) need to be linked before processing can continue", unlinked)
		return o.repo.CompleteSync(ctx, sync.ID, domain.SyncRequiresAccountSetup, text, stats)
	}

	// Phase: processing.
	if err := o.transition(ctx, sync, domain.SyncProcessing, "Processing activity"); err != nil {
		return err
	}
	for i := range locked {
		o.processAccount(ctx, conn, client, &locked[i], &stats)
	}

	// Phase: calculating.
	if err := o.transition(ctx, sync, domain.SyncCalculating, "Calculating holdings and balances"); err != nil {
		return err
	}
	for i := range locked {
		acct := &locked[i]
		if !acct.Linked() {
			continue
		}
		if err := o.holdings.MaterializeHoldings(ctx, *acct.LinkedAccountID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: holdings: %v", acct.ExternalID, err))
		}
		if err := o.balances.MaterializeBalances(ctx, *acct.LinkedAccountID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: balances: %v", acct.ExternalID, err))
		}
	}

	// Phase: completed.
	now := time.Now().UTC()
	if err := o.repo.TouchConnectionLastSynced(ctx, conn.ID, now); err != nil {
		o.logger.Warn("failed to record last-synced time", "connection_id", conn.ID, "error", err)
	}
	if conn.Status != domain.ConnectionGood {
		if err := o.repo.UpdateConnectionStatus(ctx, conn.ID, domain.ConnectionGood); err != nil {
			o.logger.Warn("failed to restore connection status", "connection_id", conn.ID, "error", err)
		}
	}
	text := fmt.Sprintf("Processed %d account(s), %d activit(ies)", stats.AccountsProcessed, stats.ActivitiesImported)
	return o.repo.CompleteSync(ctx, sync.ID, domain.SyncCompleted, text, stats)
}

// FetchAccountActivities is the delayed-retry entry point for one provider
// account: refetch, merge, and if data finally arrived, process and
// materialize just that account.
func (o *Orchestrator) FetchAccountActivities(ctx context.Context, payload domain.FetchActivitiesPayload) error {
	acct, err := o.repo.GetProviderAccountByID(ctx, payload.ProviderAccountID)
	if err != nil {
		return err
	}
	conn, err := o.repo.GetConnectionByID(ctx, acct.ConnectionID)
	if err != nil {
		return err
	}
	if conn.Status == domain.ConnectionRequiresUpdate {
		o.logger.Info("skipping fetch retry for connection awaiting re-authentication", "connection_id", conn.ID)
		return nil
	}

	kind, err := provider.ParseKind(conn.ProviderKind)
	if err != nil {
		return err
	}
	client, err := o.providers.Get(kind)
	if err != nil {
		return err
	}

	ok, err := o.locks.TryLock(ctx, acct.ID)
	if err != nil {
		return err
	}
	if !ok {
		o.logger.Warn("sync already in flight for account; dropping fetch retry", "provider_account_id", acct.ID)
		return nil
	}
	defer func() {
		if err := o.locks.Unlock(context.WithoutCancel(ctx), acct.ID); err != nil {
			o.logger.Warn("failed to release sync lock", "provider_account_id", acct.ID, "error", err)
		}
	}()

	fetched, err := client.GetTransactions(ctx, conn.Credentials, acct.ExternalID, payload.StartDate, payload.EndDate)
	if err != nil {
		if domain.IsAuthentication(err) {
			if updErr := o.repo.UpdateConnectionStatus(ctx, conn.ID, domain.ConnectionRequiresUpdate); updErr != nil {
				return updErr
			}
			return nil
		}
		o.logger.Warn("fetch retry failed; treating as empty", "provider_account_id", acct.ID, "error", err)
		fetched = nil
	}

	if len(fetched) == 0 {
		_, retryErr := o.retry.ScheduleIfEmpty(ctx, payload)
		return retryErr
	}

	merged, added, err := o.mergeAndStore(ctx, acct, fetched)
	if err != nil {
		return err
	}
	acct.RawPayload = merged

	stats := domain.SyncStats{ActivitiesImported: added}
	o.processAccount(ctx, conn, client, acct, &stats)
	if acct.Linked() {
		if err := o.holdings.MaterializeHoldings(ctx, *acct.LinkedAccountID); err != nil {
			o.logger.Error("holdings materialization failed after fetch retry", "provider_account_id", acct.ID, "error", err)
		}
		if err := o.balances.MaterializeBalances(ctx, *acct.LinkedAccountID); err != nil {
			o.logger.Error("balance materialization failed after fetch retry", "provider_account_id", acct.ID, "error", err)
		}
	}
	if len(stats.Errors) > 0 {
		o.logger.Warn("fetch retry completed with errors", "provider_account_id", acct.ID, "errors", stats.Errors)
	}
	return nil
}

// refreshProviderAccounts pulls the provider's current account list and
// upserts it, re-identifying rotated accounts by fuzzy match so existing
// links survive a provider-side id refresh.
func (o *Orchestrator) refreshProviderAccounts(ctx context.Context, conn *domain.Connection, client provider.Client) ([]domain.ProviderAccount, error) {
	records, err := client.GetAccounts(ctx, conn.Credentials)
	if err != nil {
		return nil, err
	}

	known, err := o.repo.ListProviderAccountsByConnection(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		incoming := domain.ProviderAccount{
			ID:            uuid.New(),
			ConnectionID:  conn.ID,
			ExternalID:    rec.ExternalID,
			Name:          rec.Name,
			InstitutionID: rec.InstitutionID,
			AccountType:   rec.AccountType,
			Currency:      rec.Currency,
			RawBalance:    rec.Balance,
		}
		if match, found := MatchProviderAccount(incoming, known); found {
			// Keep the known row's identity so its link and cached payload
			// survive; the provider-reported attributes, including a rotated
			// external id, refresh on top of it. Later fetches must use the
			// id the provider reports now, not the one it retired.
			incoming.ID = match.ID
			if match.ExternalID != incoming.ExternalID {
				o.logger.Info("provider rotated account external id",
					"provider_account_id", match.ID, "old", match.ExternalID, "new", incoming.ExternalID)
				if err := o.repo.UpdateProviderAccountExternalID(ctx, match.ID, incoming.ExternalID); err != nil {
					return nil, err
				}
			}
		}
		if err := o.repo.UpsertProviderAccount(ctx, &incoming); err != nil {
			return nil, err
		}
	}

	return o.repo.ListProviderAccountsByConnection(ctx, conn.ID)
}

// mergeAndStore merges fetched activity into the account's cached payload
// and persists the result as the next merge base. The second return value is
// the number of activities the merge added; refetches of already-cached
// records do not count.
func (o *Orchestrator) mergeAndStore(ctx context.Context, acct *domain.ProviderAccount, fetched []domain.Activity) (json.RawMessage, int, error) {
	var existing []domain.Activity
	if len(acct.RawPayload) > 0 {
		if err := json.Unmarshal(acct.RawPayload, &existing); err != nil {
			// A corrupt cache is replaced rather than fatal; fetched data is
			// still authoritative.
			o.logger.Warn("cached payload unreadable; replacing", "provider_account_id", acct.ID, "error", err)
			existing = nil
		}
	}

	merged := MergeActivities(existing, fetched)
	added := len(merged) - len(existing)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, 0, err
	}
	if err := o.repo.UpdateProviderAccountPayload(ctx, acct.ID, encoded); err != nil {
		return nil, 0, err
	}
	return encoded, added, nil
}

// processAccount imports the merged activity of one linked provider account
// into the canonical ledger and refreshes the live balance. Per-record
// failures are contained and accumulated into stats.
func (o *Orchestrator) processAccount(ctx context.Context, conn *domain.Connection, client provider.Client, acct *domain.ProviderAccount, stats *domain.SyncStats) {
	if !acct.Linked() {
		return
	}

	var activities []domain.Activity
	if len(acct.RawPayload) > 0 {
		if err := json.Unmarshal(acct.RawPayload, &activities); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: payload decode: %v", acct.ExternalID, err))
			return
		}
	}

	// Merge output is a set; sort by date for deterministic processing.
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Date.Before(activities[j].Date)
	})

	accountID := *acct.LinkedAccountID
	for _, activity := range activities {
		result, err := o.importActivity(ctx, accountID, conn.ProviderKind, activity)
		if err != nil {
			o.logger.Warn("activity import failed; skipping record",
				"provider_account_id", acct.ID,
				"external_id", activity.ExternalID,
				"date", activity.Date,
				"error", err,
			)
			stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: record %s: %v", acct.ExternalID, activity.ExternalID, err))
			continue
		}
		if result.Created {
			stats.EntriesCreated++
		} else if result.Modified {
			stats.EntriesUpdated++
		}
	}

	if balance, err := client.GetBalance(ctx, conn.Credentials, acct.ExternalID); err != nil {
		o.logger.Warn("balance fetch failed", "provider_account_id", acct.ID, "error", err)
		stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: balance: %v", acct.ExternalID, err))
	} else if err := o.importer.UpdateBalance(ctx, accountID, balance.Balance, balance.CashBalance, balance.Currency); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("account %s: balance write: %v", acct.ExternalID, err))
	}

	stats.AccountsProcessed++
}

// importActivity routes one activity record to the matching import path.
func (o *Orchestrator) importActivity(ctx context.Context, accountID uuid.UUID, source string, activity domain.Activity) (*ImportResult, error) {
	externalID := activity.ExternalID
	if externalID == "" {
		// Records without a native id still need a stable upsert key; reuse
		// the merge key so re-imports stay idempotent.
		externalID = activityKey(activity)
	}

	switch activity.Type {
	case domain.ActivityTrade:
		return o.importer.ImportTrade(ctx, accountID, TradeImport{
			ExternalID: externalID,
			Symbol:     activity.Symbol,
			Quantity:   activity.Quantity,
			Price:      activity.Price,
			Currency:   activity.Currency,
			Date:       activity.Date,
			Name:       activity.Description,
			Source:     source,
		})
	case domain.ActivityValuation:
		return o.importer.ImportValuation(ctx, accountID, ValuationImport{
			ExternalID: externalID,
			Amount:     activity.Amount,
			Currency:   activity.Currency,
			Date:       activity.Date,
			Source:     source,
		})
	default:
		return o.importer.ImportTransaction(ctx, accountID, TransactionImport{
			ExternalID: externalID,
			Amount:     activity.Amount,
			Currency:   activity.Currency,
			Date:       activity.Date,
			Name:       activity.Description,
			Source:     source,
			Merchant:   activity.Merchant,
			Pending:    activity.Pending,
		})
	}
}

// handleFetchFailure implements the propagation ladder for fetch-phase
// failures: authentication flips the connection and fails the run; rate
// limiting fails the run but reschedules it after the throttle window.
func (o *Orchestrator) handleFetchFailure(ctx context.Context, conn *domain.Connection, sync *domain.Sync, payload domain.SyncRequestedPayload, err error, stats *domain.SyncStats) error {
	stats.Errors = append(stats.Errors, err.Error())

	if domain.IsAuthentication(err) {
		if updErr := o.repo.UpdateConnectionStatus(ctx, conn.ID, domain.ConnectionRequiresUpdate); updErr != nil {
			return updErr
		}
		return o.repo.CompleteSync(ctx, sync.ID, domain.SyncFailed,
			"The provider rejected this connection's credentials. Please reconnect.", *stats)
	}

	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		// Wait at least one full throttle window, then double it.
		delay := rateErr.RetryAfter * 2
		if pubErr := o.publisher.PublishWithDelay(ctx, domain.RoutingSyncRequested, payload, delay); pubErr != nil {
			o.logger.Error("failed to reschedule throttled sync", "connection_id", conn.ID, "error", pubErr)
		}
		return o.repo.CompleteSync(ctx, sync.ID, domain.SyncFailed,
			"The provider is throttling requests. The sync will retry automatically.", *stats)
	}

	return o.repo.CompleteSync(ctx, sync.ID, domain.SyncFailed,
		"The provider could not be reached. The next scheduled sync will retry.", *stats)
}

// transition moves the sync to the next phase, guarding against illegal jumps.
func (o *Orchestrator) transition(ctx context.Context, sync *domain.Sync, to domain.SyncStatus, text string) error {
	if !domain.CanTransition(sync.Status, to) {
		return fmt.Errorf("illegal sync transition %s -> %s", sync.Status, to)
	}
	if err := o.repo.UpdateSyncStatus(ctx, sync.ID, to, text); err != nil {
		return err
	}
	sync.Status = to
	sync.StatusText = text
	return nil
}

func countUnlinked(accounts []domain.ProviderAccount) int {
	n := 0
	for i := range accounts {
		if !accounts[i].Linked() {
			n++
		}
	}
	return n
}
